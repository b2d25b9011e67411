// @title        ECR Beach Resorts Portal API
// @version      1.0
// @description  Identity and session API for the property booking portal.
// @BasePath     /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import "github.com/ecrbeachresorts/portal/internal/cli"

func main() {
	cli.Execute()
}

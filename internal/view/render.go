package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/session"
)

var dashboardTitles = map[Screen]string{
	ScreenAdminDashboard:    "Admin Dashboard",
	ScreenOwnerDashboard:    "Owner Dashboard",
	ScreenBrokerDashboard:   "Broker Dashboard",
	ScreenCustomerDashboard: "Customer Dashboard",
}

// Render writes the text form of screen for the command-line client.
// Dashboards only read the identity and the displayed role.
func Render(w io.Writer, screen Screen, snap session.Snapshot) error {
	var b strings.Builder

	switch screen {
	case ScreenLoading:
		b.WriteString("Loading...\n")
	case ScreenLanding:
		b.WriteString("ECR Beach Resorts\n")
		b.WriteString("Run `portal login` to sign in or `portal signup` to create an account.\n")
	case ScreenLogin:
		b.WriteString("Sign in\n")
		b.WriteString("Usage: portal login --email <email> --password <password>\n")
	case ScreenSignup:
		b.WriteString("Create an account\n")
		b.WriteString("Usage: portal signup --name <name> --email <email> --phone <phone> --password <password> --role customer|owner|broker\n")
	default:
		renderDashboard(&b, screen, snap)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderDashboard(b *strings.Builder, screen Screen, snap session.Snapshot) {
	title, ok := dashboardTitles[screen]
	if !ok {
		title = dashboardTitles[ScreenCustomerDashboard]
	}
	fmt.Fprintf(b, "%s\n", title)
	if snap.Identity == nil {
		return
	}

	id := snap.Identity
	fmt.Fprintf(b, "  %-14s %s\n", "ID:", id.ID)
	fmt.Fprintf(b, "  %-14s %s\n", "Name:", id.Name)
	fmt.Fprintf(b, "  %-14s %s\n", "Email:", id.Email)
	if id.Phone != "" {
		fmt.Fprintf(b, "  %-14s %s\n", "Phone:", id.Phone)
	}
	fmt.Fprintf(b, "  %-14s %s\n", "KYC:", id.KYCStatus)
	if id.SubscriptionStatus != domain.SubscriptionNone {
		fmt.Fprintf(b, "  %-14s %s\n", "Subscription:", id.SubscriptionStatus)
	}
	if snap.Role != id.Role {
		fmt.Fprintf(b, "  previewing the %s dashboard as %s\n", snap.Role, id.Role)
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecrbeachresorts/portal/internal/backendclient"
	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
	"github.com/ecrbeachresorts/portal/internal/pkg/config"
	"github.com/ecrbeachresorts/portal/internal/session"
	"github.com/ecrbeachresorts/portal/internal/view"
	"github.com/ecrbeachresorts/portal/pkg/logger"
)

// portal holds the client-side session and navigation for one command run.
type portal struct {
	cfg   *config.ClientConfig
	store *session.Store
	nav   *view.Navigator
	out   io.Writer
	log   zerolog.Logger
	close func()
}

func openPortal(cmd *cobra.Command) (*portal, error) {
	ctx := cmd.Context()
	cfg, err := config.LoadClient(ctx)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Output: cmd.ErrOrStderr()})
	log := logger.Component("session")

	path := cfg.SessionFile
	if path == "" {
		if path, err = session.DefaultSlotPath(); err != nil {
			return nil, err
		}
	}

	store := session.NewStore(backendclient.New(cfg.APIURL, cfg.RequestTimeout), session.NewFileSlot(path), log)
	store.Restore(ctx)
	nav, cancel := view.NewNavigator(store)

	return &portal{cfg: cfg, store: store, nav: nav, out: cmd.OutOrStdout(), log: log, close: cancel}, nil
}

func (p *portal) render() error {
	snap := p.store.Snapshot()
	return view.Render(p.out, p.nav.Screen(snap), snap)
}

// failed renders the form the user came from and returns a readable error.
func (p *portal) failed(intent view.Intent, err error) error {
	p.nav.Select(intent)
	if rerr := p.render(); rerr != nil {
		return rerr
	}
	return errors.New(userMessage(err))
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, domain.ErrEmailExists):
		return "Email ID already exists, use different email"
	case errors.Is(err, domain.ErrAdminSignup):
		return "admin accounts cannot be created through signup"
	case errors.Is(err, session.ErrUnavailable):
		return "the portal is unreachable, try again later"
	case errors.Is(err, session.ErrSessionEnded):
		return "signed out before the request completed"
	}
	return err.Error()
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the portal",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()

		if ok, err := p.store.Login(cmd.Context(), email, password); !ok {
			return p.failed(view.IntentLogin, err)
		}
		return p.render()
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a customer, owner or broker account",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		email, _ := flags.GetString("email")
		phone, _ := flags.GetString("phone")
		password, _ := flags.GetString("password")
		role, _ := flags.GetString("role")

		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()

		ok, err := p.store.Signup(cmd.Context(), ports.SignupInput{
			Name:     name,
			Email:    email,
			Phone:    phone,
			Password: password,
			Role:     domain.Role(role),
		})
		if !ok {
			return p.failed(view.IntentSignup, err)
		}
		return p.render()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()

		p.store.Logout(cmd.Context())
		return p.render()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session's dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()
		return p.render()
	},
}

var switchRoleCmd = &cobra.Command{
	Use:       "switch-role <admin|owner|broker|customer>",
	Short:     "Preview another role's dashboard (admins only)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: roleNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()

		if !p.store.SwitchRole(domain.Role(strings.ToLower(args[0]))) {
			return fmt.Errorf("cannot switch to %q: only a signed-in admin can preview other roles", args[0])
		}
		return p.render()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session open and redraw when it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := openPortal(cmd)
		if err != nil {
			return err
		}
		defer p.close()

		unsubscribe := p.store.OnChange(func(session.Snapshot) {
			if err := p.render(); err != nil {
				p.log.Warn().Err(err).Msg("render failed")
			}
		})
		defer unsubscribe()

		if err := p.render(); err != nil {
			return err
		}
		p.store.Monitor(ctx, p.cfg.MonitorInterval)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	signupCmd.Flags().String("name", "", "full name")
	signupCmd.Flags().String("email", "", "account email")
	signupCmd.Flags().String("phone", "", "phone number")
	signupCmd.Flags().String("password", "", "password (at least 8 characters)")
	signupCmd.Flags().String("role", string(domain.RoleCustomer), "customer, owner or broker")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd, switchRoleCmd, watchCmd)
}

func roleNames() []string {
	names := make([]string, len(domain.Roles))
	for i, r := range domain.Roles {
		names[i] = string(r)
	}
	return names
}

// Package view decides which top-level screen the portal shows for a session.
package view

import (
	"fmt"
	"sync"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/session"
)

// Screen is a top-level screen.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenLanding
	ScreenLogin
	ScreenSignup
	ScreenAdminDashboard
	ScreenOwnerDashboard
	ScreenBrokerDashboard
	ScreenCustomerDashboard
)

var screenNames = map[Screen]string{
	ScreenLoading:           "loading",
	ScreenLanding:           "landing",
	ScreenLogin:             "login",
	ScreenSignup:            "signup",
	ScreenAdminDashboard:    "admin_dashboard",
	ScreenOwnerDashboard:    "owner_dashboard",
	ScreenBrokerDashboard:   "broker_dashboard",
	ScreenCustomerDashboard: "customer_dashboard",
}

func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Screen(%d)", int(s))
}

// Intent is where an unauthenticated visitor asked to go.
type Intent int

const (
	IntentLanding Intent = iota
	IntentLogin
	IntentSignup
)

// Route maps session state and navigation intent to a screen. It has no side effects.
func Route(snap session.Snapshot, intent Intent) Screen {
	if snap.Loading {
		return ScreenLoading
	}
	if !snap.Authenticated() {
		switch intent {
		case IntentLogin:
			return ScreenLogin
		case IntentSignup:
			return ScreenSignup
		default:
			return ScreenLanding
		}
	}
	return Dashboard(snap.Role)
}

// Dashboard returns the dashboard of role. Unknown roles get the customer
// dashboard, which exposes the least.
func Dashboard(role domain.Role) Screen {
	switch role {
	case domain.RoleAdmin:
		return ScreenAdminDashboard
	case domain.RoleOwner:
		return ScreenOwnerDashboard
	case domain.RoleBroker:
		return ScreenBrokerDashboard
	case domain.RoleCustomer:
		return ScreenCustomerDashboard
	}
	return ScreenCustomerDashboard
}

// Navigator keeps the ephemeral navigation intent. Attached to a Store, it
// resets the intent to the landing page whenever a session becomes
// authenticated, so the next logout never lands on a stale form.
type Navigator struct {
	mu            sync.Mutex
	intent        Intent
	authenticated bool
}

// NewNavigator returns a Navigator following store's session changes.
func NewNavigator(store *session.Store) (*Navigator, func()) {
	n := &Navigator{authenticated: store.Snapshot().Authenticated()}
	cancel := store.OnChange(n.Observe)
	return n, cancel
}

// Select records where the visitor wants to go.
func (n *Navigator) Select(intent Intent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intent = intent
}

func (n *Navigator) Intent() Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.intent
}

// Observe applies a session change.
func (n *Navigator) Observe(snap session.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := snap.Authenticated()
	if now && !n.authenticated {
		n.intent = IntentLanding
	}
	// Loading snapshots say nothing about the session outcome yet.
	if !snap.Loading {
		n.authenticated = now
	}
}

// Screen routes the given snapshot with the current intent.
func (n *Navigator) Screen(snap session.Snapshot) Screen {
	return Route(snap, n.Intent())
}

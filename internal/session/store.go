// Package session holds the client-side session: who is signed in, whether an
// authentication round trip is in flight, and the durable copy that lets a
// restart resume without asking for credentials again.
//
// A Store is created once per client process and handed explicitly to the
// view layer; every login, signup, logout and admin role preview goes through
// it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// State is the session lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrBusy rejects an operation started while another is still in flight.
	ErrBusy = errors.New("another authentication request is in progress")
	// ErrCredentialsRequired is returned before any round trip when email or password is blank.
	ErrCredentialsRequired = errors.New("email and password are required")
	// ErrUnavailable wraps transient backend failures; the caller may retry.
	ErrUnavailable = errors.New("authentication service unavailable")
	// ErrSessionEnded reports a sign-in that completed after Logout; its token
	// has been signed out again.
	ErrSessionEnded = errors.New("session ended before the request completed")
)

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State    State
	Identity *domain.Identity
	// Role is the role the views should render: the identity's own role, or
	// the role an admin is currently previewing.
	Role    domain.Role
	Loading bool
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// Store is the single source of truth for the current session.
type Store struct {
	backend Backend
	slot    Slot
	log     zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      State
	identity   *domain.Identity
	actingRole domain.Role
	token      string
	expiresAt  time.Time
	inFlight   bool
	// gen advances whenever a session is ended locally. Results of requests
	// started under an older generation are dropped.
	gen       uint64
	observers []observer
	nextObsID int

	// slotMu orders slot writes against generation changes; take it before mu.
	slotMu sync.Mutex
}

type observer struct {
	id int
	fn func(Snapshot)
}

// NewStore returns a Store in the Authenticating state; call Restore to
// resolve it from the durable slot.
func NewStore(backend Backend, slot Slot, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		slot:    slot,
		log:     log,
		now:     time.Now,
		state:   StateAuthenticating,
	}
}

// OnChange registers fn to receive every new snapshot. The returned function
// unregisters it. Observers run synchronously, in registration order, after
// the state lock is released.
func (s *Store) OnChange(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:   s.state,
		Loading: s.state == StateAuthenticating,
	}
	if s.identity != nil {
		id := *s.identity
		id.PasswordHash = ""
		snap.Identity = &id
		snap.Role = id.Role
		if s.actingRole != "" {
			snap.Role = s.actingRole
		}
	}
	return snap
}

// Login signs in with email and password. ok reports success; on failure err
// explains why (domain.ErrInvalidCredentials, ErrBusy, ErrCredentialsRequired
// or an ErrUnavailable wrap) and the previous session is left in place.
func (s *Store) Login(ctx context.Context, email, password string) (ok bool, err error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, ErrCredentialsRequired
	}

	prev, err := s.begin()
	if err != nil {
		return false, err
	}

	grant, err := s.backend.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.rollback(prev)
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return false, domain.ErrInvalidCredentials
		}
		s.log.Warn().Err(err).Msg("login failed")
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !s.commit(ctx, grant, prev.gen) {
		return false, ErrSessionEnded
	}
	s.log.Info().Str("identity_id", grant.Identity.ID).Msg("signed in")
	return true, nil
}

// Signup registers a new customer, owner or broker and signs it in. Admin
// accounts cannot be created here. On failure the session is unchanged.
func (s *Store) Signup(ctx context.Context, fields ports.SignupInput) (ok bool, err error) {
	if !fields.Role.SelfRegistrable() {
		if fields.Role == domain.RoleAdmin {
			return false, domain.ErrAdminSignup
		}
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidRole, fields.Role)
	}

	prev, err := s.begin()
	if err != nil {
		return false, err
	}

	grant, err := s.backend.SignUp(ctx, fields)
	if err != nil {
		s.rollback(prev)
		switch {
		case errors.Is(err, domain.ErrEmailExists),
			errors.Is(err, domain.ErrInvalidSignup),
			errors.Is(err, domain.ErrInvalidRole),
			errors.Is(err, domain.ErrAdminSignup):
			return false, err
		}
		s.log.Warn().Err(err).Msg("signup failed")
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !s.commit(ctx, grant, prev.gen) {
		return false, ErrSessionEnded
	}
	s.log.Info().Str("identity_id", grant.Identity.ID).Str("role", string(grant.Identity.Role)).Msg("signed up")
	return true, nil
}

// Logout ends the session locally and at the backend. Calling it without a
// session does nothing. A login, signup or restore still in flight is
// abandoned: its result is discarded when it arrives. Backend failures are
// logged, never returned: the local session is gone either way.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	changed := s.state != StateUnauthenticated || s.identity != nil
	s.clearLocked()
	s.state = StateUnauthenticated
	s.inFlight = false
	s.gen++
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.clearSlot()
	if token != "" {
		if err := s.backend.SignOut(ctx, token); err != nil {
			s.log.Warn().Err(err).Msg("backend sign-out failed")
		}
	}
	if changed {
		notify(observers, snap)
	}
}

// SwitchRole lets an admin preview another role's dashboard. It only changes
// what is displayed; the identity keeps its admin role and can switch back.
// For anyone else it does nothing. The result reports whether it applied.
func (s *Store) SwitchRole(role domain.Role) bool {
	s.mu.Lock()
	if s.state != StateAuthenticated || s.identity == nil ||
		s.identity.Role != domain.RoleAdmin || !role.Valid() {
		s.mu.Unlock()
		return false
	}
	if role == domain.RoleAdmin {
		s.actingRole = ""
	} else {
		s.actingRole = role
	}
	rec, gen := s.recordLocked(), s.gen
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.persist(rec, gen)
	notify(observers, snap)
	return true
}

// Restore resolves the startup state from the durable slot. A malformed entry
// is discarded. When the entry carries a token the identity is re-read from
// the backend; a rejected token clears the slot, while an unreachable backend
// falls back to the persisted identity.
func (s *Store) Restore(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.inFlight {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.inFlight = true
	s.state = StateAuthenticating
	gen := s.gen
	s.mu.Unlock()

	rec, err := s.slot.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.log.Warn().Err(err).Msg("discarding persisted session")
			s.discardSlot(gen)
		}
		return s.resolveUnauthenticated(gen)
	}

	if rec.Token != "" && !rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt) {
		s.log.Info().Str("identity_id", rec.Identity.ID).Msg("persisted session expired")
		s.discardSlot(gen)
		return s.resolveUnauthenticated(gen)
	}

	if rec.Token != "" {
		identity, err := s.backend.CurrentUser(ctx, rec.Token)
		switch {
		case err == nil:
			rec.Identity = identity
		case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrInvalidCredentials):
			s.log.Info().Str("identity_id", rec.Identity.ID).Msg("persisted session no longer valid")
			s.discardSlot(gen)
			return s.resolveUnauthenticated(gen)
		default:
			s.log.Warn().Err(err).Str("identity_id", rec.Identity.ID).Msg("backend unreachable, restoring persisted identity")
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Info().Str("identity_id", rec.Identity.ID).Msg("restore superseded by logout")
		return snap
	}
	s.identity = rec.Identity
	s.token = rec.Token
	s.expiresAt = rec.ExpiresAt
	s.actingRole = ""
	if rec.Identity.Role == domain.RoleAdmin && rec.ActingRole.Valid() && rec.ActingRole != domain.RoleAdmin {
		s.actingRole = rec.ActingRole
	}
	s.state = StateAuthenticated
	s.inFlight = false
	out := s.recordLocked()
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.persist(out, gen)
	notify(observers, snap)
	return snap
}

// Monitor watches the backend for sessions that end elsewhere (expiry,
// sign-out from another client, deleted account) and for profile changes.
// It blocks until ctx is done.
func (s *Store) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Store) check(ctx context.Context) {
	s.mu.Lock()
	token, busy := s.token, s.inFlight
	authenticated := s.state == StateAuthenticated
	s.mu.Unlock()
	if !authenticated || busy || token == "" {
		return
	}

	identity, err := s.backend.CurrentUser(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) || errors.Is(err, domain.ErrInvalidCredentials) {
			s.expire(token)
			return
		}
		s.log.Debug().Err(err).Msg("session check failed")
		return
	}

	s.mu.Lock()
	if s.token != token || s.identity == nil || sameProfile(s.identity, identity) {
		s.mu.Unlock()
		return
	}
	s.identity = identity
	if identity.Role != domain.RoleAdmin {
		s.actingRole = ""
	}
	rec, gen := s.recordLocked(), s.gen
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.persist(rec, gen)
	notify(observers, snap)
}

// expire ends the session if it is still the one backed by token.
func (s *Store) expire(token string) {
	s.mu.Lock()
	if s.token != token || s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	id := s.identity.ID
	s.clearLocked()
	s.state = StateUnauthenticated
	s.gen++
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.log.Info().Str("identity_id", id).Msg("session ended by backend")
	s.clearSlot()
	notify(observers, snap)
}

// prior captures what a failed operation must put back.
type prior struct {
	state      State
	identity   *domain.Identity
	actingRole domain.Role
	token      string
	expiresAt  time.Time
	gen        uint64
}

func (s *Store) begin() (prior, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return prior{}, ErrBusy
	}
	p := prior{
		state:      s.state,
		identity:   s.identity,
		actingRole: s.actingRole,
		token:      s.token,
		expiresAt:  s.expiresAt,
		gen:        s.gen,
	}
	if p.state == StateAuthenticating {
		// Only reachable before Restore ran; there is nothing to go back to.
		p.state = StateUnauthenticated
	}
	s.inFlight = true
	s.state = StateAuthenticating
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return p, nil
}

func (s *Store) rollback(p prior) {
	s.mu.Lock()
	if s.gen != p.gen {
		// Logout already settled the session.
		s.mu.Unlock()
		return
	}
	s.state = p.state
	s.identity = p.identity
	s.actingRole = p.actingRole
	s.token = p.token
	s.expiresAt = p.expiresAt
	s.inFlight = false
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

// commit installs grant unless the session was ended after the request
// started, in which case the orphaned token is signed out and false returned.
func (s *Store) commit(ctx context.Context, grant *ports.Grant, gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Info().Str("identity_id", grant.Identity.ID).Msg("discarding sign-in completed after logout")
		if err := s.backend.SignOut(ctx, grant.Token); err != nil {
			s.log.Warn().Err(err).Msg("backend sign-out of discarded session failed")
		}
		return false
	}
	s.identity = grant.Identity
	s.actingRole = ""
	s.token = grant.Token
	s.expiresAt = grant.ExpiresAt
	s.state = StateAuthenticated
	s.inFlight = false
	rec := s.recordLocked()
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.persist(rec, gen)
	notify(observers, snap)
	return true
}

func (s *Store) resolveUnauthenticated(gen uint64) Snapshot {
	s.mu.Lock()
	if s.gen != gen {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.clearLocked()
	s.state = StateUnauthenticated
	s.inFlight = false
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return snap
}

func (s *Store) clearLocked() {
	s.identity = nil
	s.actingRole = ""
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *Store) recordLocked() *Record {
	id := *s.identity
	id.PasswordHash = ""
	return &Record{
		Identity:   &id,
		ActingRole: s.actingRole,
		Token:      s.token,
		ExpiresAt:  s.expiresAt,
	}
}

func (s *Store) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// persist writes the record while gen is still current; a failed write costs
// only the restart path.
func (s *Store) persist(rec *Record, gen uint64) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if !s.current(gen) {
		return
	}
	if err := s.slot.Save(rec); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist session")
	}
}

// discardSlot clears the slot on behalf of a restore running under gen.
func (s *Store) discardSlot(gen uint64) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if !s.current(gen) {
		return
	}
	if err := s.slot.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

func (s *Store) clearSlot() {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if err := s.slot.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

func (s *Store) observersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), len(s.observers))
	for i, o := range s.observers {
		out[i] = o.fn
	}
	return out
}

func sameProfile(a, b *domain.Identity) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Email == b.Email &&
		a.Phone == b.Phone &&
		a.Role == b.Role &&
		a.KYCStatus == b.KYCStatus &&
		a.SubscriptionStatus == b.SubscriptionStatus
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}

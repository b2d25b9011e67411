package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
	createErr  error
	takenIDs   map[string]bool
	lastList   ports.ListIdentitiesFilter
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{
		identities: make(map[string]*domain.Identity),
		takenIDs:   make(map[string]bool),
	}
}

func cloneIdentity(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

func (r *stubIdentityRepo) Create(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if r.takenIDs[identity.ID] {
		return domain.ErrDuplicateID
	}
	if _, exists := r.identities[identity.ID]; exists {
		return domain.ErrDuplicateID
	}
	for _, existing := range r.identities {
		if domain.NormalizeEmail(existing.Email) == domain.NormalizeEmail(identity.Email) {
			return domain.ErrEmailExists
		}
	}
	r.identities[identity.ID] = cloneIdentity(identity)
	return nil
}

func (r *stubIdentityRepo) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.identities {
		if domain.NormalizeEmail(i.Email) == domain.NormalizeEmail(email) {
			return cloneIdentity(i), nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *stubIdentityRepo) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.identities[id]; ok {
		return cloneIdentity(i), nil
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *stubIdentityRepo) CountByRole(_ context.Context) (map[domain.Role]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.Role]int)
	for _, i := range r.identities {
		counts[i.Role]++
	}
	return counts, nil
}

func (r *stubIdentityRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.identities[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	i.PasswordHash = passwordHash
	return nil
}

func (r *stubIdentityRepo) UpdateKYCStatus(_ context.Context, id string, status domain.KYCStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.identities[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	i.KYCStatus = status
	return nil
}

func (r *stubIdentityRepo) List(_ context.Context, f ports.ListIdentitiesFilter) ([]*domain.Identity, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList = f
	var out []*domain.Identity
	for _, i := range r.identities {
		if f.Role != "" && i.Role != f.Role {
			continue
		}
		if f.KYCStatus != "" && i.KYCStatus != f.KYCStatus {
			continue
		}
		out = append(out, cloneIdentity(i))
	}
	return out, int64(len(out)), nil
}

type stubRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func (r *stubRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.revoked == nil {
		r.revoked = make(map[string]time.Time)
	}
	r.revoked[tokenID] = until
	return nil
}

func (r *stubRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type stubResetStore struct {
	mu     sync.Mutex
	tokens map[string]string
	last   string
}

func (s *stubResetStore) Save(_ context.Context, token, identityID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]string)
	}
	s.tokens[token] = identityID
	s.last = token
	return nil
}

func (s *stubResetStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrInvalidResetToken
	}
	delete(s.tokens, token)
	return id, nil
}

type stubRecorder struct {
	mu     sync.Mutex
	events []ports.AuthEventInput
}

func (r *stubRecorder) Enqueue(e ports.AuthEventInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *stubRecorder) types() []domain.AuthEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuthEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type authFixture struct {
	svc      *AuthService
	repo     *stubIdentityRepo
	revoker  *stubRevoker
	resets   *stubResetStore
	recorder *stubRecorder
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		repo:     newStubIdentityRepo(),
		revoker:  &stubRevoker{},
		resets:   &stubResetStore{},
		recorder: &stubRecorder{},
	}
	f.svc = NewAuthService(f.repo, NewIDAllocator(nil), f.revoker, f.resets, f.recorder,
		AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour}, zerolog.Nop())
	f.svc.hashCost = bcrypt.MinCost
	return f
}

func signupInput(role domain.Role, email string) ports.SignupInput {
	return ports.SignupInput{
		Name:     "Alice",
		Email:    email,
		Phone:    "+91 90000 00000",
		Password: "password123",
		Role:     role,
	}
}

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestAuthService_Signup_Owner(t *testing.T) {
	f := newAuthFixture(t)

	grant, err := f.svc.Signup(context.Background(), signupInput(domain.RoleOwner, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	id := grant.Identity
	if id.ID != "ECO2547001" {
		t.Fatalf("expected ECO2547001, got %s", id.ID)
	}
	if id.Role != domain.RoleOwner || id.KYCStatus != domain.KYCPending {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.SubscriptionStatus != domain.SubscriptionTrial {
		t.Fatalf("expected trial subscription, got %q", id.SubscriptionStatus)
	}
	if grant.Token == "" {
		t.Fatalf("expected a token")
	}

	claims, err := f.svc.VerifyToken(context.Background(), grant.Token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if claims.Subject != "ECO2547001" || claims.Role != domain.RoleOwner {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	stored, _ := f.repo.FindByID(context.Background(), "ECO2547001")
	if stored.PasswordHash == "" || stored.PasswordHash == "password123" {
		t.Fatalf("password must be stored hashed")
	}
	if got := f.recorder.types(); len(got) != 1 || got[0] != domain.EventSignup {
		t.Fatalf("expected one signup event, got %v", got)
	}
}

func TestAuthService_Signup_CustomerHasNoSubscription(t *testing.T) {
	f := newAuthFixture(t)

	grant, err := f.svc.Signup(context.Background(), signupInput(domain.RoleCustomer, "c@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if grant.Identity.ID != "ECC1547001" {
		t.Fatalf("expected ECC1547001, got %s", grant.Identity.ID)
	}
	if grant.Identity.SubscriptionStatus != domain.SubscriptionNone {
		t.Fatalf("customers have no subscription, got %q", grant.Identity.SubscriptionStatus)
	}
}

func TestAuthService_Signup_SequencesArePerRole(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	want := []struct {
		role  domain.Role
		email string
		id    string
	}{
		{domain.RoleCustomer, "c1@x.com", "ECC1547001"},
		{domain.RoleBroker, "b1@x.com", "ECB3547001"},
		{domain.RoleCustomer, "c2@x.com", "ECC1547002"},
		{domain.RoleOwner, "o1@x.com", "ECO2547001"},
	}
	for _, w := range want {
		grant, err := f.svc.Signup(ctx, signupInput(w.role, w.email))
		if err != nil {
			t.Fatalf("Signup(%s) returned error: %v", w.email, err)
		}
		if grant.Identity.ID != w.id {
			t.Fatalf("Signup(%s): expected %s, got %s", w.email, w.id, grant.Identity.ID)
		}
	}
}

func TestAuthService_Signup_RetriesTakenID(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.takenIDs["ECC1547001"] = true

	grant, err := f.svc.Signup(context.Background(), signupInput(domain.RoleCustomer, "c@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if grant.Identity.ID != "ECC1547002" {
		t.Fatalf("expected ECC1547002, got %s", grant.Identity.ID)
	}
}

func TestAuthService_Signup_EmailExistsIgnoresCase(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com")); err != nil {
		t.Fatalf("first Signup returned error: %v", err)
	}
	_, err := f.svc.Signup(ctx, signupInput(domain.RoleOwner, "ALICE@X.com"))
	if !errors.Is(err, domain.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if n := len(f.repo.identities); n != 1 {
		t.Fatalf("expected 1 identity, got %d", n)
	}
}

func TestAuthService_Signup_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ports.SignupInput)
		want   error
	}{
		{"admin role", func(in *ports.SignupInput) { in.Role = domain.RoleAdmin }, domain.ErrAdminSignup},
		{"unknown role", func(in *ports.SignupInput) { in.Role = "guest" }, domain.ErrInvalidRole},
		{"blank name", func(in *ports.SignupInput) { in.Name = "  " }, domain.ErrInvalidSignup},
		{"bad email", func(in *ports.SignupInput) { in.Email = "alice" }, domain.ErrInvalidSignup},
		{"email without domain", func(in *ports.SignupInput) { in.Email = "alice@" }, domain.ErrInvalidSignup},
		{"email with spaces", func(in *ports.SignupInput) { in.Email = "al ice@x.com" }, domain.ErrInvalidSignup},
		{"missing phone", func(in *ports.SignupInput) { in.Phone = "" }, domain.ErrInvalidSignup},
		{"short password", func(in *ports.SignupInput) { in.Password = "short" }, domain.ErrInvalidSignup},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)
			in := signupInput(domain.RoleCustomer, "alice@x.com")
			tc.mutate(&in)

			_, err := f.svc.Signup(context.Background(), in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.repo.identities) != 0 {
				t.Fatalf("nothing should be stored")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Signup(ctx, signupInput(domain.RoleBroker, "bob@x.com")); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	grant, err := f.svc.Login(ctx, "Bob@X.com", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if grant.Identity.ID != "ECB3547001" || grant.Identity.Role != domain.RoleBroker {
		t.Fatalf("unexpected identity: %+v", grant.Identity)
	}
	got := f.recorder.types()
	if got[len(got)-1] != domain.EventLoginSucceeded {
		t.Fatalf("expected login_succeeded event, got %v", got)
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com")); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	_, wrongPassword := f.svc.Login(ctx, "alice@x.com", "not-the-password")
	_, unknownEmail := f.svc.Login(ctx, "nobody@x.com", "password123")
	_, blank := f.svc.Login(ctx, "", "")

	for _, err := range []error{wrongPassword, unknownEmail, blank} {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("failure messages differ: %q vs %q", wrongPassword, unknownEmail)
	}

	failed := 0
	for _, typ := range f.recorder.types() {
		if typ == domain.EventLoginFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 login_failed events, got %d", failed)
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestAuthService_Logout_RevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	if err := f.svc.Logout(ctx, grant.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := f.svc.VerifyToken(ctx, grant.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after logout, got %v", err)
	}
	if err := f.svc.Logout(ctx, grant.Token); err != nil {
		t.Fatalf("second Logout should be a no-op, got %v", err)
	}
	if err := f.svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("Logout with garbage token should be a no-op, got %v", err)
	}
}

func TestAuthService_VerifyToken_Expired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	later := time.Now().Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }

	if _, err := f.svc.VerifyToken(ctx, grant.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthService_VerifyToken_WrongSecret(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	other := NewAuthService(f.repo, NewIDAllocator(nil), f.revoker, f.resets, nil,
		AuthConfig{JWTSecret: "other"}, zerolog.Nop())
	if _, err := other.VerifyToken(ctx, grant.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthService_VerifyToken_RevocationStoreDown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	f.revoker.err = errors.New("redis down")
	_, err = f.svc.VerifyToken(ctx, grant.Token)
	if err == nil || errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("store failures must not look like an expired session, got %v", err)
	}
}

func TestAuthService_CurrentUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	grant, err := f.svc.Signup(ctx, signupInput(domain.RoleOwner, "alice@x.com"))
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	if err := f.repo.UpdateKYCStatus(ctx, grant.Identity.ID, domain.KYCVerified); err != nil {
		t.Fatalf("UpdateKYCStatus: %v", err)
	}
	identity, err := f.svc.CurrentUser(ctx, grant.Token)
	if err != nil {
		t.Fatalf("CurrentUser returned error: %v", err)
	}
	if identity.KYCStatus != domain.KYCVerified {
		t.Fatalf("expected fresh profile, got %+v", identity)
	}

	delete(f.repo.identities, grant.Identity.ID)
	if _, err := f.svc.CurrentUser(ctx, grant.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for a deleted identity, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

func TestAuthService_PasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Signup(ctx, signupInput(domain.RoleCustomer, "alice@x.com")); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	if err := f.svc.RequestPasswordReset(ctx, "ALICE@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	token := f.resets.last
	if token == "" {
		t.Fatalf("expected a reset token to be stored")
	}

	if err := f.svc.ResetPassword(ctx, token, "brand-new-pass"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice@x.com", "password123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice@x.com", "brand-new-pass"); err != nil {
		t.Fatalf("new password should work, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "another-pass"); !errors.Is(err, domain.ErrInvalidResetToken) {
		t.Fatalf("reset tokens are single use, got %v", err)
	}
}

func TestAuthService_PasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.svc.RequestPasswordReset(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if f.resets.last != "" {
		t.Fatalf("no token should be stored")
	}
}

func TestAuthService_ResetPassword_ShortPassword(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ResetPassword(context.Background(), "whatever", "short")
	if !errors.Is(err, domain.ErrInvalidSignup) {
		t.Fatalf("expected ErrInvalidSignup, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Admin seed
// ---------------------------------------------------------------------------

func TestAuthService_EnsureAdmin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.EnsureAdmin(ctx, "Admin User", "admin@ecr.com", "admin-password"); err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	if err := f.svc.EnsureAdmin(ctx, "Admin User", "admin@ecr.com", "admin-password"); err != nil {
		t.Fatalf("EnsureAdmin must be idempotent, got %v", err)
	}

	grant, err := f.svc.Login(ctx, "admin@ecr.com", "admin-password")
	if err != nil {
		t.Fatalf("admin Login returned error: %v", err)
	}
	if grant.Identity.ID != domain.AdminID || grant.Identity.Role != domain.RoleAdmin {
		t.Fatalf("unexpected admin identity: %+v", grant.Identity)
	}
	if grant.Identity.KYCStatus != domain.KYCVerified {
		t.Fatalf("admin should be verified, got %q", grant.Identity.KYCStatus)
	}
}

func TestAuthService_EnsureAdmin_RequiresPassword(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.EnsureAdmin(context.Background(), "Admin", "admin@ecr.com", "")
	if err == nil || !strings.Contains(err.Error(), "ensure admin") {
		t.Fatalf("expected ensure admin error, got %v", err)
	}
}

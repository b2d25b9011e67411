package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

const (
	minPasswordLength = 8
	maxIDAttempts     = 3
)

// TokenRevoker abstracts the revocation list (Redis).
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ResetTokenStore abstracts single-use password reset tokens (Redis).
type ResetTokenStore interface {
	Save(ctx context.Context, token, identityID string, ttl time.Duration) error
	// Consume returns the identity bound to token and deletes it.
	// A missing or expired token yields domain.ErrInvalidResetToken.
	Consume(ctx context.Context, token string) (string, error)
}

// AuthConfig holds the token settings of AuthService.
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
}

// AuthService validates credentials, registers identities and issues sessions.
type AuthService struct {
	repo      ports.IdentityRepository
	ids       *IDAllocator
	revoker   TokenRevoker
	resets    ResetTokenStore
	recorder  ports.AuthEventRecorder
	cfg       AuthConfig
	log       zerolog.Logger
	now       func() time.Time
	hashCost  int
	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(
	repo ports.IdentityRepository,
	ids *IDAllocator,
	revoker TokenRevoker,
	resets ResetTokenStore,
	recorder ports.AuthEventRecorder,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 30 * time.Minute
	}
	return &AuthService{
		repo:     repo,
		ids:      ids,
		revoker:  revoker,
		resets:   resets,
		recorder: recorder,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		hashCost: bcrypt.DefaultCost,
	}
}

// Signup registers a customer, owner or broker and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.Grant, error) {
	if err := validateSignup(in); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return nil, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, fmt.Errorf("signup: lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("signup: hash password: %w", err)
	}

	identity := &domain.Identity{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		KYCStatus:    domain.KYCPending,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if in.Role.Subscribes() {
		identity.SubscriptionStatus = domain.SubscriptionTrial
	}

	if err := s.insertWithID(ctx, identity); err != nil {
		return nil, err
	}

	s.log.Info().Str("identity_id", identity.ID).Str("role", string(identity.Role)).Msg("identity registered")
	s.record(domain.EventSignup, identity, identity.Email, "")

	return s.issue(identity)
}

// insertWithID allocates an identifier and inserts, retrying when another
// writer took the identifier first.
func (s *AuthService) insertWithID(ctx context.Context, identity *domain.Identity) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.ids.NextID(identity.Role)
		if err != nil {
			return err
		}
		identity.ID = id

		err = s.repo.Create(ctx, identity)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateID) {
			if errors.Is(err, domain.ErrEmailExists) {
				return domain.ErrEmailExists
			}
			return fmt.Errorf("signup: create identity: %w", err)
		}
		s.log.Warn().Str("identity_id", id).Msg("allocated id already taken, retrying")
	}
	return fmt.Errorf("signup: %w after %d attempts", domain.ErrDuplicateID, maxIDAttempts)
}

// Login checks credentials. Unknown email and wrong password are reported
// identically, and both paths run one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.Grant, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	identity, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.placeholderHash(), []byte(password))
		s.record(domain.EventLoginFailed, nil, email, "unknown email")
		return nil, domain.ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		s.record(domain.EventLoginFailed, identity, email, "wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	s.record(domain.EventLoginSucceeded, identity, identity.Email, "")
	return s.issue(identity)
}

// Logout revokes the token until its natural expiry. Tokens that are
// already invalid are ignored, which makes repeated logouts harmless.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil
		}
		return err
	}

	if err := s.revoker.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("logout: revoke token: %w", err)
	}

	s.record(domain.EventLogout, &domain.Identity{ID: claims.Subject, Role: claims.Role}, claims.Email, "")
	return nil
}

// CurrentUser resolves the identity behind a live token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	identity, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrSessionExpired
		}
		return nil, fmt.Errorf("current user: %w", err)
	}
	return identity, nil
}

// VerifyToken checks signature, expiry and revocation. Every rejection is
// reported as domain.ErrSessionExpired; store failures are returned as is.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*ports.SessionClaims, error) {
	if token == "" {
		return nil, domain.ErrSessionExpired
	}

	mc := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, mc, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrSessionExpired
	}

	claims := &ports.SessionClaims{}
	claims.Subject, _ = mc["sub"].(string)
	claims.Email, _ = mc["email"].(string)
	role, _ := mc["role"].(string)
	claims.Role = domain.ParseRole(role)
	claims.TokenID, _ = mc["jti"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if claims.Subject == "" || claims.TokenID == "" {
		return nil, domain.ErrSessionExpired
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if revoked {
		return nil, domain.ErrSessionExpired
	}
	return claims, nil
}

// RequestPasswordReset stores a reset token when the email belongs to an
// identity. The outcome is the same either way so the endpoint cannot be
// used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	identity, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil
		}
		return fmt.Errorf("password reset: %w", err)
	}

	token := uuid.NewString()
	if err := s.resets.Save(ctx, token, identity.ID, s.cfg.ResetTokenTTL); err != nil {
		return fmt.Errorf("password reset: save token: %w", err)
	}

	// Delivery is handled by the mail relay that tails this log stream.
	s.log.Info().Str("identity_id", identity.ID).Str("email", identity.Email).Msg("password reset requested")
	s.log.Debug().Str("identity_id", identity.ID).Str("reset_token", token).Msg("password reset token issued")
	return nil
}

// ResetPassword consumes a reset token and replaces the password hash.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidSignup, minPasswordLength)
	}

	identityID, err := s.resets.Consume(ctx, resetToken)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("reset password: hash: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, identityID, string(hash)); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return domain.ErrInvalidResetToken
		}
		return fmt.Errorf("reset password: %w", err)
	}

	s.record(domain.EventPasswordReset, &domain.Identity{ID: identityID}, "", "")
	return nil
}

// EnsureAdmin creates the singleton admin identity when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if _, err := s.repo.FindByID(ctx, domain.AdminID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		return fmt.Errorf("ensure admin: %w", err)
	}

	if email == "" || len(password) < minPasswordLength {
		return fmt.Errorf("ensure admin: %w: admin email and a password of at least %d characters are required",
			domain.ErrInvalidSignup, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("ensure admin: hash: %w", err)
	}

	admin := &domain.Identity{
		ID:                 domain.AdminID,
		Name:               name,
		Email:              email,
		Role:               domain.RoleAdmin,
		KYCStatus:          domain.KYCVerified,
		SubscriptionStatus: domain.SubscriptionActive,
		PasswordHash:       string(hash),
		CreatedAt:          s.now(),
	}
	if err := s.repo.Create(ctx, admin); err != nil && !errors.Is(err, domain.ErrDuplicateID) {
		return fmt.Errorf("ensure admin: %w", err)
	}

	s.log.Info().Str("identity_id", domain.AdminID).Msg("admin identity ensured")
	return nil
}

func (s *AuthService) issue(identity *domain.Identity) (*ports.Grant, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := jwt.MapClaims{
		"sub":   identity.ID,
		"email": identity.Email,
		"role":  string(identity.Role),
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &ports.Grant{Token: signed, ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC(), Identity: identity}, nil
}

func (s *AuthService) record(t domain.AuthEventType, identity *domain.Identity, email, detail string) {
	if s.recorder == nil {
		return
	}
	in := ports.AuthEventInput{
		Type:       t,
		Email:      email,
		Detail:     detail,
		OccurredAt: s.now(),
	}
	if identity != nil {
		in.IdentityID = identity.ID
		in.Role = identity.Role
	}
	s.recorder.Enqueue(in)
}

// placeholderHash is compared against when the email is unknown so the
// response time does not reveal whether an account exists.
func (s *AuthService) placeholderHash() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.hashCost)
		if err != nil {
			s.log.Warn().Err(err).Msg("placeholder hash generation failed")
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// signupRules mirrors the validate tags of the HTTP signup schema so a form
// is judged the same in process and over the wire.
var signupRules = validator.New()

func validateSignup(in ports.SignupInput) error {
	if !in.Role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, in.Role)
	}
	if !in.Role.SelfRegistrable() {
		return domain.ErrAdminSignup
	}
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidSignup)
	case signupRules.Var(in.Email, "required,email") != nil:
		return fmt.Errorf("%w: email must be a valid email", domain.ErrInvalidSignup)
	case signupRules.Var(in.Phone, "required") != nil:
		return fmt.Errorf("%w: phone is required", domain.ErrInvalidSignup)
	case len(in.Password) < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidSignup, minPasswordLength)
	}
	return nil
}

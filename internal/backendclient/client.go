// Package backendclient talks to the portal identity API over HTTP and
// implements session.Backend for the command-line client.
package backendclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
	"github.com/ecrbeachresorts/portal/internal/session"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx answer the client could not map to a domain error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api: %d %s", e.Status, e.Message)
}

// Client is an HTTP session.Backend.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ session.Backend = (*Client)(nil)

// New returns a Client for the API at baseURL. A zero timeout uses 15s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type identityBody struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Role               string    `json:"role"`
	KYCStatus          string    `json:"kyc_status"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
}

func (b identityBody) identity() *domain.Identity {
	return &domain.Identity{
		ID:                 b.ID,
		Name:               b.Name,
		Email:              b.Email,
		Phone:              b.Phone,
		Role:               domain.ParseRole(b.Role),
		KYCStatus:          domain.KYCStatus(b.KYCStatus),
		SubscriptionStatus: domain.SubscriptionStatus(b.SubscriptionStatus),
		CreatedAt:          b.CreatedAt,
	}
}

type grantBody struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      identityBody `json:"user"`
}

func (b grantBody) grant() *ports.Grant {
	return &ports.Grant{Token: b.Token, ExpiresAt: b.ExpiresAt, Identity: b.User.identity()}
}

type sessionBody struct {
	User identityBody `json:"user"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*ports.Grant, error) {
	var out grantBody
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	return out.grant(), nil
}

func (c *Client) SignUp(ctx context.Context, fields ports.SignupInput) (*ports.Grant, error) {
	var out grantBody
	err := c.do(ctx, http.MethodPost, "/auth/signup", "", map[string]string{
		"name":     fields.Name,
		"email":    fields.Email,
		"phone":    fields.Phone,
		"password": fields.Password,
		"role":     string(fields.Role),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.grant(), nil
}

// SignOut revokes token. An already dead token is not an error.
func (c *Client) SignOut(ctx context.Context, token string) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
	if errors.Is(err, domain.ErrSessionExpired) {
		return nil
	}
	return err
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.Identity, error) {
	var out sessionBody
	if err := c.do(ctx, http.MethodGet, "/auth/session", token, nil, &out); err != nil {
		return nil, err
	}
	return out.User.identity(), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps an error answer back to the domain error the server
// started from.
func statusError(status int, raw []byte) error {
	var envelope struct {
		Error string `json:"error"`
	}
	_ = sonic.Unmarshal(raw, &envelope)
	msg := envelope.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized:
		if msg == "invalid credentials" {
			return domain.ErrInvalidCredentials
		}
		return domain.ErrSessionExpired
	case http.StatusConflict:
		return domain.ErrEmailExists
	case http.StatusForbidden:
		if strings.Contains(msg, "self-registered") {
			return domain.ErrAdminSignup
		}
		return domain.ErrForbidden
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidSignup, msg)
	}
	return &APIError{Status: status, Message: msg}
}

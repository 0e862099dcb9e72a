// Package identity adapts Clerk's Backend API to the session bridge's
// identity provider. The browser or mobile sign-in happens elsewhere; this
// package adopts the resulting session id, checks it is active and reads the
// user behind it.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/safar/mute-store/internal/session"
)

const (
	defaultBaseURL              = "https://api.clerk.com"
	responseBodyReadLimit int64 = 4096

	statusActive = "active"
)

var (
	errSecretKeyRequired = errors.New("identity provider secret key is required")

	// ErrNoSession means no provider session id was supplied to adopt.
	ErrNoSession = errors.New("no identity provider session to adopt")
	// ErrSessionInactive means the session exists but was ended or expired.
	ErrSessionInactive = errors.New("identity provider session is not active")
)

// APIError is a non-2xx answer from the Backend API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider status %d", e.Status)
	}
	return fmt.Sprintf("identity provider status %d: %s", e.Status, e.Message)
}

var _ session.IdentityProvider = (*Clerk)(nil)

type Clerk struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string

	mu        sync.Mutex
	sessionID string
}

type Option func(*Clerk)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Clerk) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Clerk) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithSessionID sets the session SignIn and Current look up.
func WithSessionID(id string) Option {
	return func(c *Clerk) {
		c.sessionID = strings.TrimSpace(id)
	}
}

func NewClerk(secretKey string, opts ...Option) (*Clerk, error) {
	trimmedKey := strings.TrimSpace(secretKey)
	if trimmedKey == "" {
		return nil, errSecretKeyRequired
	}

	c := &Clerk{
		secretKey:  trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Adopt replaces the session id, as when a new one is handed over by the
// sign-in page.
func (c *Clerk) Adopt(sessionID string) {
	c.mu.Lock()
	c.sessionID = strings.TrimSpace(sessionID)
	c.mu.Unlock()
}

func (c *Clerk) currentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SignIn verifies the adopted session and returns it with its user.
func (c *Clerk) SignIn(ctx context.Context) (*session.ProviderSession, error) {
	id := c.currentID()
	if id == "" {
		return nil, ErrNoSession
	}
	s, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionInactive
	}
	return s, nil
}

// Current returns the adopted session while it is active, and nil once it
// has ended or when none was adopted.
func (c *Clerk) Current(ctx context.Context) (*session.ProviderSession, error) {
	id := c.currentID()
	if id == "" {
		return nil, nil
	}
	return c.lookup(ctx, id)
}

// SignOut revokes the adopted session. The local id is forgotten even when
// the revoke call fails.
func (c *Clerk) SignOut(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	if id == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/revoke", nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

type clerkSession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type clerkUser struct {
	ID                    string `json:"id"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

func (u clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// lookup returns nil, nil for a session that is unknown or not active.
func (c *Clerk) lookup(ctx context.Context, id string) (*session.ProviderSession, error) {
	var s clerkSession
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), &s)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Status != statusActive {
		return nil, nil
	}

	var u clerkUser
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(s.UserID), &u); err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	out := &session.ProviderSession{
		SessionID: s.ID,
		UserID:    u.ID,
		Email:     u.primaryEmail(),
		Name:      strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
	if s.CreatedAt > 0 {
		out.SignedInAt = time.UnixMilli(s.CreatedAt).UTC()
	}
	return out, nil
}

func (c *Clerk) do(ctx context.Context, method, path string, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute identity request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return &APIError{Status: resp.StatusCode, Message: parseErrorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

func parseErrorMessage(raw []byte) string {
	var body struct {
		Errors []struct {
			Message     string `json:"message"`
			LongMessage string `json:"long_message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Errors) == 0 {
		return strings.TrimSpace(string(raw))
	}
	if body.Errors[0].LongMessage != "" {
		return body.Errors[0].LongMessage
	}
	return body.Errors[0].Message
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/safar/mute-store/internal/models"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 4096

	// FallbackMessage is shown when the backend gives no usable detail.
	FallbackMessage = "No se pudo completar la solicitud. Inténtalo de nuevo."
)

var errBaseURLRequired = errors.New("backend base url is required")

// Error is a non-2xx answer from the order backend, or a transport failure
// (Status 0).
type Error struct {
	Status int
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend unreachable: %v", e.cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("backend status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend status %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UserMessage returns the server-supplied detail, or the generic fallback.
func (e *Error) UserMessage() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return FallbackMessage
}

// UserMessage extracts a user-facing message from any client error.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return FallbackMessage
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type tokenResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

type RegisterRequest struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"telefono,omitempty"`
	Address  string `json:"direccion,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, http.MethodGet, "/auth/productos", "", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// PlaceOrder submits the order. The backend replies with a message on
// success; nothing else is kept.
func (c *Client) PlaceOrder(ctx context.Context, order models.Order) error {
	var resp struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodPost, "/auth/comprar", "", order, &resp)
}

func (c *Client) Purchases(ctx context.Context, email string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	path := "/auth/purchase?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (c *Client) Profile(ctx context.Context, token string) (*models.Customer, error) {
	var customer models.Customer
	if err := c.do(ctx, http.MethodGet, "/auth/user", token, nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

type ProviderUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SyncProviderUser records an identity-provider account with the backend.
func (c *Client) SyncProviderUser(ctx context.Context, user ProviderUser) error {
	var resp struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodPost, "/auth/clerk", "", user, &resp)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return &Error{Status: resp.StatusCode, Detail: parseDetail(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// parseDetail reads {"detail": "..."} bodies. Validation errors carry a
// list of objects with a msg field instead of a string.
func parseDetail(raw []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

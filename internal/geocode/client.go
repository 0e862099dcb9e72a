package geocode

import (
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
	defaultBaseURL             = "https://maps.googleapis.com/maps/api"
	requestBodyReadLimit int64 = 1024

	// AddressNotFound replaces the address whenever a lookup fails.
	AddressNotFound = "Dirección no encontrada"
)

var (
	errAPIKeyRequired = errors.New("geocoding api key is required")
	errNoResults      = errors.New("no geocoding results")
)

// Client resolves coordinates into street addresses through the Google
// Geocoding API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Reverse returns the formatted address closest to loc.
func (c *Client) Reverse(ctx context.Context, loc models.Location) (string, error) {
	if c == nil {
		return "", errors.New("geocoding client not configured")
	}

	query := url.Values{}
	query.Set("latlng", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
	query.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/geocode/json?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return "", fmt.Errorf("geocode status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var apiResp struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	if apiResp.Status != "" && apiResp.Status != "OK" {
		return "", fmt.Errorf("geocode status %s", apiResp.Status)
	}
	if len(apiResp.Results) == 0 || strings.TrimSpace(apiResp.Results[0].FormattedAddress) == "" {
		return "", errNoResults
	}
	return apiResp.Results[0].FormattedAddress, nil
}

// Reverser is the lookup ResolveOrPlaceholder degrades around.
type Reverser interface {
	Reverse(ctx context.Context, loc models.Location) (string, error)
}

// ResolveOrPlaceholder never fails: lookup errors and a nil reverser both
// yield AddressNotFound along with the underlying error for logging.
func ResolveOrPlaceholder(ctx context.Context, r Reverser, loc models.Location) (string, error) {
	if r == nil {
		return AddressNotFound, errors.New("geocoding client not configured")
	}
	address, err := r.Reverse(ctx, loc)
	if err != nil {
		return AddressNotFound, err
	}
	return address, nil
}

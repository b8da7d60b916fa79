package payu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/payu-bridge/internal/resilience"
)

// GatewayConfig carries the merchant credentials for one PayU point of sale.
// It is immutable for the lifetime of a notification; there is no
// process-global gateway state.
type GatewayConfig struct {
	PosID        string
	SignatureKey string
	ClientID     string
	ClientSecret string
	// Mode selects the PayU environment: "test" or "live".
	Mode string
}

// Host returns the REST API base URL for the configured environment.
func (c GatewayConfig) Host() string {
	if c.Mode == "live" {
		return "https://secure.payu.com"
	}
	return "https://secure.snd.payu.com"
}

const (
	oauthPath  = "/pl/standard/user/oauth/authorize"
	ordersPath = "/api/v2_1/orders/"
)

// Client talks to the PayU REST API. The only operation this service needs is
// the best-effort order cancellation issued when a notification fails
// signature verification.
type Client struct {
	Config  GatewayConfig
	HTTP    resilience.HTTPClient
	BaseURL string // overrides Config.Host when set, used by tests

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient constructs a Client with sensible retry defaults.
func NewClient(cfg GatewayConfig) *Client {
	return &Client{
		Config: cfg,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Timeout: 10 * time.Second},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("payu"),
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
		},
	}
}

// CancelOrder requests cancellation of the provider-side transaction. Errors
// are returned for the caller to log; a failed cancellation never changes the
// notification outcome.
func (c *Client) CancelOrder(ctx context.Context, remoteOrderID string) error {
	remoteOrderID = strings.TrimSpace(remoteOrderID)
	if remoteOrderID == "" {
		return fmt.Errorf("payu: remote order id is required")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("payu: authorize: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.host()+ordersPath+url.PathEscape(remoteOrderID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("payu: cancel order %s: %w", remoteOrderID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payu: cancel order %s: unexpected status %s", remoteOrderID, resp.Status)
	}
	return nil
}

func (c *Client) host() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return c.Config.Host()
}

// accessToken returns a cached OAuth token, fetching a fresh one via the
// client-credentials grant when the cache is empty or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp.Add(-30*time.Second)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.Config.ClientID)
	form.Set("client_secret", c.Config.ClientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host()+oauthPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("empty access token")
	}
	c.token = payload.AccessToken
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.tokenExp = time.Now().Add(ttl)
	return c.token, nil
}

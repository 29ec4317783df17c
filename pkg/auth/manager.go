package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for token management.
var (
	tokensMintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firehose_tokens_minted_total",
		Help: "Total number of access tokens minted",
	})

	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_auth_failures_total",
		Help: "Total authentication failures by reason",
	}, []string{"reason"})
)

// Config holds the credentials and endpoint for authentication.
type Config struct {
	// TokenURL is the full URL of the token endpoint.
	TokenURL string

	// ClientID and ClientSecret identify the application (HTTP basic auth).
	ClientID     string
	ClientSecret string

	// Username and Password are the resource-owner credentials for the
	// password grant.
	Username string
	Password string

	// UserAgent is sent on the token request (REQUIRED by the upstream).
	UserAgent string

	// Timeout for the token request.
	Timeout time.Duration
}

// Manager owns the current access token and renews it on demand.
type Manager struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger

	mu    sync.Mutex
	token *Token
}

// NewManager creates a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials are required")
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("resource-owner credentials are required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Manager{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "auth").Logger(),
	}, nil
}

// Token returns the current bearer token value, authenticating first if
// no valid token is cached. A cached unexpired token is returned with no
// I/O. On failure the cached token (if any) is left untouched and the
// error is returned; callers must treat that as "cannot proceed."
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && !m.token.Expired() {
		return m.token.Value, nil
	}

	token, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	return token.Value, nil
}

// Current returns the cached token, or nil if none is set. Intended for
// inspection and tests; it never triggers authentication.
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// authenticate performs the password-grant token request. Caller holds m.mu.
func (m *Manager) authenticate(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", m.config.Username)
	form.Set("password", m.config.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}

	req.SetBasicAuth(m.config.ClientID, m.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.config.UserAgent)

	m.logger.Debug().
		Str("token_url", m.config.TokenURL).
		Str("username", m.config.Username).
		Msg("Requesting access token")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		authFailuresTotal.WithLabelValues("network").Inc()
		m.logger.Error().Err(err).Msg("Token request failed")
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		authFailuresTotal.WithLabelValues("network").Inc()
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		authFailuresTotal.WithLabelValues("status").Inc()
		m.logger.Error().
			Int("status_code", resp.StatusCode).
			Msg("Token request rejected")
		return nil, fmt.Errorf("token request status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		authFailuresTotal.WithLabelValues("parse").Inc()
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		authFailuresTotal.WithLabelValues("parse").Inc()
		return nil, fmt.Errorf("token response missing access_token or expires_in")
	}

	token := &Token{
		Value:     tr.AccessToken,
		IssuedAt:  time.Now(),
		ExpiresIn: time.Duration(tr.ExpiresIn) * time.Second,
	}

	tokensMintedTotal.Inc()
	m.logger.Info().
		Dur("expires_in", token.ExpiresIn).
		Msg("New access token minted")

	return token, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.httpClient = client
}

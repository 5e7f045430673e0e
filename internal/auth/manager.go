package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/pkg/utils"
)

const (
	// tokenPath is appended to the accounts host to form the token endpoint.
	tokenPath = "/oauth/v2/token"
	// defaultExpiresIn covers token responses that omit expires_in.
	defaultExpiresIn = 3600
)

// Credentials is the OAuth2 client credential set for the refresh-token grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// tokenResponse is the accounts endpoint reply. Zoho reports grant problems
// as 200 responses carrying an error field, so both are checked.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	APIDomain   string `json:"api_domain"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

// Manager serves access tokens from the persistent store while they are
// still comfortably inside their lifetime, refreshing against the accounts
// endpoint otherwise.
type Manager struct {
	logger      *zap.Logger
	client      *http.Client
	store       TokenStore
	creds       Credentials
	accountsURL string
	skew        time.Duration
	mu          sync.Mutex
	now         func() time.Time
}

// NewManager creates a token manager for one credential set.
func NewManager(logger *zap.Logger, store TokenStore, creds Credentials, accountsURL string, skew, timeout time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:      logger,
		client:      &http.Client{Timeout: timeout},
		store:       store,
		creds:       creds,
		accountsURL: accountsURL,
		skew:        skew,
		now:         time.Now,
	}
}

// Token returns a valid access token, reusing the stored one while its
// remaining lifetime exceeds the skew.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.store.Load(ctx); ok && tok.Valid(m.now(), m.skew) {
		return tok.AccessToken, nil
	}
	return m.refreshLocked(ctx)
}

// Refresh forces a new token regardless of what the store holds. The
// request layer calls this after a 401 before its single retry.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	resp, err := m.fetchToken(ctx)
	if err != nil {
		metrics.IncTokenRefresh("error")
		return "", fmt.Errorf("zoho auth: refresh access token: %w", err)
	}

	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	tok := Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(expiresIn) * time.Second).Unix(),
	}
	if err := m.store.Save(ctx, tok); err != nil {
		metrics.IncTokenRefresh("error")
		return "", fmt.Errorf("zoho auth: persist access token: %w", err)
	}

	metrics.IncTokenRefresh("ok")
	m.logger.Info("auth.token_refreshed",
		zap.String("client_id", m.creds.ClientID),
		zap.String("token", utils.MaskToken(tok.AccessToken)),
		zap.Int64("expires_in_sec", expiresIn))

	return tok.AccessToken, nil
}

// fetchToken requests a new access token from the accounts endpoint.
// The grant parameters travel as query parameters, not a form body.
func (m *Manager) fetchToken(ctx context.Context) (*tokenResponse, error) {
	q := url.Values{}
	q.Set("refresh_token", m.creds.RefreshToken)
	q.Set("client_id", m.creds.ClientID)
	q.Set("client_secret", m.creds.ClientSecret)
	q.Set("grant_type", "refresh_token")

	endpoint := m.accountsURL + tokenPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	if tokenResp.Error != "" {
		return nil, fmt.Errorf("token endpoint rejected grant: %s", tokenResp.Error)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access_token")
	}

	return &tokenResp, nil
}

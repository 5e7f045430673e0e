package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/auth"
	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/zoho-bulk/pkg/secrets"
)

// Resolver loads the Zoho OAuth credential set from AWS Secrets Manager,
// caching the parsed result so repeated lookups inside one process stay
// local.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[auth.Credentials]
}

// NewResolver constructs a credential resolver.
func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[auth.Credentials]) *Resolver {
	return &Resolver{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches the credential secret by id. The secret must carry
// client_id, client_secret and refresh_token keys.
func (r *Resolver) Resolve(ctx context.Context, secretID string) (auth.Credentials, error) {
	key := strings.ToLower(secretID)

	if creds, ok := r.cache.Get(key); ok {
		metrics.IncCacheHit("hit")
		return creds, nil
	}
	metrics.IncCacheHit("miss")

	secretMap, err := r.provider.GetSecret(ctx, secretID)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretID),
			zap.Error(err))
		return auth.Credentials{}, fmt.Errorf("resolve credentials from %q: %w", secretID, err)
	}

	creds, err := parseCredentials(secretMap)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("parse secret %q: %w", secretID, err)
	}

	r.cache.Put(key, creds)

	r.logger.Info("aws.credentials_resolved",
		zap.String("secret_id", secretID))
	return creds, nil
}

// parseCredentials validates that every required key is present; a grant
// with any of them missing would only fail later at the token endpoint.
func parseCredentials(m map[string]string) (auth.Credentials, error) {
	creds := auth.Credentials{
		ClientID:     m["client_id"],
		ClientSecret: m["client_secret"],
		RefreshToken: m["refresh_token"],
	}

	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if creds.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return auth.Credentials{}, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Token is a cached access token with its absolute expiry in unix seconds.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Valid reports whether the token can still be used at now, leaving skew as
// a safety margin before the actual expiry.
func (t Token) Valid(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	return time.Unix(t.ExpiresAt, 0).Add(-skew).After(now)
}

// TokenStore persists the cached token between invocations.
// Load treats a missing or unreadable entry as a miss, never an error;
// the caller refreshes and overwrites on a miss.
type TokenStore interface {
	Load(ctx context.Context) (Token, bool)
	Save(ctx context.Context, tok Token) error
	Close() error
}

// FileStore keeps the token in a single JSON file next to the tool.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a file-backed token store at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Load(ctx context.Context) (Token, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Token{}, false
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		s.logger.Warn("auth.cache_unreadable",
			zap.String("path", s.path),
			zap.Error(err))
		return Token{}, false
	}
	if tok.AccessToken == "" {
		return Token{}, false
	}
	return tok, true
}

// Save overwrites the cache file via a rename so a crash mid-write never
// leaves a truncated file behind.
func (s *FileStore) Save(ctx context.Context, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token cache: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// RedisStore keeps the token in Redis so shared runners reuse one grant.
// The entry expires with the token itself.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and scopes the cache key to the client ID.
func NewRedisStore(addr string, db int, pass, clientID string, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: pass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		rdb:    rdb,
		key:    "zoho:token:" + clientID,
		logger: logger,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context) (Token, bool) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false
	} else if err != nil {
		s.logger.Warn("auth.cache_unreadable",
			zap.String("key", s.key),
			zap.Error(err))
		return Token{}, false
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		s.logger.Warn("auth.cache_unreadable",
			zap.String("key", s.key),
			zap.Error(err))
		return Token{}, false
	}
	if tok.AccessToken == "" {
		return Token{}, false
	}
	return tok, true
}

func (s *RedisStore) Save(ctx context.Context, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}

	ttl := time.Until(time.Unix(tok.ExpiresAt, 0))
	if ttl <= 0 {
		return fmt.Errorf("refusing to cache already-expired token")
	}
	if err := s.rdb.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

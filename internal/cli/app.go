package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/auth"
	"github.com/Checker-Finance/zoho-bulk/internal/history"
	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/internal/publisher"
	"github.com/Checker-Finance/zoho-bulk/internal/rate"
	"github.com/Checker-Finance/zoho-bulk/internal/secrets"
	"github.com/Checker-Finance/zoho-bulk/internal/zoho"
	"github.com/Checker-Finance/zoho-bulk/pkg/config"
	"github.com/Checker-Finance/zoho-bulk/pkg/model"
	pkgsecrets "github.com/Checker-Finance/zoho-bulk/pkg/secrets"
	"github.com/Checker-Finance/zoho-bulk/pkg/utils"
)

// App owns the wiring for one CLI invocation: credentials, token store,
// CRM client and the optional backends. Commands are methods so they share
// the wired services.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   auth.TokenStore
	tokens  *auth.Manager
	client  *zoho.Client
	fileLog *history.FileLog
	pg      *history.PGWriter
	pub     *publisher.Publisher
	pool    *pgxpool.Pool
	metrics *metrics.Server
}

// New wires the application from configuration. Optional backends (Redis,
// Postgres, NATS, metrics) attach only when configured; Postgres and NATS
// degrade to warnings so a missing sink never blocks a CRM operation.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	creds, err := app.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		store, err := auth.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, creds.ClientID, logger)
		if err != nil {
			return nil, fmt.Errorf("connect token store: %w", err)
		}
		app.store = store
	} else {
		app.store = auth.NewFileStore(cfg.TokenCacheFile, logger)
	}

	app.tokens = auth.NewManager(logger, app.store, creds, cfg.AccountsURL, cfg.TokenSkew, cfg.TokenHTTPTimeout)

	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})
	app.client = zoho.NewClient(logger, rateMgr, app.tokens, cfg.BaseURL, cfg.APIDomain, cfg.HTTPTimeout)

	app.fileLog = history.NewFileLog(cfg.JobHistoryFile, logger)

	if cfg.DatabaseURL != "" {
		logger.Info("history.pg_connecting", zap.String("dsn", utils.MaskDSN(cfg.DatabaseURL)))
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("history.pg_unavailable", zap.Error(err))
		} else {
			app.pool = pool
			app.pg = history.NewPGWriter(pool, logger, cfg.ServiceName)
		}
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.ServiceName),
			nats.Timeout(5*time.Second))
		if err != nil {
			logger.Warn("nats.connect_failed",
				zap.String("url", cfg.NATSURL),
				zap.Error(err))
		} else if pub, err := publisher.New(nc, cfg.ServiceName); err != nil {
			logger.Warn("nats.jetstream_unavailable", zap.Error(err))
			nc.Close()
		} else {
			app.pub = pub
		}
	}

	if cfg.MetricsPort > 0 {
		app.metrics = metrics.NewServer(cfg.MetricsPort, logger)
		app.metrics.Start()
	}

	logger.Info("app.ready",
		zap.String("env", cfg.Env),
		zap.String("org_id", cfg.OrgID),
		zap.String("base_url", cfg.BaseURL))

	return app, nil
}

// resolveCredentials prefers AWS Secrets Manager when ZOHO_SECRET_ID is set
// and falls back to the plain environment variables otherwise.
func (a *App) resolveCredentials(ctx context.Context) (auth.Credentials, error) {
	if a.cfg.SecretID != "" {
		provider, err := pkgsecrets.NewAWSProvider(a.cfg.AWSRegion)
		if err != nil {
			return auth.Credentials{}, fmt.Errorf("init secrets provider: %w", err)
		}
		cache := pkgsecrets.NewCache[auth.Credentials](a.cfg.CacheTTL)
		go cache.StartCleaner(a.cfg.CleanupFreq, ctx.Done())
		return secrets.NewResolver(a.logger, provider, cache).Resolve(ctx, a.cfg.SecretID)
	}

	creds := auth.Credentials{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RefreshToken: a.cfg.RefreshToken,
	}

	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "ZOHO_CLIENT_ID")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "ZOHO_CLIENT_SECRET")
	}
	if creds.RefreshToken == "" {
		missing = append(missing, "ZOHO_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return auth.Credentials{}, fmt.Errorf("missing credentials: set %s or ZOHO_SECRET_ID", strings.Join(missing, ", "))
	}
	return creds, nil
}

// Root assembles the command tree.
func (a *App) Root() *cobra.Command {
	root := &cobra.Command{
		Use:           "zoho-bulk",
		Short:         "Bulk export, field inspection and batch deletion for Zoho CRM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		a.CreateCommand(),
		a.StatusCommand(),
		a.DownloadCommand(),
		a.ListFieldsCommand(),
		a.DeleteBatchCommand(),
	)
	return root
}

// Close releases backends in reverse dependency order.
func (a *App) Close(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics.shutdown_failed", zap.Error(err))
		}
	}
	if a.pub != nil {
		a.pub.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("auth.store_close_failed", zap.Error(err))
		}
	}
}

// publishJobEvent emits a job lifecycle event, best-effort.
func (a *App) publishJobEvent(ctx context.Context, subject string, event model.BulkJobEvent) {
	if a.pub == nil {
		return
	}
	if err := a.pub.Publish(ctx, subject, event); err != nil {
		a.logger.Warn("nats.publish_failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

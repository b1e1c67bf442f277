// Package bootstrap wires configuration, infrastructure, adapters and
// services into a runnable application.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"subtrack_server/adapter/out/cache"
	"subtrack_server/adapter/out/llm"
	"subtrack_server/adapter/out/persistence"
	"subtrack_server/adapter/out/provider/gmail"
	"subtrack_server/config"
	"subtrack_server/core/port/out"
	"subtrack_server/core/service/auth"
	"subtrack_server/core/service/classify"
	"subtrack_server/core/service/subscription"
	syncservice "subtrack_server/core/service/sync"
	"subtrack_server/infra/database"
	"subtrack_server/pkg/logger"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	ConnectionRepo out.ConnectionRepository
	EmailRepo      out.EmailRepository
	SubRepo        out.SubscriptionRepository

	// Cache
	DedupCache out.ProcessedIDCache

	// Providers
	GmailProvider *gmail.GmailAdapter
	Classifier    out.SubscriptionClassifier

	// Services
	OAuthService          *auth.OAuthService
	ClassificationService *classify.ClassificationService
	SubscriptionService   *subscription.Service
	SyncService           *syncservice.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool for migrations and health checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	// Database (sqlx for the adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis. Optional: the dedup cache is a pre-filter, the database unique
	// constraint stays authoritative without it.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis connection failed, dedup pre-filter disabled: %v", err)
	} else {
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		deps.DedupCache = cache.NewDedupCache(redisClient)
	}

	// Repositories
	deps.ConnectionRepo = persistence.NewConnectionAdapter(sqlDB)
	deps.EmailRepo = persistence.NewEmailAdapter(sqlDB)
	deps.SubRepo = persistence.NewSubscriptionAdapter(sqlDB)

	// Gmail provider
	deps.GmailProvider = gmail.NewGmailAdapter(&gmail.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})

	// LLM classifier
	if cfg.OpenAIAPIKey != "" {
		deps.Classifier = llm.NewClassifier(&llm.Config{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   time.Duration(cfg.LLMTimeoutSec) * time.Second,
		})
		logger.Info("LLM classifier initialized (model: %s)", cfg.LLMModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, full syncs will store emails unclassified")
	}

	// Services
	deps.OAuthService = auth.NewOAuthService(
		deps.ConnectionRepo,
		deps.GmailProvider,
		deps.GmailProvider,
		deps.GmailProvider,
	)

	if deps.Classifier != nil {
		deps.ClassificationService = classify.NewClassificationService(
			deps.Classifier,
			deps.SubRepo,
			cfg.ConfidenceThreshold,
		)
	}

	deps.SubscriptionService = subscription.NewService(deps.SubRepo)

	deps.SyncService = syncservice.NewService(
		deps.OAuthService,
		deps.GmailProvider,
		deps.EmailRepo,
		deps.ConnectionRepo,
		deps.DedupCache,
		deps.ClassificationService,
		syncservice.Config{
			Query:       cfg.SyncQuery,
			PageSize:    cfg.SyncPageSize,
			MaxMessages: cfg.SyncMaxMessages,
			Concurrency: cfg.FetchConcurrency,
			DedupTTL:    cfg.DedupCacheTTL,
		},
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

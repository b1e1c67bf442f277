package bootstrap

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"subtrack_server/adapter/in/http"
	"subtrack_server/adapter/in/worker"
	"subtrack_server/config"
	"subtrack_server/infra/middleware"
	"subtrack_server/pkg/logger"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "subtrack-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	tracker := worker.NewJobTracker(zlog)
	syncWorker := worker.NewSyncWorker(deps.SyncService, tracker, zlog)

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json is 2-3x faster than encoding/json for our payload shapes
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000,http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	// Health check
	healthHandler := http.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	api := app.Group("/api/v1")

	oauthHandler := http.NewOAuthHandler(deps.OAuthService)
	oauthHandler.Register(api)

	syncHandler := http.NewSyncHandler(syncWorker, tracker)
	syncHandler.Register(api)

	emailHandler := http.NewEmailHandler(deps.EmailRepo)
	emailHandler.Register(api)

	subscriptionHandler := http.NewSubscriptionHandler(deps.SubscriptionService)
	subscriptionHandler.Register(api)

	accountHandler := http.NewAccountHandler(
		deps.OAuthService,
		deps.EmailRepo,
		deps.DedupCache,
	)
	accountHandler.Register(api)

	logger.Info("API server initialized successfully")

	return app, cleanup, nil
}

package bootstrap

import (
	"os"
	"strings"

	httpadapter "github.com/mailkeeper/agent/adapter/in/http"
	"github.com/mailkeeper/agent/config"
	"github.com/mailkeeper/agent/infra/middleware"
	"github.com/mailkeeper/agent/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
)

// NewAPI builds the Fiber app serving §4.R: health/ready plus the five
// authenticated routes, backed by the same Dependencies the worker
// process runs against (-mode=api|worker|all, §4.S).
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{Level: logLevel, Service: "mailagent-api"})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return nil, nil, err
	}

	middleware.InitTokenBlacklist(deps.Redis)

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	httpadapter.NewHealthHandler(deps.Mongo, deps.Redis).Register(app)

	v1 := app.Group("/v1")
	v1.Use(middleware.JWTAuth(cfg.JWTSecret))

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("component", "api").Logger()

	httpadapter.NewPipelineHandler(deps.Producer).Register(v1)
	httpadapter.NewFeedbackHandler(deps.Feedback).Register(v1)
	httpadapter.NewMessagesHandler(deps.DocumentStore).Register(v1)
	httpadapter.NewEventsHandler(deps.SSEHub, zlog).Register(v1)

	logger.Info("API server initialized")

	return app, cleanup, nil
}

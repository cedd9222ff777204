// Package server contains the HTTP handlers, session middleware and routing of the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "fundsphere/docs" // swagger docs
	"fundsphere/internal/cache"
	"fundsphere/internal/config"
	"fundsphere/internal/featureflags"
	"fundsphere/internal/middleware"
	"fundsphere/internal/notifications"
	"fundsphere/internal/repository"
	"fundsphere/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

const (
	maxFilesPerUpload = 10
	handlerTimeout    = 10 * time.Second
)

// Deps are the already-initialized collaborators of a Server. Redis,
// Ingestor and UploadDir are optional.
type Deps struct {
	Config   *config.Config
	Stores   *repository.Stores
	Redis    *redis.Client
	Ingestor service.MediaIngestor
	// UploadDir is served under /uploads when set.
	UploadDir string
	Clock     service.Clock
	// HashCost overrides the bcrypt cost; zero keeps the default.
	HashCost int
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	stores         *repository.Stores
	redis          *redis.Client
	cache          *cache.Store
	tokens         *middleware.TokenManager
	limiter        *middleware.RateLimiter
	promMiddleware *fiberprometheus.FiberPrometheus
	notifier       *notifications.Notifier
	featureFlags   *featureflags.Manager
	uploadDir      string
	app            *fiber.App

	campaignService *service.CampaignService
	userService     *service.UserService
	adminService    *service.AdminService
	deleter         *service.UserDeleter
}

// NewServer wires the services over deps.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("server: stores are required")
	}
	cfg := deps.Config
	store := cache.NewStore(deps.Redis)
	notifier := notifications.NewNotifier(deps.Redis)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	deleter := service.NewUserDeleter(deps.Stores.Intents, deps.Stores.Cascade, store).WithLeftoverCheck(deps.Stores.Campaigns)
	userService := service.NewUserService(deps.Stores.Users).WithCache(store)
	if deps.HashCost > 0 {
		userService.WithHashCost(deps.HashCost)
	}

	s := &Server{
		config:         cfg,
		stores:         deps.Stores,
		redis:          deps.Redis,
		cache:          store,
		tokens:         middleware.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL),
		limiter:        middleware.NewRateLimiter(deps.Redis, cfg.Env),
		promMiddleware: middleware.InitMetrics("fundsphere-api"),
		notifier:       notifier,
		featureFlags:   flags,
		uploadDir:      deps.UploadDir,
		campaignService: service.NewCampaignService(service.CampaignDeps{
			Campaigns:  deps.Stores.Campaigns,
			Audit:      deps.Stores.Audit,
			Ingestor:   deps.Ingestor,
			Milestones: service.MilestoneValidatorFor(cfg.StrictMilestones),
			Flags:      flags,
			Events:     notifier,
			Clock:      deps.Clock,
			Cache:      store,
			CacheTTL:   cfg.PublishedCacheTTL,
		}),
		userService:  userService,
		adminService: service.NewAdminService(deps.Stores.Users, deleter).WithCache(store),
		deleter:      deleter,
	}
	return s, nil
}

// Notifier exposes the campaign event publisher so the process can
// subscribe to the events it emits.
func (s *Server) Notifier() *notifications.Notifier {
	return s.notifier
}

// Deleter exposes the user deleter for the reconcile job.
func (s *Server) Deleter() *service.UserDeleter {
	return s.deleter
}

// App returns the configured Fiber app, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "FundSphere API",
		ErrorHandler: errorHandler,
		BodyLimit:    int(s.config.MaxUploadBytes())*maxFilesPerUpload + 1024*1024,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Propagates request and trace ids into the request context
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(compress.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" || origins == "*" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.limiter.Enabled()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/", s.HealthCheck)
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if s.uploadDir != "" {
		app.Static("/uploads", s.uploadDir, fiber.Static{
			ModifyResponse: func(c *fiber.Ctx) error {
				c.Set("Cross-Origin-Resource-Policy", "cross-origin")
				return nil
			},
		})
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/register", s.limiter.Limit(5, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", s.limiter.Limit(10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.Logout)
	auth.Get("/me", s.AuthRequired(), s.Me)

	profile := api.Group("/profile", s.AuthRequired())
	profile.Get("/", s.GetProfile)
	profile.Patch("/", s.UpdateProfile)
	profile.Patch("/deactivate", s.DeactivateProfile)

	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Get("/users", s.ListUsers)
	admin.Delete("/users", s.DeleteUsers)
	admin.Patch("/users/:userId/role", s.ChangeUserRole)
	admin.Patch("/users/:userId/activate", s.ActivateUser)
	admin.Patch("/users/:userId/deactivate", s.DeactivateUser)
	admin.Delete("/users/:userId", s.DeleteUser)
	admin.Get("/feature-flags", s.GetFeatureFlags)

	campaigns := api.Group("/campaigns", s.AuthRequired())
	campaigns.Post("/", s.CreateCampaign)
	// Static segments before /:id routes
	campaigns.Get("/published", s.ListPublishedCampaigns)
	campaigns.Get("/published/:id", s.GetPublishedCampaign)
	campaigns.Get("/user/published", s.ListMyPublishedCampaigns)
	campaigns.Get("/user/published/:id", s.GetMyPublishedCampaign)
	campaigns.Delete("/drafts", s.AdminRequired(), s.DeleteDraftCampaigns)
	campaigns.Post("/:id/media", s.limiter.Limit(30, time.Minute, "campaign_media"), s.UploadCampaignMedia)
	campaigns.Get("/:id/preview", s.PreviewCampaign)
	campaigns.Patch("/:id/publish", s.PublishCampaign)
}

// HealthCheck handles GET /
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	db := "Connected"
	if err := s.stores.Health.Ping(ctx); err != nil {
		db = "Disconnected"
	}
	return c.JSON(fiber.Map{
		"message": "Server is running...",
		"db":      db,
	})
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports store and cache connectivity. Redis is optional:
// without it the cache is bypassed and readiness only tracks the store.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := s.stores.Health.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.cache.Enabled() {
		redisStatus = "healthy"
		if err := s.cache.Ping(ctx); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store": dbStatus,
			"redis": redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port), slog.String("env", s.config.Env))
	if err := app.Listen(":" + s.config.Port); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Stores and Redis belong to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	middleware.Logger.Info("http server stopped")
	return nil
}

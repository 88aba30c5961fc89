// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/app/handlers"
	"github.com/amirphl/wa-pool/app/middleware"
	"github.com/amirphl/wa-pool/config"
	"github.com/amirphl/wa-pool/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const healthPath = "/api/v1/health"

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            *config.ProductionConfig
	logger         zerolog.Logger
	channelHandler handlers.ChannelHandlerInterface
	adminHandler   handlers.ChannelAdminHandlerInterface
	auth           *middleware.AuthMiddleware
	health         map[string]HealthCheck
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	channelHandler handlers.ChannelHandlerInterface,
	adminHandler handlers.ChannelAdminHandlerInterface,
	auth *middleware.AuthMiddleware,
	health map[string]HealthCheck,
	log zerolog.Logger,
) Router {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1024 * 1024
	}

	r := &FiberRouter{
		cfg:            cfg,
		logger:         log.With().Str("component", "router").Logger(),
		channelHandler: channelHandler,
		adminHandler:   adminHandler,
		auth:           auth,
		health:         health,
	}
	r.app = fiber.New(fiber.Config{
		AppName:      "wa-pool",
		ServerHeader: "wa-pool",
		ErrorHandler: r.errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit, func(c fiber.Ctx) string {
		return c.IP()
	}))

	// Tenant channel lifecycle, limited per tenant on connect
	channel := api.Group("/channel", r.auth.Authenticate())
	connectLimiter := r.rateLimiter(r.cfg.Security.ConnectRateLimit, func(c fiber.Ctx) string {
		tenantID, _ := middleware.GetTenantIDFromContext(c)
		return "connect:" + tenantID
	})
	channel.Post("/connect", connectLimiter, r.channelHandler.Connect)
	channel.Post("/disconnect", r.channelHandler.Disconnect)
	channel.Get("/status", r.channelHandler.Status)

	admin := api.Group("/admin", r.auth.AdminAuthenticate())
	channels := admin.Group("/channels")
	channels.Get("/", r.adminHandler.ListChannels)
	channels.Get("/stats", r.adminHandler.GetPoolStats)
	channels.Get("/export", r.adminHandler.ExportChannels)
	channels.Post("/ensure", r.adminHandler.EnsurePool)
	channels.Get("/:id/audit", r.adminHandler.ChannelAuditLog)
	channels.Post("/:id/refresh", r.adminHandler.RefreshChannel)
	channels.Delete("/:id", r.adminHandler.DeleteChannel)
	admin.Get("/tenants/:tenant/audit", r.adminHandler.TenantAuditLog)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	r.logger.Info().Msg("routes configured")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error().
				Str("request_id", requestid.FromContext(c)).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Interface("panic", e).
				Msg("panic recovered")
		},
	}))

	r.app.Use(middleware.Metrics(healthPath, r.cfg.Metrics.Path))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:            "no-referrer",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	sec := r.cfg.Security
	if len(sec.AllowedOrigins) > 0 {
		maxAge := sec.CORSMaxAge
		if maxAge <= 0 {
			maxAge = utils.CORSMaxAge
		}
		r.app.Use(cors.New(cors.Config{
			AllowOrigins:     sec.AllowedOrigins,
			AllowMethods:     sec.AllowedMethods,
			AllowHeaders:     sec.AllowedHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: sec.AllowCredentials,
			MaxAge:           maxAge,
		}))
	}

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))
}

// rateLimiter allows max requests per window and key; max <= 0 disables it
func (r *FiberRouter) rateLimiter(max int, key func(c fiber.Ctx) string) fiber.Handler {
	if max <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	window := r.cfg.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: key,
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
	})
}

func (r *FiberRouter) Start(address string) error {
	r.logger.Info().Str("address", address).Msg("starting server")
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

func (r *FiberRouter) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(r.health))
	healthy := true
	for name, check := range r.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := fiber.StatusOK
	message := "Service is healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		message = "Service is degraded"
	}
	return c.Status(status).JSON(dto.APIResponse{
		Success: healthy,
		Message: message,
		Data: fiber.Map{
			"checks":    checks,
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "wa-pool",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	r.logger.Error().Err(err).Int("status", code).Str("path", c.Path()).Msg("request failed")

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

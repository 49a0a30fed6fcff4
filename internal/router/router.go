package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/aisensei-api/internal/config"
	"github.com/noah-isme/aisensei-api/internal/handler"
	"github.com/noah-isme/aisensei-api/internal/middleware"
	"github.com/noah-isme/aisensei-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler       *handler.GradingHandler
	SubmissionHandler    *handler.SubmissionHandler
	GradingStreamHandler *handler.GradingStreamHandler
	Gateway              handler.GatewayHealthChecker
	JWTMiddleware        fiber.Handler
	GradingLimiter       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Gateway))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	limiter := deps.GradingLimiter
	if limiter == nil && cfg.GradingRateLimit > 0 {
		limiter = middleware.RateLimit("grading", cfg.GradingRateLimit, cfg.GradingRateTTL)
	}

	if deps.GradingHandler != nil {
		grading := api.Group("/grading", jwtMiddleware)
		deps.GradingHandler.Register(grading, limiter)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.GradingStreamHandler != nil {
		ws := api.Group("/ws", jwtMiddleware)
		deps.GradingStreamHandler.Register(ws)
	}
}

package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/aisensei-api/internal/config"
	"github.com/noah-isme/aisensei-api/internal/utils"
	"github.com/noah-isme/aisensei-api/pkg/llm"
)

// GatewayHealthChecker reports the health of the LLM gateway.
type GatewayHealthChecker interface {
	Health(ctx context.Context) (llm.Health, error)
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string      `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Service     string      `json:"service"`
	Environment string      `json:"environment"`
	Gateway     *llm.Health `json:"gateway,omitempty"`
}

// HealthCheck returns a handler that reports application health information.
// A configured but unreachable gateway yields 503.
func HealthCheck(cfg config.Config, gateway GatewayHealthChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if gateway != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 3*time.Second)
			defer cancel()

			health, err := gateway.Health(ctx)
			if err != nil {
				payload.Status = "degraded"
				return utils.Fail(c, fiber.StatusServiceUnavailable, "llm gateway unreachable", payload)
			}
			payload.Gateway = &health
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

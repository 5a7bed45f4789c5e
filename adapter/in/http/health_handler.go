// Package http implements the inbound HTTP surface (§4.R) over
// github.com/gofiber/fiber/v2.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mailkeeper/agent/pkg/metrics"
)

// HealthHandler serves liveness/readiness probes.
type HealthHandler struct {
	mongo *mongo.Client
	redis *redis.Client
}

func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{mongo: mongoClient, redis: redisClient}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/healthz", h.liveness)
	app.Get("/readyz", h.readiness)
}

func (h *HealthHandler) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HealthHandler) readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	if err := h.mongo.Ping(ctx, nil); err != nil {
		checks["mongo"] = err.Error()
		ready = false
	} else {
		checks["mongo"] = "ok"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		ready = false
	} else {
		checks["redis"] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
	}

	return c.JSON(fiber.Map{
		"status":  "ready",
		"checks":  checks,
		"pools":   metrics.GetAllPoolHealth(),
		"latency": metrics.GetAllLatencyStats(),
		"actions": metrics.ActionCounts(),
	})
}

package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Checker-Finance/nextgen-api/internal/store"
)

// RegisterRoutes registers all HTTP routes on the Fiber app.
func RegisterRoutes(app *fiber.App, st store.Store, client ClientStatus, handler *MasterHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"store":   "ok",
			"nextgen": "authenticated",
		}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		// Tokens are fetched lazily, so an idle gateway is not unhealthy.
		if !client.IsAuthenticated() {
			checks["nextgen"] = "unauthenticated"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")
	v1.Get("/client", handler.ClientInfoHandler)
	v1.Get("/master/codes", handler.CodesHandler)
	v1.Get("/master/codes/:category", handler.CodeDetailsHandler)
	v1.Get("/master/codes/:category/exists", handler.CodeExistsHandler)
}

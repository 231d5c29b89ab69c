package http

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
)

func NewApp(h *ItemHandler, m *metrics.Metrics, limits config.Limiter) *fiber.App {
	app := fiber.New()

	app.Use(otelfiber.Middleware())
	app.Use(m.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Catalog Service is alive!")
	})
	app.Get("/metrics", m.Handler())

	app.Use(limiter.New(limiter.Config{
		Max:        limits.Max,
		Expiration: limits.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	RegisterRoutes(app, h)
	return app
}

func RegisterRoutes(app fiber.Router, h *ItemHandler) {
	items := app.Group("/items")

	items.Post("", h.Create)
	items.Get("", h.List)
	items.Get("/:id", h.FindByID)
	items.Put("/:id", h.Update)
	items.Post("/:id/stock/adjust", h.AdjustStock)
	items.Post("/:id/stock/reserve", h.ReserveStock)
	items.Post("/:id/stock/release", h.ReleaseStock)
	items.Post("/:id/stock/commit", h.CommitStock)
	items.Post("/:id/deactivate", h.Deactivate)
	items.Post("/:id/activate", h.Activate)
}

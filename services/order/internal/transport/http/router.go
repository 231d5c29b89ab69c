package http

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
)

func NewApp(h *OrderHandler, m *metrics.Metrics, limits config.Limiter) *fiber.App {
	app := fiber.New()

	app.Use(otelfiber.Middleware())
	app.Use(m.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Order Service is alive!")
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

func RegisterRoutes(app fiber.Router, h *OrderHandler) {
	orders := app.Group("/orders")

	orders.Post("", h.CreateOrder)
	orders.Get("", h.ListOrders)
	orders.Get("/:id", h.GetOrder)
	orders.Post("/:id/validate", h.ValidateOrder)
	orders.Post("/:id/payment", h.BeginPayment)
	orders.Post("/:id/paid", h.MarkPaid)
	orders.Post("/:id/ship", h.Ship)
	orders.Post("/:id/deliver", h.Deliver)
	orders.Post("/:id/cancel", h.Cancel)
	orders.Post("/:id/items", h.AddItem)
	orders.Delete("/:id/items", h.ClearItems)
	orders.Put("/:id/customer", h.UpdateCustomer)
}

package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsRequests(t *testing.T) {
	m := metrics.New("catalog")

	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/items/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fulfillment_catalog_http_requests_total{method="GET",route="/items/:id",status="404"} 1`)
}

func TestOutboxCounters(t *testing.T) {
	m := metrics.New("order")

	m.OutboxPublished("order_events")
	m.OutboxPublished("order_events")
	m.OutboxFailed("order_events")
	m.EventConsumed("InventoryReserved", "ok")

	count, err := testutil.GatherAndCount(m.Registry(),
		"fulfillment_order_outbox_published_total",
		"fulfillment_order_outbox_failed_total",
		"fulfillment_order_events_consumed_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

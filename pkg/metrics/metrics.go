package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fulfillment"

type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	latencyMS       *prometheus.HistogramVec
	outboxPublished *prometheus.CounterVec
	outboxFailed    *prometheus.CounterVec
	eventsConsumed  *prometheus.CounterVec
}

// New builds the collectors of one service on a private registry.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route", "method"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "outbox_published_total",
			Help:      "Outbox rows published to Kafka.",
		}, []string{"topic"}),
		outboxFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish attempts that failed.",
		}, []string{"topic"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "events_consumed_total",
			Help:      "Integration events consumed from Kafka.",
		}, []string{"event", "result"}),
	}

	reg.MustRegister(m.requests, m.latencyMS, m.outboxPublished, m.outboxFailed, m.eventsConsumed)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records count and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.requests.WithLabelValues(route, c.Method(), strconv.Itoa(status)).Inc()
		m.latencyMS.WithLabelValues(route, c.Method()).Observe(float64(time.Since(start).Milliseconds()))

		return err
	}
}

func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	}))
}

func (m *Metrics) OutboxPublished(topic string) {
	m.outboxPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxFailed(topic string) {
	m.outboxFailed.WithLabelValues(topic).Inc()
}

func (m *Metrics) EventConsumed(event, result string) {
	m.eventsConsumed.WithLabelValues(event, result).Inc()
}

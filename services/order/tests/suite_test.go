package tests

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/kafka"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	outboxRepository "github.com/sakashimaa/fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/testsuite"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	OrderService    service.OrderService
	TestProducer    kafka.Producer
	OutboxProcessor *worker.OutboxProcessor
	workerCancel    context.CancelFunc
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../migrations")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("orders")
	s.BaseSuite.TruncateTable("outbox")
	s.BaseSuite.TruncateTable("processed_events")

	logger := zap.NewNop()
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)

	var err error
	s.TestProducer, err = kafka.NewProducer(s.KafkaBrokers, logger)
	s.Require().NoError(err, "failed to create kafka producer")

	s.OrderService = service.NewOrderService(s.DbPool, logger, orderRepo, outboxRepo)

	s.OutboxProcessor = worker.NewOutboxProcessor(
		s.DbPool,
		outboxRepo,
		s.TestProducer,
		metrics.New("order_test"),
		config.Outbox{BatchSize: 50, Interval: 100 * time.Millisecond, MaxAttempts: 10},
		logger,
	)

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go func() {
		_ = s.OutboxProcessor.Start(workerCtx)
	}()
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.TestProducer != nil {
		_ = s.TestProducer.Close()
	}
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration tests need docker")
	}

	suite.Run(t, new(IntegrationTestSuite))
}

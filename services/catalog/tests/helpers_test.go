package tests

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) createItem(code string, stock int) *domain.Item {
	item, err := s.ItemService.Create(s.Ctx, service.CreateItemInput{
		Code:         code,
		Name:         "Test " + code,
		Description:  "integration item",
		Price:        decimal.RequireFromString("25.99"),
		InitialStock: stock,
		Category:     "Electronics",
	})
	s.Require().NoError(err)

	return item
}

func (s *IntegrationTestSuite) outboxEventTypes(aggregateID string) []string {
	rows, err := s.DbPool.Query(s.Ctx, `
		SELECT event_type
		FROM outbox
		WHERE aggregate_id = $1
		ORDER BY id
	`, aggregateID)
	s.Require().NoError(err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var eventType string
		s.Require().NoError(rows.Scan(&eventType))
		types = append(types, eventType)
	}
	s.Require().NoError(rows.Err())

	return types
}

func (s *IntegrationTestSuite) requirePublished(aggregateID, eventType string) {
	query := `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = $2
		ORDER BY id DESC
		LIMIT 1
	`

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time

		err := s.DbPool.QueryRow(s.Ctx, query, aggregateID, eventType).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) stock(id uuid.UUID) (available, reserved int) {
	err := s.DbPool.QueryRow(s.Ctx, `SELECT available, reserved FROM items WHERE id = $1`, id).
		Scan(&available, &reserved)
	s.Require().NoError(err)

	return available, reserved
}

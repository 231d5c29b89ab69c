package tests

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/repository"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCreateItem_Success() {
	item := s.createItem("TEST-001", 100)

	var dbName, dbPrice string
	var version int64
	err := s.DbPool.QueryRow(s.Ctx, `SELECT name, price::text, version FROM items WHERE id = $1`, item.ID()).
		Scan(&dbName, &dbPrice, &version)
	s.Require().NoError(err)
	s.Require().Equal("Test TEST-001", dbName)
	s.Require().Equal("25.99", dbPrice)
	s.Require().Equal(int64(1), version)

	s.Require().Equal([]string{domain.EventItemCreated}, s.outboxEventTypes(item.ID().String()))
	s.requirePublished(item.ID().String(), domain.EventItemCreated)
}

func (s *IntegrationTestSuite) TestCreateItem_DuplicateCode() {
	s.createItem("TEST-001", 1)

	_, err := s.ItemService.Create(s.Ctx, service.CreateItemInput{
		Code:     "TEST-001",
		Name:     "Other",
		Price:    decimal.NewFromInt(1),
		Category: "Books",
	})
	s.Require().ErrorIs(err, repository.ErrDuplicateCode)
}

func (s *IntegrationTestSuite) TestCreateItem_ContextTimeout() {
	ctxTimeout, cancel := context.WithTimeout(s.Ctx, time.Nanosecond)
	defer cancel()

	_, err := s.ItemService.Create(ctxTimeout, service.CreateItemInput{
		Code:     "TEST-002",
		Name:     "Late",
		Price:    decimal.NewFromInt(1),
		Category: "Books",
	})
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (s *IntegrationTestSuite) TestStockOperations_PersistAndEmit() {
	item := s.createItem("TEST-001", 100)

	_, err := s.ItemService.ReserveStock(s.Ctx, item.ID(), 25)
	s.Require().NoError(err)
	_, err = s.ItemService.ReleaseStock(s.Ctx, item.ID(), 5)
	s.Require().NoError(err)
	updated, err := s.ItemService.CommitStock(s.Ctx, item.ID(), 10)
	s.Require().NoError(err)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(80, available)
	s.Require().Equal(10, reserved)
	s.Require().Equal(int64(4), updated.Version())

	s.Require().Equal([]string{
		domain.EventItemCreated,
		domain.EventStockReserved,
		domain.EventStockReleased,
		domain.EventStockCommitted,
	}, s.outboxEventTypes(item.ID().String()))
}

func (s *IntegrationTestSuite) TestReserveStock_Insufficient() {
	item := s.createItem("TEST-001", 50)

	_, err := s.ItemService.ReserveStock(s.Ctx, item.ID(), 60)
	s.Require().ErrorIs(err, generalDomain.ErrConflict)

	available, reserved := s.stock(item.ID())
	s.Require().Equal(50, available)
	s.Require().Equal(0, reserved)
	s.Require().Equal([]string{domain.EventItemCreated}, s.outboxEventTypes(item.ID().String()))
}

func (s *IntegrationTestSuite) TestDeactivate_IsIdempotent() {
	item := s.createItem("TEST-001", 5)

	first, err := s.ItemService.Deactivate(s.Ctx, item.ID())
	s.Require().NoError(err)
	s.Require().False(first.IsActive())

	second, err := s.ItemService.Deactivate(s.Ctx, item.ID())
	s.Require().NoError(err)
	s.Require().Equal(first.Version(), second.Version())

	s.Require().Equal([]string{
		domain.EventItemCreated,
		domain.EventItemDeactivated,
	}, s.outboxEventTypes(item.ID().String()))

	_, err = s.ItemService.ReserveStock(s.Ctx, item.ID(), 1)
	s.Require().ErrorIs(err, generalDomain.ErrState)
}

func (s *IntegrationTestSuite) cachedVersion(id uuid.UUID) string {
	version, err := s.Redis.HGet(s.Ctx, "item:"+id.String(), "version").Result()
	s.Require().NoError(err)

	return version
}

func (s *IntegrationTestSuite) TestFindByID_CachesAndRefreshes() {
	item := s.createItem("TEST-001", 5)

	found, err := s.ItemService.FindByID(s.Ctx, item.ID())
	s.Require().NoError(err)
	s.Require().Equal(5, found.Stock().Available())
	s.Require().Equal("1", s.cachedVersion(item.ID()))

	adjusted, err := s.ItemService.AdjustStock(s.Ctx, item.ID(), 42)
	s.Require().NoError(err)
	s.Require().Equal(strconv.FormatInt(adjusted.Version(), 10), s.cachedVersion(item.ID()))

	found, err = s.ItemService.FindByID(s.Ctx, item.ID())
	s.Require().NoError(err)
	s.Require().Equal(42, found.Stock().Available())
}

func (s *IntegrationTestSuite) TestItemCache_StaleReadDoesNotOverwrite() {
	cache := service.NewItemCache(s.Redis, time.Minute)

	// A read-through loaded version 1 before a concurrent adjustment.
	stale, err := s.BaseService.FindByID(s.Ctx, s.createItem("TEST-001", 5).ID())
	s.Require().NoError(err)

	adjusted, err := s.ItemService.AdjustStock(s.Ctx, stale.ID(), 42)
	s.Require().NoError(err)

	written, err := cache.Store(s.Ctx, stale)
	s.Require().NoError(err)
	s.Require().False(written)

	cached, err := cache.Get(s.Ctx, stale.ID())
	s.Require().NoError(err)
	s.Require().Equal(adjusted.Version(), cached.Version())
	s.Require().Equal(42, cached.Stock().Available())

	found, err := s.ItemService.FindByID(s.Ctx, stale.ID())
	s.Require().NoError(err)
	s.Require().Equal(42, found.Stock().Available())
}

func (s *IntegrationTestSuite) TestItemCache_ExpiresAndInvalidates() {
	cache := service.NewItemCache(s.Redis, time.Minute)
	item := s.createItem("TEST-001", 5)

	written, err := cache.Store(s.Ctx, item)
	s.Require().NoError(err)
	s.Require().True(written)

	ttl, err := s.Redis.PTTL(s.Ctx, "item:"+item.ID().String()).Result()
	s.Require().NoError(err)
	s.Require().Positive(ttl)

	s.Require().NoError(cache.Invalidate(s.Ctx, item.ID()))

	_, err = cache.Get(s.Ctx, item.ID())
	s.Require().ErrorIs(err, redis.Nil)
}

func (s *IntegrationTestSuite) TestList_Search() {
	s.createItem("BOOK-1", 1)
	s.createItem("BOOK-2", 1)
	s.createItem("LAMP-1", 1)

	items, total, err := s.ItemService.List(s.Ctx, 10, 0, "book")
	s.Require().NoError(err)
	s.Require().Equal(int64(2), total)
	s.Require().Len(items, 2)

	items, total, err = s.ItemService.List(s.Ctx, 1, 0, "")
	s.Require().NoError(err)
	s.Require().Equal(int64(3), total)
	s.Require().Len(items, 1)
}

func (s *IntegrationTestSuite) TestUpdate_UsesStoredVersion() {
	item := s.createItem("TEST-001", 5)

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE items SET version = version + 1 WHERE id = $1`, item.ID())
	s.Require().NoError(err)

	updated, err := s.ItemService.Update(s.Ctx, item.ID(), service.UpdateItemInput{
		Name:     "Renamed",
		Price:    decimal.RequireFromString("19.99"),
		Category: "Electronics",
	})
	s.Require().NoError(err)
	s.Require().Equal("Renamed", updated.Name())
	s.Require().Equal(int64(3), updated.Version())
}

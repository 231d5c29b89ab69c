package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"go.uber.org/zap"
)

type cachedItemService struct {
	next   ItemService
	cache  *ItemCache
	logger *zap.Logger
}

func NewCachedItemService(next ItemService, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) ItemService {
	return &cachedItemService{
		next:   next,
		cache:  NewItemCache(redisClient, cacheTTL),
		logger: logger,
	}
}

func (s *cachedItemService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	item, err := s.cache.Get(ctx, id)
	switch {
	case err == nil:
		return item, nil
	case !isCacheMiss(err):
		mylogger.Warn(ctx, s.logger, "Dropping unreadable cache entry", zap.String("key", itemKey(id)), zap.Error(err))
		s.invalidate(ctx, id)
	}

	item, err = s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.store(ctx, item)
	return item, nil
}

func (s *cachedItemService) Create(ctx context.Context, input CreateItemInput) (*domain.Item, error) {
	return s.next.Create(ctx, input)
}

func (s *cachedItemService) List(ctx context.Context, limit, offset int64, search string) ([]*domain.Item, int64, error) {
	return s.next.List(ctx, limit, offset, search)
}

func (s *cachedItemService) Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.Update(ctx, id, input))
}

func (s *cachedItemService) AdjustStock(ctx context.Context, id uuid.UUID, newAvailable int) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.AdjustStock(ctx, id, newAvailable))
}

func (s *cachedItemService) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.ReserveStock(ctx, id, quantity))
}

func (s *cachedItemService) ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.ReleaseStock(ctx, id, quantity))
}

func (s *cachedItemService) CommitStock(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.CommitStock(ctx, id, quantity))
}

func (s *cachedItemService) Deactivate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.Deactivate(ctx, id))
}

func (s *cachedItemService) Activate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.afterMutation(ctx, id)(s.next.Activate(ctx, id))
}

func (s *cachedItemService) SettlePending(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.next.SettlePending(ctx, id)
	s.refresh(ctx, ids...)
	return ids, err
}

func (s *cachedItemService) ReserveForOrder(ctx context.Context, msg *generalDomain.OrderCreatedMessage) ([]uuid.UUID, error) {
	ids, err := s.next.ReserveForOrder(ctx, msg)
	s.refresh(ctx, ids...)
	return ids, err
}

func (s *cachedItemService) ReleaseForOrder(ctx context.Context, msg *generalDomain.OrderCancelledMessage) ([]uuid.UUID, error) {
	ids, err := s.next.ReleaseForOrder(ctx, msg)
	s.refresh(ctx, ids...)
	return ids, err
}

func (s *cachedItemService) CommitForOrder(ctx context.Context, msg *generalDomain.OrderShippedMessage) ([]uuid.UUID, error) {
	ids, err := s.next.CommitForOrder(ctx, msg)
	s.refresh(ctx, ids...)
	return ids, err
}

func (s *cachedItemService) afterMutation(ctx context.Context, id uuid.UUID) func(*domain.Item, error) (*domain.Item, error) {
	return func(item *domain.Item, err error) (*domain.Item, error) {
		if err == nil {
			s.store(ctx, item)
		}

		return item, err
	}
}

// refresh reloads items changed by a saga step so their entries move forward.
func (s *cachedItemService) refresh(ctx context.Context, ids ...uuid.UUID) {
	for _, id := range ids {
		item, err := s.next.FindByID(ctx, id)
		if err != nil {
			s.invalidate(ctx, id)
			continue
		}

		s.store(ctx, item)
	}
}

func (s *cachedItemService) store(ctx context.Context, item *domain.Item) {
	if _, err := s.cache.Store(ctx, item); err != nil {
		mylogger.Warn(ctx, s.logger, "Cache write failed", zap.String("key", itemKey(item.ID())), zap.Error(err))
		s.invalidate(ctx, item.ID())
	}
}

func (s *cachedItemService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		mylogger.Warn(ctx, s.logger, "Cache invalidation failed", zap.Int("items", len(ids)), zap.Error(err))
	}
}

package service

import (
	"context"
	"errors"

	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"go.uber.org/zap"
)

func retryOnConflict(ctx context.Context, logger *zap.Logger, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, repository.ErrConcurrentUpdate) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		mylogger.Warn(
			ctx,
			logger,
			"Concurrent order update, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
		)
	}

	return err
}

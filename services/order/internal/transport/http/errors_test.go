package http

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: generalDomain.NewValidationError("bad"), want: fiber.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("wrap: %w", repository.ErrOrderNotFound), want: fiber.StatusNotFound},
		{name: "state", err: generalDomain.NewStateError("only paid orders can be shipped"), want: fiber.StatusConflict},
		{name: "concurrent", err: fmt.Errorf("error during Ship: %w", repository.ErrConcurrentUpdate), want: fiber.StatusConflict},
		{name: "timeout", err: context.DeadlineExceeded, want: fiber.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("db down"), want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCode(tt.err))
		})
	}
}

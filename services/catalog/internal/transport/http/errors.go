package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/repository"
)

func mapErrorCode(err error) int {
	switch {
	case errors.Is(err, generalDomain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrItemNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, generalDomain.ErrState),
		errors.Is(err, generalDomain.ErrConflict),
		errors.Is(err, repository.ErrConcurrentUpdate),
		errors.Is(err, repository.ErrDuplicateCode):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	if status == fiber.StatusInternalServerError {
		return "internal error"
	}

	return err.Error()
}

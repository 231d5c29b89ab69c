package http

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ItemHandler struct {
	service  service.ItemService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewItemHandler(service service.ItemService, logger *zap.Logger, timeout time.Duration) *ItemHandler {
	return &ItemHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

func (h *ItemHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(CreateItemInput)
	if !h.parseBody(ctx, c, input) {
		return nil
	}

	item, err := h.service.Create(ctx, service.CreateItemInput{
		Code:         input.Code,
		Name:         input.Name,
		Description:  input.Description,
		Price:        input.Price,
		Currency:     input.Currency,
		InitialStock: input.InitialStock,
		Category:     input.Category,
	})
	if err != nil {
		return h.fail(ctx, c, "create item failed", err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"create item succeeded",
		zap.String("item_id", item.ID().String()),
	)

	return c.Status(fiber.StatusCreated).JSON(toItemResponse(item))
}

func (h *ItemHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	item, err := h.service.FindByID(ctx, id)
	if err != nil {
		return h.fail(ctx, c, "find item failed", err, zap.String("item_id", id.String()))
	}

	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *ItemHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		mylogger.Warn(ctx, h.logger, "limit is invalid", zap.String("limit", c.Query("limit")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit is invalid",
		})
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		mylogger.Warn(ctx, h.logger, "offset is invalid", zap.String("offset", c.Query("offset")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "offset is invalid",
		})
	}

	search := c.Query("search")

	items, total, err := h.service.List(ctx, int64(limit), int64(offset), search)
	if err != nil {
		return h.fail(ctx, c, "list items failed", err)
	}

	res := ListItemsResponse{
		Items:      make([]ItemResponse, 0, len(items)),
		TotalCount: total,
	}
	for _, item := range items {
		res.Items = append(res.Items, toItemResponse(item))
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *ItemHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	input := new(UpdateItemInput)
	if !h.parseBody(ctx, c, input) {
		return nil
	}

	item, err := h.service.Update(ctx, id, service.UpdateItemInput{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Currency:    input.Currency,
		Category:    input.Category,
	})
	if err != nil {
		return h.fail(ctx, c, "update item failed", err, zap.String("item_id", id.String()))
	}

	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *ItemHandler) AdjustStock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	input := new(AdjustStockInput)
	if !h.parseBody(ctx, c, input) {
		return nil
	}

	item, err := h.service.AdjustStock(ctx, id, *input.Available)
	if err != nil {
		return h.fail(ctx, c, "adjust stock failed", err, zap.String("item_id", id.String()))
	}

	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *ItemHandler) ReserveStock(c *fiber.Ctx) error {
	return h.quantityOperation(c, "reserve stock", h.service.ReserveStock)
}

func (h *ItemHandler) ReleaseStock(c *fiber.Ctx) error {
	return h.quantityOperation(c, "release stock", h.service.ReleaseStock)
}

func (h *ItemHandler) CommitStock(c *fiber.Ctx) error {
	return h.quantityOperation(c, "commit stock", h.service.CommitStock)
}

func (h *ItemHandler) Deactivate(c *fiber.Ctx) error {
	return h.idOperation(c, "deactivate item", h.service.Deactivate)
}

// Activate also settles reservations that were parked while the item was
// inactive. A failed settlement does not fail the activation.
func (h *ItemHandler) Activate(c *fiber.Ctx) error {
	return h.idOperation(c, "activate item", func(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
		item, err := h.service.Activate(ctx, id)
		if err != nil {
			return nil, err
		}

		settled, err := h.service.SettlePending(ctx, id)
		if err != nil {
			mylogger.Error(ctx, h.logger, "settling parked reservations failed", zap.String("item_id", id.String()), zap.Error(err))
		}
		if len(settled) == 0 {
			return item, nil
		}

		mylogger.Info(ctx, h.logger, "parked reservations settled", zap.String("item_id", id.String()), zap.Int("items", len(settled)))
		return h.service.FindByID(ctx, id)
	})
}

func (h *ItemHandler) quantityOperation(
	c *fiber.Ctx,
	name string,
	op func(ctx context.Context, id uuid.UUID, quantity int) (*domain.Item, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	input := new(QuantityInput)
	if !h.parseBody(ctx, c, input) {
		return nil
	}

	item, err := op(ctx, id, input.Quantity)
	if err != nil {
		return h.fail(ctx, c, name+" failed", err,
			zap.String("item_id", id.String()),
			zap.Int("quantity", input.Quantity),
		)
	}

	mylogger.Info(
		ctx,
		h.logger,
		name+" succeeded",
		zap.String("item_id", id.String()),
		zap.Int("quantity", input.Quantity),
	)

	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *ItemHandler) idOperation(
	c *fiber.Ctx,
	name string,
	op func(ctx context.Context, id uuid.UUID) (*domain.Item, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	item, err := op(ctx, id)
	if err != nil {
		return h.fail(ctx, c, name+" failed", err, zap.String("item_id", id.String()))
	}

	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

// parseID and parseBody write the 400 response themselves and report
// whether the handler may continue.
func (h *ItemHandler) parseID(ctx context.Context, c *fiber.Ctx) (uuid.UUID, bool) {
	idStr := c.Params("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "invalid item id", zap.String("id", idStr))

		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid item id",
		})
		return uuid.Nil, false
	}

	return id, true
}

func (h *ItemHandler) parseBody(ctx context.Context, c *fiber.Ctx, input any) bool {
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
		return false
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "input validation failed", zap.Error(err))

		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
		return false
	}

	return true
}

func (h *ItemHandler) fail(ctx context.Context, c *fiber.Ctx, msg string, err error, fields ...zap.Field) error {
	httpCode := mapErrorCode(err)

	fields = append(fields, zap.Int("http_code", httpCode), zap.Error(err))
	if httpCode >= fiber.StatusInternalServerError {
		mylogger.Error(ctx, h.logger, msg, fields...)
	} else {
		mylogger.Warn(ctx, h.logger, msg, fields...)
	}

	return c.Status(httpCode).JSON(fiber.Map{
		"error": errorMessage(httpCode, err),
	})
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}

	return strconv.Atoi(raw)
}

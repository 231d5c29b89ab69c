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
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type OrderHandler struct {
	service  service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(CreateOrderInput)
	if !h.parseBody(ctx, c, input) {
		return nil
	}

	items := make([]service.LineItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, toServiceLine(item))
	}

	order, err := h.service.CreateOrder(ctx, service.CreateOrderInput{
		CustomerID: input.CustomerID,
		Currency:   input.Currency,
		Items:      items,
	})
	if err != nil {
		return h.fail(ctx, c, "create order failed", err, zap.String("customer_id", input.CustomerID))
	}

	mylogger.Info(
		ctx,
		h.logger,
		"create order succeeded",
		zap.String("order_id", order.ID().String()),
	)

	return c.Status(fiber.StatusCreated).JSON(toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	return h.idOperation(c, "get order", h.service.GetOrder)
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	customerID := c.Query("customer_id")
	if customerID == "" {
		mylogger.Warn(ctx, h.logger, "customer_id is missing")

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "customer_id is required",
		})
	}

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

	orders, total, err := h.service.ListOrders(ctx, customerID, int64(limit), int64(offset))
	if err != nil {
		return h.fail(ctx, c, "list orders failed", err, zap.String("customer_id", customerID))
	}

	res := ListOrdersResponse{
		Orders:     make([]OrderResponse, 0, len(orders)),
		TotalCount: total,
	}
	for _, order := range orders {
		res.Orders = append(res.Orders, toOrderResponse(order))
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *OrderHandler) ValidateOrder(c *fiber.Ctx) error {
	return h.idOperation(c, "validate order", h.service.ValidateOrder)
}

func (h *OrderHandler) BeginPayment(c *fiber.Ctx) error {
	return h.idOperation(c, "begin payment", h.service.BeginPayment)
}

func (h *OrderHandler) MarkPaid(c *fiber.Ctx) error {
	return h.idOperation(c, "mark paid", h.service.MarkPaid)
}

func (h *OrderHandler) Deliver(c *fiber.Ctx) error {
	return h.idOperation(c, "deliver order", h.service.Deliver)
}

func (h *OrderHandler) ClearItems(c *fiber.Ctx) error {
	return h.idOperation(c, "clear items", h.service.ClearItems)
}

func (h *OrderHandler) Ship(c *fiber.Ctx) error {
	input := new(ShipInput)
	return h.bodyOperation(c, "ship order", input, func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		return h.service.Ship(ctx, id, input.TrackingNumber)
	})
}

// Cancel accepts an empty body; the reason is optional.
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return h.idOperation(c, "cancel order", func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return h.service.Cancel(ctx, id, "")
		})
	}

	input := new(CancelInput)
	return h.bodyOperation(c, "cancel order", input, func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		return h.service.Cancel(ctx, id, input.Reason)
	})
}

func (h *OrderHandler) AddItem(c *fiber.Ctx) error {
	input := new(AddItemInput)
	return h.bodyOperation(c, "add item", input, func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		return h.service.AddItem(ctx, id, input.Currency, toServiceLine(input.LineItemInput))
	})
}

func (h *OrderHandler) UpdateCustomer(c *fiber.Ctx) error {
	input := new(UpdateCustomerInput)
	return h.bodyOperation(c, "update customer", input, func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		return h.service.UpdateCustomer(ctx, id, input.CustomerID)
	})
}

func (h *OrderHandler) idOperation(
	c *fiber.Ctx,
	name string,
	op func(ctx context.Context, id uuid.UUID) (*domain.Order, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	order, err := op(ctx, id)
	if err != nil {
		return h.fail(ctx, c, name+" failed", err, zap.String("order_id", id.String()))
	}

	return c.Status(fiber.StatusOK).JSON(toOrderResponse(order))
}

// bodyOperation parses input before calling op, which reads it through
// its closure.
func (h *OrderHandler) bodyOperation(
	c *fiber.Ctx,
	name string,
	input any,
	op func(ctx context.Context, id uuid.UUID) (*domain.Order, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := h.parseID(ctx, c)
	if !ok {
		return nil
	}

	if !h.parseBody(ctx, c, input) {
		return nil
	}

	order, err := op(ctx, id)
	if err != nil {
		return h.fail(ctx, c, name+" failed", err, zap.String("order_id", id.String()))
	}

	mylogger.Info(
		ctx,
		h.logger,
		name+" succeeded",
		zap.String("order_id", id.String()),
		zap.String("status", string(order.Status())),
	)

	return c.Status(fiber.StatusOK).JSON(toOrderResponse(order))
}

func (h *OrderHandler) parseID(ctx context.Context, c *fiber.Ctx) (uuid.UUID, bool) {
	idStr := c.Params("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "invalid order id", zap.String("id", idStr))

		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
		return uuid.Nil, false
	}

	return id, true
}

func (h *OrderHandler) parseBody(ctx context.Context, c *fiber.Ctx, input any) bool {
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

func (h *OrderHandler) fail(ctx context.Context, c *fiber.Ctx, msg string, err error, fields ...zap.Field) error {
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

func toServiceLine(input LineItemInput) service.LineItemInput {
	return service.LineItemInput{
		ProductRef: input.ProductRef,
		Quantity:   input.Quantity,
		UnitPrice:  input.UnitPrice,
	}
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}

	return strconv.Atoi(raw)
}

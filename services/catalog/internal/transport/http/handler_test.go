package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/repository"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubItemService struct {
	service.ItemService
	item *domain.Item
	err  error

	settled     []uuid.UUID
	settleErr   error
	settleCalls int
}

func (s *stubItemService) Create(_ context.Context, input service.CreateItemInput) (*domain.Item, error) {
	if s.err != nil {
		return nil, s.err
	}

	code, err := generalDomain.NewProductCode(input.Code)
	if err != nil {
		return nil, err
	}

	price, err := generalDomain.NewMoneyIn(input.Price, "USD")
	if err != nil {
		return nil, err
	}

	item, _, err := domain.NewItem(code, input.Name, input.Description, price, input.InitialStock, input.Category)
	return item, err
}

func (s *stubItemService) FindByID(_ context.Context, _ uuid.UUID) (*domain.Item, error) {
	return s.item, s.err
}

func (s *stubItemService) ReserveStock(_ context.Context, _ uuid.UUID, quantity int) (*domain.Item, error) {
	if s.err != nil {
		return nil, s.err
	}

	if _, err := s.item.ReserveStock(quantity); err != nil {
		return nil, err
	}

	return s.item, nil
}

func (s *stubItemService) Activate(_ context.Context, _ uuid.UUID) (*domain.Item, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.item.Activate()
	return s.item, nil
}

func (s *stubItemService) SettlePending(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	s.settleCalls++
	return s.settled, s.settleErr
}

func newTestApp(svc service.ItemService) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, NewItemHandler(svc, zap.NewNop(), time.Second))
	return app
}

func sampleItem(t *testing.T, stock int) *domain.Item {
	t.Helper()

	code, err := generalDomain.NewProductCode("TEST-001")
	require.NoError(t, err)
	price, err := generalDomain.ParseMoney("25.99", "USD")
	require.NoError(t, err)

	item, _, err := domain.NewItem(code, "Test", "", price, stock, "Electronics")
	require.NoError(t, err)

	return item
}

func TestCreate_Created(t *testing.T) {
	app := newTestApp(&stubItemService{})

	body := `{"code":"TEST-001","name":"Test","price":"25.99","initial_stock":100,"category":"Electronics"}`
	req := httptest.NewRequest("POST", "/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var res ItemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "TEST-001", res.Code)
	assert.Equal(t, "25.99", res.Price.Amount)
	assert.Equal(t, "USD", res.Price.Currency)
	assert.Equal(t, 100, res.Available)
	assert.True(t, res.Active)
}

func TestCreate_InvalidInput(t *testing.T) {
	app := newTestApp(&stubItemService{})

	req := httptest.NewRequest("POST", "/items", strings.NewReader(`{"code":"","name":"Test","category":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestFindByID(t *testing.T) {
	item := sampleItem(t, 3)

	resp, err := newTestApp(&stubItemService{item: item}).Test(httptest.NewRequest("GET", "/items/"+item.ID().String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = newTestApp(&stubItemService{}).Test(httptest.NewRequest("GET", "/items/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = newTestApp(&stubItemService{err: repository.ErrItemNotFound}).Test(httptest.NewRequest("GET", "/items/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestReserveStock_Conflict(t *testing.T) {
	item := sampleItem(t, 50)
	app := newTestApp(&stubItemService{item: item})

	req := httptest.NewRequest("POST", "/items/"+item.ID().String()+"/stock/reserve", strings.NewReader(`{"quantity":60}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Only 50 available")
	assert.Equal(t, 50, item.Stock().Available())
}

func TestReserveStock_RejectsNonPositiveQuantity(t *testing.T) {
	item := sampleItem(t, 50)
	app := newTestApp(&stubItemService{item: item})

	req := httptest.NewRequest("POST", "/items/"+item.ID().String()+"/stock/reserve", strings.NewReader(`{"quantity":0}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestActivate_SettlesParkedReservations(t *testing.T) {
	item := sampleItem(t, 5)
	item.Deactivate()

	svc := &stubItemService{item: item, settled: []uuid.UUID{item.ID()}}
	resp, err := newTestApp(svc).Test(httptest.NewRequest("POST", "/items/"+item.ID().String()+"/activate", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.settleCalls)
	assert.True(t, item.IsActive())
}

func TestActivate_SettlementFailureKeepsActivation(t *testing.T) {
	item := sampleItem(t, 5)
	item.Deactivate()

	svc := &stubItemService{item: item, settleErr: errors.New("connection refused")}
	resp, err := newTestApp(svc).Test(httptest.NewRequest("POST", "/items/"+item.ID().String()+"/activate", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.settleCalls)
}

func TestActivate_NotFoundSkipsSettlement(t *testing.T) {
	svc := &stubItemService{err: repository.ErrItemNotFound}
	resp, err := newTestApp(svc).Test(httptest.NewRequest("POST", "/items/"+uuid.NewString()+"/activate", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Zero(t, svc.settleCalls)
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

const MaxNameLength = 200

// Item is a catalog entry and the aggregate root for its stock. Every
// mutating method validates before touching state and returns the events
// it raised; a call that changes nothing returns no events and keeps the
// version.
type Item struct {
	id          uuid.UUID
	code        generalDomain.ProductCode
	name        string
	description string
	price       generalDomain.Money
	stock       generalDomain.StockCounters
	category    string
	active      bool
	createdAt   time.Time
	updatedAt   time.Time
	version     int64
}

func NewItem(
	code generalDomain.ProductCode,
	name string,
	description string,
	price generalDomain.Money,
	initialStock int,
	category string,
) (*Item, []generalDomain.Event, error) {
	if code.IsZero() {
		return nil, nil, generalDomain.NewValidationError("product code is required")
	}

	if err := validateName(name); err != nil {
		return nil, nil, err
	}

	if err := validateCategory(category); err != nil {
		return nil, nil, err
	}

	if err := validatePrice(price); err != nil {
		return nil, nil, err
	}

	stock, err := generalDomain.NewStockCounters(initialStock, 0)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	item := &Item{
		id:          uuid.New(),
		code:        code,
		name:        name,
		description: description,
		price:       price,
		stock:       stock,
		category:    category,
		active:      true,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}

	return item, []generalDomain.Event{ItemCreated{
		EventMeta: generalDomain.NewEventMeta(),
		ItemID:    item.id,
		Code:      item.code.String(),
		Name:      item.name,
		Price:     item.price,
		Available: stock.Available(),
		Category:  item.category,
	}}, nil
}

func (i *Item) ID() uuid.UUID { return i.id }
func (i *Item) Code() generalDomain.ProductCode { return i.code }
func (i *Item) Name() string { return i.name }
func (i *Item) Description() string { return i.description }
func (i *Item) Price() generalDomain.Money { return i.price }
func (i *Item) Stock() generalDomain.StockCounters { return i.stock }
func (i *Item) Category() string { return i.category }
func (i *Item) IsActive() bool { return i.active }
func (i *Item) CreatedAt() time.Time { return i.createdAt }
func (i *Item) UpdatedAt() time.Time { return i.updatedAt }
func (i *Item) Version() int64 { return i.version }

func (i *Item) Update(
	name string,
	description string,
	price generalDomain.Money,
	category string,
) ([]generalDomain.Event, error) {
	if !i.active {
		return nil, generalDomain.NewStateError("cannot update inactive item %s", i.code)
	}

	if err := validateName(name); err != nil {
		return nil, err
	}

	if err := validateCategory(category); err != nil {
		return nil, err
	}

	if err := validatePrice(price); err != nil {
		return nil, err
	}

	if name == i.name && description == i.description && price.Equal(i.price) && category == i.category {
		return nil, nil
	}

	i.name = name
	i.description = description
	i.price = price
	i.category = category
	i.touch()

	return []generalDomain.Event{ItemUpdated{
		EventMeta:   generalDomain.NewEventMeta(),
		ItemID:      i.id,
		Name:        i.name,
		Description: i.description,
		Price:       i.price,
		Category:    i.category,
	}}, nil
}

func (i *Item) AdjustStock(newAvailable int) ([]generalDomain.Event, error) {
	if err := i.requireActive("adjust stock of"); err != nil {
		return nil, err
	}

	next, err := i.stock.Adjust(newAvailable)
	if err != nil {
		return nil, err
	}

	previous := i.stock.Available()
	i.stock = next
	i.touch()

	return []generalDomain.Event{StockAdjusted{
		EventMeta:         generalDomain.NewEventMeta(),
		ItemID:            i.id,
		Code:              i.code.String(),
		PreviousAvailable: previous,
		Available:         next.Available(),
		Reserved:          next.Reserved(),
	}}, nil
}

func (i *Item) ReserveStock(quantity int) ([]generalDomain.Event, error) {
	if err := i.requireActive("reserve stock of"); err != nil {
		return nil, err
	}

	next, err := i.stock.Reserve(quantity)
	if err != nil {
		return nil, err
	}

	i.stock = next
	i.touch()

	return []generalDomain.Event{StockReserved{stockMovement: i.movement(quantity)}}, nil
}

func (i *Item) ReleaseStock(quantity int) ([]generalDomain.Event, error) {
	if err := i.requireActive("release stock of"); err != nil {
		return nil, err
	}

	next, err := i.stock.Release(quantity)
	if err != nil {
		return nil, err
	}

	i.stock = next
	i.touch()

	return []generalDomain.Event{StockReleased{stockMovement: i.movement(quantity)}}, nil
}

func (i *Item) CommitStock(quantity int) ([]generalDomain.Event, error) {
	if err := i.requireActive("commit stock of"); err != nil {
		return nil, err
	}

	next, err := i.stock.Commit(quantity)
	if err != nil {
		return nil, err
	}

	i.stock = next
	i.touch()

	return []generalDomain.Event{StockCommitted{stockMovement: i.movement(quantity)}}, nil
}

// Deactivate is the catalog's soft delete. Items are never removed.
func (i *Item) Deactivate() []generalDomain.Event {
	if !i.active {
		return nil
	}

	i.active = false
	i.touch()

	return []generalDomain.Event{ItemDeactivated{
		EventMeta: generalDomain.NewEventMeta(),
		ItemID:    i.id,
		Code:      i.code.String(),
	}}
}

func (i *Item) Activate() []generalDomain.Event {
	if i.active {
		return nil
	}

	i.active = true
	i.touch()

	return []generalDomain.Event{ItemActivated{
		EventMeta: generalDomain.NewEventMeta(),
		ItemID:    i.id,
		Code:      i.code.String(),
	}}
}

func (i *Item) requireActive(action string) error {
	if !i.active {
		return generalDomain.NewStateError("cannot %s inactive item %s", action, i.code)
	}

	return nil
}

func (i *Item) movement(quantity int) stockMovement {
	return stockMovement{
		EventMeta: generalDomain.NewEventMeta(),
		ItemID:    i.id,
		Code:      i.code.String(),
		Quantity:  quantity,
		Available: i.stock.Available(),
		Reserved:  i.stock.Reserved(),
	}
}

func (i *Item) touch() {
	i.updatedAt = time.Now().UTC()
	i.version++
}

// ItemSnapshot is the persisted shape of an Item.
type ItemSnapshot struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Available   int
	Reserved    int
	Category    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

func (i *Item) Snapshot() ItemSnapshot {
	return ItemSnapshot{
		ID:          i.id,
		Code:        i.code.String(),
		Name:        i.name,
		Description: i.description,
		Price:       i.price.Amount(),
		Currency:    i.price.Currency(),
		Available:   i.stock.Available(),
		Reserved:    i.stock.Reserved(),
		Category:    i.category,
		Active:      i.active,
		CreatedAt:   i.createdAt,
		UpdatedAt:   i.updatedAt,
		Version:     i.version,
	}
}

// RehydrateItem rebuilds an Item from stored state, running every field
// back through its constructor.
func RehydrateItem(s ItemSnapshot) (*Item, error) {
	if s.ID == uuid.Nil {
		return nil, generalDomain.NewValidationError("item id is required")
	}

	if s.Version < 1 {
		return nil, generalDomain.NewValidationError("item version must be positive, got %d", s.Version)
	}

	code, err := generalDomain.NewProductCode(s.Code)
	if err != nil {
		return nil, err
	}

	if err := validateName(s.Name); err != nil {
		return nil, err
	}

	if err := validateCategory(s.Category); err != nil {
		return nil, err
	}

	price, err := generalDomain.NewMoneyIn(s.Price, s.Currency)
	if err != nil {
		return nil, err
	}

	stock, err := generalDomain.NewStockCounters(s.Available, s.Reserved)
	if err != nil {
		return nil, err
	}

	return &Item{
		id:          s.ID,
		code:        code,
		name:        s.Name,
		description: s.Description,
		price:       price,
		stock:       stock,
		category:    s.Category,
		active:      s.Active,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
		version:     s.Version,
	}, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return generalDomain.NewValidationError("item name is required")
	}

	if len([]rune(name)) > MaxNameLength {
		return generalDomain.NewValidationError("item name cannot exceed %d characters", MaxNameLength)
	}

	return nil
}

func validateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return generalDomain.NewValidationError("item category is required")
	}

	return nil
}

func validatePrice(price generalDomain.Money) error {
	if price.Currency() == "" {
		return generalDomain.NewValidationError("item price is required")
	}

	return nil
}

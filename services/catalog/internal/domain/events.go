package domain

import (
	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

const (
	EventItemCreated     = "ItemCreated"
	EventItemUpdated     = "ItemUpdated"
	EventStockAdjusted   = "StockAdjusted"
	EventStockReserved   = "StockReserved"
	EventStockReleased   = "StockReleased"
	EventStockCommitted  = "StockCommitted"
	EventItemDeactivated = "ItemDeactivated"
	EventItemActivated   = "ItemActivated"
)

type ItemCreated struct {
	generalDomain.EventMeta
	ItemID    uuid.UUID           `json:"item_id"`
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	Price     generalDomain.Money `json:"price"`
	Available int                 `json:"available"`
	Category  string              `json:"category"`
}

func (ItemCreated) EventName() string { return EventItemCreated }

type ItemUpdated struct {
	generalDomain.EventMeta
	ItemID      uuid.UUID           `json:"item_id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Price       generalDomain.Money `json:"price"`
	Category    string              `json:"category"`
}

func (ItemUpdated) EventName() string { return EventItemUpdated }

type StockAdjusted struct {
	generalDomain.EventMeta
	ItemID            uuid.UUID `json:"item_id"`
	Code              string    `json:"code"`
	PreviousAvailable int       `json:"previous_available"`
	Available         int       `json:"available"`
	Reserved          int       `json:"reserved"`
}

func (StockAdjusted) EventName() string { return EventStockAdjusted }

type stockMovement struct {
	generalDomain.EventMeta
	ItemID    uuid.UUID `json:"item_id"`
	Code      string    `json:"code"`
	Quantity  int       `json:"quantity"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
}

type StockReserved struct{ stockMovement }

func (StockReserved) EventName() string { return EventStockReserved }

type StockReleased struct{ stockMovement }

func (StockReleased) EventName() string { return EventStockReleased }

type StockCommitted struct{ stockMovement }

func (StockCommitted) EventName() string { return EventStockCommitted }

type ItemDeactivated struct {
	generalDomain.EventMeta
	ItemID uuid.UUID `json:"item_id"`
	Code   string    `json:"code"`
}

func (ItemDeactivated) EventName() string { return EventItemDeactivated }

type ItemActivated struct {
	generalDomain.EventMeta
	ItemID uuid.UUID `json:"item_id"`
	Code   string    `json:"code"`
}

func (ItemActivated) EventName() string { return EventItemActivated }

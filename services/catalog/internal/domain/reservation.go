package domain

import (
	"time"

	"github.com/google/uuid"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

type ReservationState string

const (
	ReservationReserved  ReservationState = "reserved"
	ReservationReleased  ReservationState = "released"
	ReservationCommitted ReservationState = "committed"
)

// Reservation remembers which units the catalog holds for an order so that
// cancellation and shipment settle exactly what was reserved.
//
// PendingState holds a settlement that was requested but could not be
// applied, typically because one of the items is inactive. It is retried
// when that item is activated again.
type Reservation struct {
	OrderID      uuid.UUID                 `db:"order_id"`
	Lines        []generalDomain.OrderLine `db:"lines"`
	State        ReservationState          `db:"state"`
	PendingState ReservationState          `db:"pending_state"`
	LastError    string                    `db:"last_error"`
	CreatedAt    time.Time                 `db:"created_at"`
	UpdatedAt    time.Time                 `db:"updated_at"`
}

func (r *Reservation) IsOpen() bool {
	return r.State == ReservationReserved
}

// Settlement resolves which final state to apply for requested. An empty
// request means the pending one. A pending commit wins over a later
// release: shipped units do not return to stock.
func (r *Reservation) Settlement(requested ReservationState) ReservationState {
	if r.PendingState == ReservationCommitted || requested == "" {
		return r.PendingState
	}

	return requested
}

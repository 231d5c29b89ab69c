package domain

// StockCounters splits the units of a catalog item into those free to sell
// and those held for orders. Transitions never mutate the receiver.
type StockCounters struct {
	available int
	reserved  int
}

func NewStockCounters(available, reserved int) (StockCounters, error) {
	if available < 0 {
		return StockCounters{}, NewValidationError("available stock cannot be negative, got %d", available)
	}

	if reserved < 0 {
		return StockCounters{}, NewValidationError("reserved stock cannot be negative, got %d", reserved)
	}

	return StockCounters{available: available, reserved: reserved}, nil
}

func (s StockCounters) Available() int {
	return s.available
}

func (s StockCounters) Reserved() int {
	return s.reserved
}

func (s StockCounters) Total() int {
	return s.available + s.reserved
}

func (s StockCounters) Reserve(quantity int) (StockCounters, error) {
	if quantity <= 0 {
		return s, NewValidationError("reserve quantity must be positive, got %d", quantity)
	}

	if quantity > s.available {
		return s, NewConflictError("cannot reserve %d items. Only %d available.", quantity, s.available)
	}

	return StockCounters{available: s.available - quantity, reserved: s.reserved + quantity}, nil
}

func (s StockCounters) Release(quantity int) (StockCounters, error) {
	if quantity <= 0 {
		return s, NewValidationError("release quantity must be positive, got %d", quantity)
	}

	if quantity > s.reserved {
		return s, NewConflictError("cannot release %d items. Only %d reserved.", quantity, s.reserved)
	}

	return StockCounters{available: s.available + quantity, reserved: s.reserved - quantity}, nil
}

// Commit removes reserved units from the system, e.g. once they ship.
func (s StockCounters) Commit(quantity int) (StockCounters, error) {
	if quantity <= 0 {
		return s, NewValidationError("commit quantity must be positive, got %d", quantity)
	}

	if quantity > s.reserved {
		return s, NewConflictError("cannot commit %d items. Only %d reserved.", quantity, s.reserved)
	}

	return StockCounters{available: s.available, reserved: s.reserved - quantity}, nil
}

func (s StockCounters) Adjust(newAvailable int) (StockCounters, error) {
	if newAvailable < 0 {
		return s, NewValidationError("available stock cannot be negative, got %d", newAvailable)
	}

	return StockCounters{available: newAvailable, reserved: s.reserved}, nil
}

package repository

import "errors"

var ErrItemNotFound = errors.New("item not found")
var ErrDuplicateCode = errors.New("item with this code already exists")
var ErrConcurrentUpdate = errors.New("item was modified concurrently")
var ErrReservationNotFound = errors.New("reservation not found")
var ErrReservationExists = errors.New("reservation already exists")

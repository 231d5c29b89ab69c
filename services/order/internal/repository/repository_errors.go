package repository

import "errors"

var ErrOrderNotFound = errors.New("order not found")
var ErrConcurrentUpdate = errors.New("order was modified concurrently")

package services

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap them with %w so handlers can map them to HTTP statuses.
var (
	ErrNotFound   = errors.New("not found")
	ErrNoContent  = errors.New("no content")
	ErrNoBookings = fmt.Errorf("%w: no bookings found", ErrNoContent)
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("invalid request")
)

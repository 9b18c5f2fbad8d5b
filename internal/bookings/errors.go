package bookings

import "errors"

var (
	// ErrMutationFailed wraps every executor failure; the store is left unchanged.
	ErrMutationFailed = errors.New("bookings: mutation failed")

	ErrBookingNotFound = errors.New("bookings: booking not found")
	ErrTableNotFound   = errors.New("bookings: table not found")
	// ErrSlotUnavailable means a confirmed booking already holds the table for an overlapping window.
	ErrSlotUnavailable = errors.New("bookings: table already reserved for an overlapping window")
	ErrInvalidBooking  = errors.New("bookings: invalid booking")
	ErrNotOwner        = errors.New("bookings: booking belongs to another customer")
)

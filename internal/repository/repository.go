// Package repository implements all database access for the ticketing system.
// It uses pgx directly (no ORM); every decision that feeds a write happens
// inside the same transaction as the write itself.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEventNotFound is returned when a requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrTicketNotFound is returned when a requested ticket does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrSoldOut is returned when an event has no remaining capacity.
var ErrSoldOut = errors.New("event is sold out")

// ErrQuotaExceeded is returned when a holder already owns the maximum number
// of tickets for an event.
var ErrQuotaExceeded = errors.New("ticket quota exceeded for this event")

// ErrEventClosed is returned when the event's scheduled day has passed.
var ErrEventClosed = errors.New("event has ended, booking closed")

// ErrContention is returned after bounded retries of a transaction that kept
// conflicting with concurrent writers.
var ErrContention = errors.New("too much contention, please retry")

// isRetryable reports whether a transaction failed for a transient reason
// (serialization failure or deadlock) and is worth retrying from scratch.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

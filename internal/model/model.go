// Package model defines the core domain types for the ticketing system.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Ticket status values. A ticket is minted as Issued and moves to Redeemed
// exactly once; there is no reverse transition.
const (
	TicketIssued   = "issued"
	TicketRedeemed = "redeemed"
)

// Event represents a bookable event with a fixed ticket pool.
// Sold is mutated only by the issuance transaction, never written directly.
type Event struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
	Sold        int             `json:"sold"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Remaining returns the number of unsold tickets.
func (e *Event) Remaining() int {
	return e.Capacity - e.Sold
}

// IsSoldOut returns true when no tickets remain.
func (e *Event) IsSoldOut() bool {
	return e.Sold >= e.Capacity
}

// ClosedAt reports whether booking is closed at the given instant.
// The comparison is at day granularity in UTC: an event is open for its whole
// scheduled day and closed from the next midnight onward.
func (e *Event) ClosedAt(now time.Time) bool {
	eventDay := e.Date.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	return eventDay.Before(today)
}

// MarshalJSON adds the computed remaining count, so list and detail
// responses carry tickets-left directly.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		Remaining int `json:"remaining"`
	}{alias(e), e.Remaining()})
}

// Ticket represents a single admission for one holder at one event.
// Status is the only mutable field after creation.
type Ticket struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	HolderEmail string     `json:"holder_email"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

// IsRedeemed returns true once the ticket has been used for entry.
func (t *Ticket) IsRedeemed() bool {
	return t.Status == TicketRedeemed
}

// Redemption outcomes. AlreadyUsed is a reportable result, not a failure:
// gate staff need to see why entry is denied.
const (
	RedemptionSuccess     = "success"
	RedemptionAlreadyUsed = "already_used"
)

// RedemptionResult is the outcome of a single scan or manual validation.
// Ticket carries the post-operation snapshot in both outcomes.
type RedemptionResult struct {
	Outcome string  `json:"outcome"`
	Ticket  *Ticket `json:"ticket"`
}

// EventStats summarises the organizer dashboard numbers.
type EventStats struct {
	TotalEvents   int `json:"total_events"`
	TicketsSold   int `json:"tickets_sold"`
	SoldOutEvents int `json:"sold_out_events"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
}

// IssueTicketRequest is the payload for booking a ticket.
type IssueTicketRequest struct {
	HolderEmail string `json:"holder_email"`
}

// RedeemRequest carries the raw payload read from a scannable code.
type RedeemRequest struct {
	Payload string `json:"payload"`
}

// TicketResponse is a ticket together with its scannable-code payload.
type TicketResponse struct {
	Ticket  *Ticket `json:"ticket"`
	Payload string  `json:"payload"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

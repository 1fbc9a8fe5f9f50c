// Package qrpayload implements the payload contract for scannable ticket
// codes. Rendering the code image and reading it back are external concerns;
// only the embedded data matters here.
//
// The payload is a small JSON document binding the ticket to its event and
// holder:
//
//	{"ticketId":"...","eventId":"...","email":"..."}
//
// Decode treats malformed input as a recoverable condition. The scan terminal
// runs unattended, so a bad read must produce an error value, never a panic.
package qrpayload

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eventgate/ticketd/internal/model"
)

// ErrMalformed is returned when the payload is not valid JSON.
var ErrMalformed = errors.New("malformed ticket payload")

// ErrMissingTicketID is returned when the payload decodes but carries no
// ticket id, which makes it useless for redemption.
var ErrMissingTicketID = errors.New("ticket payload missing ticket id")

// Payload is the structured record embedded in a scannable code.
type Payload struct {
	TicketID string `json:"ticketId"`
	EventID  string `json:"eventId"`
	Email    string `json:"email"`
}

// Encode serialises a ticket's identity for embedding in a scannable code.
func Encode(t *model.Ticket) (string, error) {
	p := Payload{
		TicketID: t.ID,
		EventID:  t.EventID,
		Email:    t.HolderEmail,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode ticket payload: %w", err)
	}
	return string(data), nil
}

// Decode parses a scanned payload. It returns ErrMalformed for input that is
// not the expected JSON shape and ErrMissingTicketID when the ticket id is
// absent or blank.
func Decode(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.TicketID == "" {
		return Payload{}, ErrMissingTicketID
	}
	return p, nil
}

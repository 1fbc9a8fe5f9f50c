package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventgate/ticketd/internal/cache"
	"github.com/eventgate/ticketd/internal/clock"
	"github.com/eventgate/ticketd/internal/metrics"
	"github.com/eventgate/ticketd/internal/model"
	"github.com/eventgate/ticketd/internal/qrpayload"
	"github.com/eventgate/ticketd/internal/repository"
)

// ErrInvalidCode is returned when a scanned payload cannot be decoded into a
// ticket identity. The underlying decode error is wrapped for logging.
var ErrInvalidCode = errors.New("invalid ticket code")

// TicketStore is the persistence surface TicketService depends on.
// *repository.TicketRepository satisfies it.
type TicketStore interface {
	Issue(ctx context.Context, eventID, holderEmail string, now time.Time, quota int) (*model.Ticket, error)
	Redeem(ctx context.Context, ticketID string, now time.Time) (*model.RedemptionResult, error)
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Ticket, error)
	ListByHolder(ctx context.Context, holderEmail string) ([]model.Ticket, error)
}

// TicketService orchestrates issuance and redemption.
type TicketService struct {
	tickets TicketStore
	cache   *cache.Cache
	clock   clock.Clock
	quota   int
}

// NewTicketService constructs a TicketService. quota is the per-(holder,
// event) ticket limit.
func NewTicketService(tickets TicketStore, c *cache.Cache, clk clock.Clock, quota int) *TicketService {
	if c == nil {
		c = cache.Disabled()
	}
	if quota < 1 {
		quota = 1
	}
	return &TicketService{tickets: tickets, cache: c, clock: clk, quota: quota}
}

// Issue books one ticket for the holder on the event. All capacity, schedule,
// and quota decisions happen atomically in the store; this layer normalises
// input, tracks metrics, and invalidates cached reads.
func (s *TicketService) Issue(ctx context.Context, eventID string, req model.IssueTicketRequest) (*model.Ticket, error) {
	email := strings.TrimSpace(strings.ToLower(req.HolderEmail))
	if email == "" {
		return nil, fmt.Errorf("%w: holder_email is required", ErrInvalidInput)
	}
	if !isValidEmail(email) {
		return nil, fmt.Errorf("%w: holder_email is not a valid email address", ErrInvalidInput)
	}
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	start := time.Now()
	ticket, err := s.tickets.Issue(ctx, eventID, email, s.clock.Now(), s.quota)
	metrics.ObserveIssueDuration(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEventNotFound):
			metrics.BookingRejected(metrics.ReasonNotFound)
		case errors.Is(err, repository.ErrSoldOut):
			metrics.BookingRejected(metrics.ReasonSoldOut)
		case errors.Is(err, repository.ErrQuotaExceeded):
			metrics.BookingRejected(metrics.ReasonQuotaExceeded)
		case errors.Is(err, repository.ErrEventClosed):
			metrics.BookingRejected(metrics.ReasonEventClosed)
		case errors.Is(err, repository.ErrContention):
			metrics.BookingRejected(metrics.ReasonContention)
			log.Warn().Str("event_id", eventID).Msg("booking gave up after repeated conflicts")
		default:
			return nil, fmt.Errorf("issue ticket: %w", err)
		}
		return nil, err
	}

	metrics.TicketIssued(eventID)
	s.invalidate(ctx, cache.EventListKey, cache.EventKey(eventID), cache.StatsKey)
	log.Info().
		Str("ticket_id", ticket.ID).
		Str("event_id", eventID).
		Str("holder", email).
		Msg("ticket issued")
	return ticket, nil
}

// Redeem decodes a scanned payload and transitions the referenced ticket to
// redeemed. Decode failures are recoverable: the terminal reports them and
// keeps scanning.
func (s *TicketService) Redeem(ctx context.Context, rawPayload string) (*model.RedemptionResult, error) {
	p, err := qrpayload.Decode(rawPayload)
	if err != nil {
		metrics.Redemption("invalid_code")
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	return s.RedeemByID(ctx, p.TicketID)
}

// RedeemByID transitions a ticket to redeemed by its id, for manual
// validation from the attendee list. Exactly one caller wins under
// concurrent attempts; the rest observe AlreadyUsed.
func (s *TicketService) RedeemByID(ctx context.Context, ticketID string) (*model.RedemptionResult, error) {
	if ticketID == "" {
		metrics.Redemption("invalid_code")
		return nil, fmt.Errorf("%w: empty ticket id", ErrInvalidCode)
	}

	result, err := s.tickets.Redeem(ctx, ticketID, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			metrics.Redemption("not_found")
			return nil, err
		}
		return nil, fmt.Errorf("redeem ticket: %w", err)
	}

	metrics.Redemption(result.Outcome)
	log.Info().
		Str("ticket_id", ticketID).
		Str("outcome", result.Outcome).
		Msg("redemption processed")
	return result, nil
}

// GetTicket returns a ticket together with its scannable-code payload.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*model.TicketResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, err := qrpayload.Encode(ticket)
	if err != nil {
		return nil, err
	}
	return &model.TicketResponse{Ticket: ticket, Payload: payload}, nil
}

// ListByHolder returns all tickets held by one attendee.
func (s *TicketService) ListByHolder(ctx context.Context, holderEmail string) ([]model.Ticket, error) {
	email := strings.TrimSpace(strings.ToLower(holderEmail))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.tickets.ListByHolder(ctx, email)
}

func (s *TicketService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// isValidEmail does a basic structural check; real verification belongs to
// the identity collaborator upstream.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/eventgate/ticketd/internal/model"
)

// TicketRepository handles persistence for tickets, including the two
// operations where correctness is at risk under concurrency: issuance and
// redemption.
type TicketRepository struct {
	db          *pgxpool.Pool
	maxAttempts int
}

// NewTicketRepository constructs a TicketRepository. maxAttempts bounds the
// transaction retries on transient conflicts before Issue gives up with
// ErrContention.
func NewTicketRepository(db *pgxpool.Pool, maxAttempts int) *TicketRepository {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TicketRepository{db: db, maxAttempts: maxAttempts}
}

// Issue performs a concurrency-safe ticket issuance.
//
// A naive read-then-write flow (read sold, decide, write sold+1 in separate
// operations) lets two concurrent requests both observe free capacity and
// both insert, overselling the event. The same gap breaks the per-holder
// quota under a double-submitted request. Issue therefore runs every check
// and write in one transaction that locks the event row with
// SELECT ... FOR UPDATE, serialising all issuance attempts for that event:
//
//  1. lock the event row and read capacity, sold, date
//  2. reject if the event's day has passed
//  3. reject if sold >= capacity
//  4. reject if the holder already has quota tickets for the event
//  5. insert the ticket and increment sold, then commit
//
// Either the ticket row and the increment both land, or neither does.
func (r *TicketRepository) Issue(ctx context.Context, eventID, holderEmail string, now time.Time, quota int) (*model.Ticket, error) {
	return issueWithRetry(eventID, r.maxAttempts, func() (*model.Ticket, error) {
		return r.issueOnce(ctx, eventID, holderEmail, now, quota)
	})
}

// issueWithRetry runs attempt up to maxAttempts times, retrying only on
// transient transaction conflicts, and reports exhaustion as ErrContention.
func issueWithRetry(eventID string, maxAttempts int, attempt func() (*model.Ticket, error)) (*model.Ticket, error) {
	var (
		ticket *model.Ticket
		err    error
	)
	for i := 1; i <= maxAttempts; i++ {
		ticket, err = attempt()
		if err == nil || !isRetryable(err) {
			return ticket, err
		}
		log.Debug().Err(err).
			Str("event_id", eventID).
			Int("attempt", i).
			Msg("issue transaction conflicted, retrying")
	}
	return nil, fmt.Errorf("%w: %v", ErrContention, err)
}

func (r *TicketRepository) issueOnce(ctx context.Context, eventID, holderEmail string, now time.Time, quota int) (*model.Ticket, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ev model.Event
	err = tx.QueryRow(ctx,
		`SELECT capacity, sold, date
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&ev.Capacity, &ev.Sold, &ev.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrEventNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	if ev.ClosedAt(now) {
		err = ErrEventClosed
		return nil, err
	}
	if ev.IsSoldOut() {
		err = ErrSoldOut
		return nil, err
	}

	var held int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND holder_email = $2`,
		eventID, holderEmail,
	).Scan(&held)
	if err != nil {
		return nil, fmt.Errorf("count holder tickets: %w", err)
	}
	if held >= quota {
		err = ErrQuotaExceeded
		return nil, err
	}

	ticket := &model.Ticket{
		ID:          uuid.New().String(),
		EventID:     eventID,
		HolderEmail: holderEmail,
		Status:      model.TicketIssued,
		IssuedAt:    now.UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO tickets (id, event_id, holder_email, status, issued_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ticket.ID, ticket.EventID, ticket.HolderEmail, ticket.Status, ticket.IssuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET sold = sold + 1 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("increment sold: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ticket, nil
}

// Redeem transitions a ticket from issued to redeemed exactly once.
//
// The UPDATE is conditional on the prior status, so when two scan terminals
// race on the same ticket the database picks exactly one winner. The loser's
// UPDATE matches zero rows; it then re-reads the ticket and reports
// AlreadyUsed with the recorded redemption time, which staff need to see.
func (r *TicketRepository) Redeem(ctx context.Context, ticketID string, now time.Time) (*model.RedemptionResult, error) {
	var t model.Ticket
	err := r.db.QueryRow(ctx,
		`UPDATE tickets
		 SET status = $2, redeemed_at = $3
		 WHERE id = $1 AND status = $4
		 RETURNING id, event_id, holder_email, status, issued_at, redeemed_at`,
		ticketID, model.TicketRedeemed, now.UTC(), model.TicketIssued,
	).Scan(&t.ID, &t.EventID, &t.HolderEmail, &t.Status, &t.IssuedAt, &t.RedeemedAt)
	if err == nil {
		return &model.RedemptionResult{Outcome: model.RedemptionSuccess, Ticket: &t}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("redeem ticket: %w", err)
	}

	// No row transitioned: the ticket is either absent or already redeemed.
	ticket, err := r.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsRedeemed() {
		// The ticket did not exist when the UPDATE ran but does now.
		return nil, fmt.Errorf("redeem ticket %s: unexpected status %q", ticketID, ticket.Status)
	}
	return &model.RedemptionResult{Outcome: model.RedemptionAlreadyUsed, Ticket: ticket}, nil
}

// GetByID returns a single ticket or ErrTicketNotFound.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, holder_email, status, issued_at, redeemed_at
		 FROM tickets WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.EventID, &t.HolderEmail, &t.Status, &t.IssuedAt, &t.RedeemedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

// ListByEvent returns all tickets for an event, oldest first. This backs the
// attendee list on the validation screen.
func (r *TicketRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Ticket, error) {
	return r.list(ctx,
		`SELECT id, event_id, holder_email, status, issued_at, redeemed_at
		 FROM tickets
		 WHERE event_id = $1
		 ORDER BY issued_at ASC`,
		eventID,
	)
}

// ListByHolder returns all tickets held by one attendee across events.
func (r *TicketRepository) ListByHolder(ctx context.Context, holderEmail string) ([]model.Ticket, error) {
	return r.list(ctx,
		`SELECT id, event_id, holder_email, status, issued_at, redeemed_at
		 FROM tickets
		 WHERE holder_email = $1
		 ORDER BY issued_at DESC`,
		holderEmail,
	)
}

func (r *TicketRepository) list(ctx context.Context, sql string, arg string) ([]model.Ticket, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.HolderEmail, &t.Status,
			&t.IssuedAt, &t.RedeemedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

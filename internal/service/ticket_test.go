package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eventgate/ticketd/internal/clock"
	"github.com/eventgate/ticketd/internal/model"
	"github.com/eventgate/ticketd/internal/qrpayload"
	"github.com/eventgate/ticketd/internal/repository"
)

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func newTicketService(tickets fakeTickets, quota int) *TicketService {
	return NewTicketService(tickets, nil, clock.NewFixed(testNow), quota)
}

func openEvent(id string, capacity int) model.Event {
	return model.Event{
		ID:       id,
		Name:     "Test Event",
		Date:     testNow.Add(24 * time.Hour),
		Capacity: capacity,
	}
}

func TestIssueValidation(t *testing.T) {
	_, _, tickets := newFakeStore()
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Issue(context.Background(), "", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIssueEventNotFound(t *testing.T) {
	_, _, tickets := newFakeStore()
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "missing", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestIssueEventClosed(t *testing.T) {
	store, _, tickets := newFakeStore()
	past := openEvent("E1", 10)
	past.Date = testNow.Add(-48 * time.Hour)
	store.addEvent(past)
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	assert.ErrorIs(t, err, repository.ErrEventClosed)
}

func TestIssueOnEventDayStillOpen(t *testing.T) {
	store, _, tickets := newFakeStore()
	today := openEvent("E1", 10)
	// Scheduled earlier the same day: booking stays open until midnight.
	today.Date = testNow.Add(-3 * time.Hour)
	store.addEvent(today)
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	assert.NoError(t, err)
}

func TestIssueNormalizesEmail(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	ticket, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "  A@X.com "})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", ticket.HolderEmail)
	assert.Equal(t, model.TicketIssued, ticket.Status)
	assert.NotEmpty(t, ticket.ID)
}

func TestIssueQuotaExceeded(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	for i := 0; i < 2; i++ {
		_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
		require.NoError(t, err)
	}

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	assert.ErrorIs(t, err, repository.ErrQuotaExceeded)

	// A different holder is unaffected.
	_, err = svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "b@x.com"})
	assert.NoError(t, err)
}

func TestIssueSoldOut(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 1))
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "b@x.com"})
	assert.ErrorIs(t, err, repository.ErrSoldOut)
	assert.Equal(t, 1, store.soldCount("E1"))
}

func TestConcurrentIssueNeverOversells(t *testing.T) {
	const capacity = 5
	const attempts = 25

	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", capacity))
	svc := newTicketService(tickets, 1)

	var successes, rejections atomic.Int64
	g := new(errgroup.Group)
	for i := 0; i < attempts; i++ {
		email := string(rune('a'+i)) + "@x.com"
		g.Go(func() error {
			_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: email})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, repository.ErrSoldOut):
				rejections.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(capacity), successes.Load())
	assert.Equal(t, int64(attempts-capacity), rejections.Load())
	assert.Equal(t, capacity, store.soldCount("E1"))
}

func TestSimultaneousIssueCapacityOne(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 1))
	svc := newTicketService(tickets, 2)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
			results <- err
		}()
	}

	var ok, soldOut int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, repository.ErrSoldOut)
			soldOut++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, soldOut)
	assert.Equal(t, 1, store.soldCount("E1"))
}

func TestRedeemScannedPayloadExactlyOnce(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	ticket, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	require.NoError(t, err)

	payload, err := qrpayload.Encode(ticket)
	require.NoError(t, err)

	first, err := svc.Redeem(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionSuccess, first.Outcome)
	require.NotNil(t, first.Ticket.RedeemedAt)
	assert.Equal(t, testNow, *first.Ticket.RedeemedAt)

	// Every subsequent scan reports AlreadyUsed with the original
	// redemption time, never a second success.
	for i := 0; i < 3; i++ {
		again, err := svc.Redeem(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, model.RedemptionAlreadyUsed, again.Outcome)
		assert.Equal(t, "a@x.com", again.Ticket.HolderEmail)
		require.NotNil(t, again.Ticket.RedeemedAt)
		assert.Equal(t, *first.Ticket.RedeemedAt, *again.Ticket.RedeemedAt)
	}
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	ticket, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	require.NoError(t, err)

	outcomes := make(chan string, 2)
	g := new(errgroup.Group)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			res, err := svc.RedeemByID(context.Background(), ticket.ID)
			if err != nil {
				return err
			}
			outcomes <- res.Outcome
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(outcomes)

	counts := map[string]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[model.RedemptionSuccess])
	assert.Equal(t, 1, counts[model.RedemptionAlreadyUsed])
}

func TestRedeemInvalidPayload(t *testing.T) {
	_, _, tickets := newFakeStore()
	svc := newTicketService(tickets, 2)

	_, err := svc.Redeem(context.Background(), "not json")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Redeem(context.Background(), `{"eventId":"E1"}`)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.RedeemByID(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRedeemTicketNotFound(t *testing.T) {
	_, _, tickets := newFakeStore()
	svc := newTicketService(tickets, 2)

	_, err := svc.RedeemByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)
}

func TestGetTicketIncludesPayload(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	ticket, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	require.NoError(t, err)

	resp, err := svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, resp.Ticket.ID)

	p, err := qrpayload.Decode(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, p.TicketID)
	assert.Equal(t, "E1", p.EventID)
	assert.Equal(t, "a@x.com", p.Email)
}

func TestListByHolderNormalizesEmail(t *testing.T) {
	store, _, tickets := newFakeStore()
	store.addEvent(openEvent("E1", 10))
	svc := newTicketService(tickets, 2)

	_, err := svc.Issue(context.Background(), "E1", model.IssueTicketRequest{HolderEmail: "a@x.com"})
	require.NoError(t, err)

	held, err := svc.ListByHolder(context.Background(), " A@X.COM ")
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

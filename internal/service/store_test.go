package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventgate/ticketd/internal/model"
	"github.com/eventgate/ticketd/internal/repository"
)

// fakeStore is an in-memory stand-in for the pgx repositories with the same
// atomicity contract: every check-and-write happens under one lock, and
// redemption is a conditional transition. fakeEvents and fakeTickets are the
// EventStore / TicketStore views over the shared state.
type fakeStore struct {
	mu      sync.Mutex
	events  map[string]*model.Event
	tickets map[string]*model.Ticket
}

type fakeEvents struct{ *fakeStore }

type fakeTickets struct{ *fakeStore }

func newFakeStore() (*fakeStore, fakeEvents, fakeTickets) {
	s := &fakeStore{
		events:  make(map[string]*model.Event),
		tickets: make(map[string]*model.Ticket),
	}
	return s, fakeEvents{s}, fakeTickets{s}
}

func (s *fakeStore) addEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.events[e.ID] = &cp
}

func (s *fakeStore) soldCount(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID].Sold
}

func (s fakeEvents) Create(_ context.Context, req model.CreateEventRequest) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &model.Event{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Price:       req.Price,
		Capacity:    req.Capacity,
		CreatedAt:   time.Now().UTC(),
	}
	s.events[e.ID] = e
	cp := *e
	return &cp, nil
}

func (s fakeEvents) List(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	return out, nil
}

func (s fakeEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s fakeEvents) Stats(_ context.Context) (*model.EventStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.EventStats{TotalEvents: len(s.events)}
	for _, e := range s.events {
		stats.TicketsSold += e.Sold
		if e.IsSoldOut() {
			stats.SoldOutEvents++
		}
	}
	return stats, nil
}

func (s fakeTickets) Issue(_ context.Context, eventID, holderEmail string, now time.Time, quota int) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	if event.ClosedAt(now) {
		return nil, repository.ErrEventClosed
	}
	if event.IsSoldOut() {
		return nil, repository.ErrSoldOut
	}
	held := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && t.HolderEmail == holderEmail {
			held++
		}
	}
	if held >= quota {
		return nil, repository.ErrQuotaExceeded
	}

	ticket := &model.Ticket{
		ID:          uuid.New().String(),
		EventID:     eventID,
		HolderEmail: holderEmail,
		Status:      model.TicketIssued,
		IssuedAt:    now,
	}
	s.tickets[ticket.ID] = ticket
	event.Sold++
	cp := *ticket
	return &cp, nil
}

func (s fakeTickets) Redeem(_ context.Context, ticketID string, now time.Time) (*model.RedemptionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	if ticket.IsRedeemed() {
		cp := *ticket
		return &model.RedemptionResult{Outcome: model.RedemptionAlreadyUsed, Ticket: &cp}, nil
	}
	ticket.Status = model.TicketRedeemed
	redeemedAt := now
	ticket.RedeemedAt = &redeemedAt
	cp := *ticket
	return &model.RedemptionResult{Outcome: model.RedemptionSuccess, Ticket: &cp}, nil
}

func (s fakeTickets) GetByID(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s fakeTickets) ListByEvent(_ context.Context, eventID string) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.EventID == eventID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s fakeTickets) ListByHolder(_ context.Context, holderEmail string) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.HolderEmail == holderEmail {
			out = append(out, *t)
		}
	}
	return out, nil
}

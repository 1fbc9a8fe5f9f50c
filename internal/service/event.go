// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eventgate/ticketd/internal/cache"
	"github.com/eventgate/ticketd/internal/metrics"
	"github.com/eventgate/ticketd/internal/model"
)

// ErrInvalidInput marks request validation failures. Handlers map it to a
// client error; everything unrecognised is a server fault.
var ErrInvalidInput = errors.New("invalid input")

// EventStore is the persistence surface EventService depends on.
// *repository.EventRepository satisfies it.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Stats(ctx context.Context) (*model.EventStats, error)
}

// EventService orchestrates event-related operations and the cached read side.
type EventService struct {
	events  EventStore
	tickets TicketStore
	cache   *cache.Cache
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events EventStore, tickets TicketStore, c *cache.Cache) *EventService {
	if c == nil {
		c = cache.Disabled()
	}
	return &EventService{events: events, tickets: tickets, cache: c}
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: event date is required", ErrInvalidInput)
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be a positive integer", ErrInvalidInput)
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("%w: capacity cannot exceed 100,000", ErrInvalidInput)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}

	event, err := s.events.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.EventCreated()
	s.invalidate(ctx, cache.EventListKey, cache.StatsKey)
	return event, nil
}

// ListEvents returns all events, served from cache when fresh.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := s.cache.Get(ctx, cache.EventListKey, &events); err == nil {
		return events, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("event list cache read failed")
	}

	events, err := s.events.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.EventListKey, events); err != nil {
		log.Warn().Err(err).Msg("event list cache write failed")
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	var cached model.Event
	if err := s.cache.Get(ctx, cache.EventKey(id), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("event_id", id).Msg("event cache read failed")
	}

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.EventKey(id), event); err != nil {
		log.Warn().Err(err).Str("event_id", id).Msg("event cache write failed")
	}
	return event, nil
}

// ListAttendees returns every ticket issued for an event, for the validation
// screen. The event must exist.
func (s *EventService) ListAttendees(ctx context.Context, eventID string) ([]model.Ticket, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.tickets.ListByEvent(ctx, eventID)
}

// Stats returns the organizer dashboard aggregate, served from cache when fresh.
func (s *EventService) Stats(ctx context.Context) (*model.EventStats, error) {
	var cached model.EventStats
	if err := s.cache.Get(ctx, cache.StatsKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("stats cache read failed")
	}

	stats, err := s.events.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.StatsKey, stats); err != nil {
		log.Warn().Err(err).Msg("stats cache write failed")
	}
	return stats, nil
}

func (s *EventService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

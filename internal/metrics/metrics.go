// Package metrics exposes Prometheus instrumentation for the booking and
// redemption paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketd_tickets_issued_total",
			Help: "Tickets successfully issued per event",
		},
		[]string{"event_id"},
	)

	bookingRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketd_booking_rejections_total",
			Help: "Booking attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketd_redemptions_total",
			Help: "Redemption attempts, by outcome",
		},
		[]string{"outcome"},
	)

	issueDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketd_issue_duration_seconds",
			Help:    "Duration of ticket issuance transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	eventsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketd_events_created_total",
			Help: "Events created",
		},
	)
)

// Rejection reasons for bookingRejections.
const (
	ReasonSoldOut       = "sold_out"
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonEventClosed   = "event_closed"
	ReasonNotFound      = "event_not_found"
	ReasonContention    = "contention"
)

// TicketIssued records a successful issuance.
func TicketIssued(eventID string) {
	ticketsIssued.WithLabelValues(eventID).Inc()
}

// BookingRejected records a rejected booking attempt.
func BookingRejected(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

// Redemption records a redemption attempt outcome ("success", "already_used",
// "invalid_code", "not_found").
func Redemption(outcome string) {
	redemptions.WithLabelValues(outcome).Inc()
}

// ObserveIssueDuration records how long an issuance took end to end.
func ObserveIssueDuration(d time.Duration) {
	issueDuration.Observe(d.Seconds())
}

// EventCreated records a new event.
func EventCreated() {
	eventsCreated.Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Appointment transitions attempted, by target status and result",
	}, []string{"status", "result"})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_claims_total",
		Help: "Rider claim attempts by result (won, lost, terms_rejected)",
	}, []string{"result"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_outbox_published_total",
		Help: "Outbox events published to kafka",
	})
)

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysession",
		Name:      "poll_fetches_total",
		Help:      "Remote status fetches issued by the poller, by result.",
	}, []string{"result"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysession",
		Name:      "transitions_total",
		Help:      "Session transitions, by entered status.",
	}, []string{"status"})

	successNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paysession",
		Name:      "success_notifications_total",
		Help:      "Success notifications delivered to listeners.",
	})

	qrDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysession",
		Name:      "qr_decisions_total",
		Help:      "QR render decisions, by strategy.",
	}, []string{"strategy"})

	cancelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysession",
		Name:      "cancel_requests_total",
		Help:      "User cancellation requests, by result.",
	}, []string{"result"})
)

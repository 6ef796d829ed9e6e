package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dar_requests_created_total",
		Help: "Number of access requests created.",
	})

	requestsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dar_requests_reviewed_total",
		Help: "Number of access request review decisions.",
	}, []string{"decision"})

	provisioningDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dar_provisioning_dispatches_total",
		Help: "Number of provisioning pipeline dispatches.",
	}, []string{"outcome"})
)

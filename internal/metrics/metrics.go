// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutreachCreated counts newly written match request records.
	OutreachCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capmatch_outreach_created_total",
		Help: "Match request records created.",
	})

	// OutreachSkipped counts recipients that were already invited.
	OutreachSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capmatch_outreach_skipped_total",
		Help: "Outreach recipients skipped because a record already existed.",
	})

	// DeliveriesTotal counts per-recipient delivery outcomes by status.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capmatch_deliveries_total",
		Help: "Per-recipient delivery results by status.",
	}, []string{"status"})

	// AuditFailures counts audit appends that were dropped.
	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capmatch_audit_failures_total",
		Help: "Best-effort audit events that failed to append.",
	})
)

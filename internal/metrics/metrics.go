// Package metrics registers the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamAttempts counts individual HTTP attempts against the
	// analysis service, labelled by outcome (success, http_error,
	// network_error).
	UpstreamAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_attempts_total",
		Help: "Individual HTTP attempts made against the analysis service.",
	}, []string{"outcome"})

	// UpstreamRetries counts retry decisions, labelled by the reason the
	// previous attempt was retried (rate_limited, server_error, network).
	UpstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retries_total",
		Help: "Retries scheduled after transient upstream failures.",
	}, []string{"reason"})

	// ToolCalls counts tool dispatches by tool name and outcome class.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tool_calls_total",
		Help: "Tool invocations dispatched through the registry.",
	}, []string{"tool", "outcome"})
)

// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the server's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokensIssued counts successful token responses by grant type.
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "oauth",
		Name:      "tokens_issued_total",
		Help:      "Access tokens issued, by grant type.",
	}, []string{"grant_type"})

	// TokensRevoked counts revocations that removed live state.
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "oauth",
		Name:      "tokens_revoked_total",
		Help:      "Tokens revoked via the revocation endpoint or client deletion.",
	})

	// ClientsRegistered counts successful dynamic client registrations.
	ClientsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "registry",
		Name:      "clients_registered_total",
		Help:      "Clients registered via the registration endpoint.",
	})

	// VerifyDuration observes end-to-end latency of the verification
	// endpoint, which sits on the hot path of every proxied request.
	VerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "verify",
		Name:      "request_duration_seconds",
		Help:      "Latency of bearer token verification requests.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

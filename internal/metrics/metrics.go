// Package metrics defines and registers the Prometheus metrics of the
// session client and of the reference auth API.
//
// All metrics are registered with the default registry on package init via
// promauto; the reference API exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bugwars"

// ── Session client ────────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success" or the outcome kind of the failure (e.g. "auth", "transport")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RefreshTotal counts access-token refresh attempts.
// Label:
//   - result: "ok", "shared", "forced_logout", "no_token" or "error"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "refresh_total",
		Help:      "Total number of access token refresh attempts, by result.",
	},
	[]string{"result"},
)

// LogoutsTotal counts local logouts, forced or user initiated.
// Label:
//   - reason: "user", "forced" or "corrupt_storage"
var LogoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "logouts_total",
		Help:      "Total number of local logouts, by reason.",
	},
	[]string{"reason"},
)

// ── Reference auth API ────────────────────────────────────────────────────────

// TokensIssuedTotal counts tokens minted by the reference API.
// Label:
//   - kind: "access" or "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "authapi",
		Name:      "tokens_issued_total",
		Help:      "Total number of tokens issued, by kind.",
	},
	[]string{"kind"},
)

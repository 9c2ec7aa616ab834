// Package observability provides Prometheus metrics for the plugin runtime
// and the HTTP handler that exposes them.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registry holds all runtime metrics, kept separate from the default
// registry so tests and embedded usage do not collide.
var registry = prometheus.NewRegistry()

var (
	pluginCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openjudge_plugin_calls_total",
			Help: "Total number of plugin function calls by plugin, function, and status",
		},
		[]string{"plugin", "function", "status"},
	)

	hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openjudge_hook_failures_total",
			Help: "Total number of hook observer failures by hook and topic",
		},
		[]string{"hook", "topic"},
	)

	assetRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openjudge_plugin_asset_requests_total",
			Help: "Total number of plugin asset requests by plugin and status",
		},
		[]string{"plugin", "status"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pluginCalls,
		hookFailures,
		assetRequests,
	)
}

// RecordPluginCall increments the plugin call counter. Status is "ok" or an
// error class such as "not_found" or "execution_failed".
func RecordPluginCall(pluginID, function, status string) {
	pluginCalls.WithLabelValues(pluginID, function, status).Inc()
}

// RecordHookFailure increments the hook failure counter.
func RecordHookFailure(hookID, topic string) {
	hookFailures.WithLabelValues(hookID, topic).Inc()
}

// RecordAssetRequest increments the asset request counter.
func RecordAssetRequest(pluginID, status string) {
	assetRequests.WithLabelValues(pluginID, status).Inc()
}

// Handler returns the HTTP handler serving the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "annotationserver"

	metricLabelRoute   = "route"
	metricLabelStatus  = "status"
	metricLabelSurface = "surface"
	metricLabelMode    = "mode"
)

var (
	// ServiceRequestCounter count the number of requests for each route
	ServiceRequestCounter = newCounterVec(
		"service_request_count",
		"Count of requests for each route",
		metricLabelRoute, metricLabelStatus,
	)
	// ServiceRequestDuration observe the duration of requests for each route
	ServiceRequestDuration = newSummaryVec(
		"service_request_duration_seconds",
		"Seconds to parse a request, execute it and write its response",
		metricLabelRoute, metricLabelStatus,
	)
	// LoadCounter count record loads by their result status
	LoadCounter = newCounterVec(
		"load_count",
		"Number of record loads by result status",
		metricLabelStatus,
	)
	// SaveCounter count record saves by surface and result
	SaveCounter = newCounterVec(
		"save_count",
		"Number of record saves",
		metricLabelSurface, metricLabelStatus,
	)
	// SavedImageBytes observe the size of encoded images written with a record
	SavedImageBytes = newSummaryVec(
		"saved_image_bytes",
		"Size in bytes of the encoded image stored with a record",
	)
	// OpenSessionsGauge keep track of the currently open editing sessions
	OpenSessionsGauge = newGaugeVec(
		"open_sessions_total",
		"Number of currently open editing sessions",
		metricLabelMode,
	)
)

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

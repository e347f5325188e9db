// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carbon_offload"

// Label names.
const (
	LabelOperation = "operation"
	LabelResult    = "result"
	LabelProvider  = "provider"
	LabelStatus    = "status"
	LabelRoute     = "route"
	LabelCode      = "code"
)

// Recorder owns the collectors. It satisfies gateway.Recorder and
// workload.Recorder.
type Recorder struct {
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	workloads       *prometheus.CounterVec
	savings         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		gatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Total number of provisioning gateway calls by outcome",
			},
			[]string{LabelOperation, LabelResult},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Latency of provisioning gateway calls",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{LabelOperation},
		),
		workloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workloads_total",
				Help:      "Workload creations and status transitions by resulting status",
			},
			[]string{LabelProvider, LabelStatus},
		),
		savings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "estimated_savings_grams_total",
				Help:      "Estimated gCO2 saved by offloaded workloads",
			},
			[]string{LabelProvider},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern and status code",
			},
			[]string{LabelRoute, LabelCode},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"gateway_calls_total":           r.gatewayCalls,
		"gateway_call_duration_seconds": r.gatewayDuration,
		"workloads_total":               r.workloads,
		"estimated_savings_grams_total": r.savings,
		"http_requests_total":           r.httpRequests,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register %s metric: %w", name, err)
		}
	}
	return r, nil
}

// RecordGatewayCall counts one gateway call and observes its latency.
func (r *Recorder) RecordGatewayCall(operation, result string, elapsed time.Duration) {
	r.gatewayCalls.WithLabelValues(operation, result).Inc()
	r.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordWorkload counts a workload reaching status.
func (r *Recorder) RecordWorkload(provider, status string) {
	r.workloads.WithLabelValues(provider, status).Inc()
}

// RecordSavings adds positive estimated savings. Workloads placed on a
// dirtier grid than the baseline are not counted.
func (r *Recorder) RecordSavings(provider string, grams float64) {
	if grams <= 0 {
		return
	}
	r.savings.WithLabelValues(provider).Add(grams)
}

// RecordHTTPRequest counts a served request.
func (r *Recorder) RecordHTTPRequest(route string, code int) {
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Package server exposes the carbon offload operations over HTTP and serves
// the gRPC health protocol.
package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-offload/internal/auth"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/savings"
	"github.com/rshade/carbon-offload/internal/store"
	"github.com/rshade/carbon-offload/internal/workload"
)

// APIPrefix is the mount point of the cloud routes.
const APIPrefix = "/api/cloud"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// HTTPRecorder observes served requests.
type HTTPRecorder interface {
	RecordHTTPRequest(route string, code int)
}

type nopHTTPRecorder struct{}

func (nopHTTPRecorder) RecordHTTPRequest(string, int) {}

// Deps are the components the server routes to.
type Deps struct {
	Manager     *workload.Manager
	Catalog     *regions.Catalog
	Preferences *regions.PreferenceService
	Savings     *savings.Calculator
	Auth        auth.Authenticator
	Store       store.Pinger

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Recorder HTTPRecorder

	// DefaultRegions supplies the catalog used when a seed request has no body.
	DefaultRegions func() ([]regions.CloudRegion, error)

	CORSAllowedOrigins []string
}

// Server routes HTTP requests to the core components.
type Server struct {
	deps   Deps
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New builds the server and registers every route.
func New(deps Deps, logger zerolog.Logger) *Server {
	if deps.Recorder == nil {
		deps.Recorder = nopHTTPRecorder{}
	}
	if deps.DefaultRegions == nil {
		deps.DefaultRegions = regions.DefaultRegions
	}
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withTrace(s.withCORS(s.withAccessLog(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	api := func(pattern string, h http.HandlerFunc) {
		method, path, _ := cutPattern(pattern)
		s.mux.Handle(method+" "+APIPrefix+path, s.requireAuth(h))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		method, path, _ := cutPattern(pattern)
		s.mux.Handle(method+" "+APIPrefix+path, s.requireAuth(s.requireAdmin(h)))
	}

	api("GET /test-connection/{provider}", s.handleTestConnection)
	api("POST /launch-instance", s.handleLaunch)
	api("POST /terminate-instance", s.handleTerminate)
	api("GET /instance-status/{provider}/{instanceId}", s.handleInstanceStatus)
	api("GET /instances/{provider}", s.handleListInstances)

	api("GET /regions", s.handleListRegions)
	admin("POST /regions/seed", s.handleSeedRegions)
	api("POST /calculate-savings", s.handleCalculateSavings)
	api("GET /recommendation", s.handleRecommendation)

	api("POST /workloads", s.handleSubmitWorkload)
	api("GET /workloads", s.handleListWorkloads)
	api("GET /workloads/{id}", s.handleGetWorkload)
	api("POST /workloads/{id}/reconcile", s.handleReconcileWorkload)

	api("GET /preferences", s.handleGetPreferences)
	api("PUT /preferences", s.handlePutPreferences)
}

func cutPattern(pattern string) (method, path string, ok bool) {
	return strings.Cut(pattern, " ")
}

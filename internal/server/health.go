package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/store"
)

// HealthServiceName is the service name reported over gRPC health.
const HealthServiceName = "carbonoffload.v1.CarbonOffload"

// DefaultHealthInterval is how often the store is pinged for gRPC health.
const DefaultHealthInterval = 15 * time.Second

type healthResponse struct {
	Status           string    `json:"status"`
	Store            string    `json:"store"`
	CloudIntegration bool      `json:"cloudIntegration"`
	Time             time.Time `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Time: time.Now().UTC()}
	if s.deps.Manager != nil {
		resp.CloudIntegration = s.deps.Manager.IntegrationEnabled()
	}
	code := http.StatusOK
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("store ping failed")
			resp.Status = "degraded"
			resp.Store = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, r, code, resp)
}

// NewGRPCHealth returns a gRPC server exposing only the standard health
// service, initially SERVING. Unary calls go through UnaryErrors.
func NewGRPCHealth(logger zerolog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryErrors(logger))}, opts...)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return srv, hs
}

// UnaryErrors converts application errors returned by unary handlers into
// gRPC status errors using the kind's code, and logs every call.
func UnaryErrors(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With().Str("component", "grpc").Logger()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			err = status.Error(appErr.Kind.GRPCCode(), apperr.Message(err))
		}

		code := status.Code(err)
		ev := logger.Debug()
		if err != nil {
			ev = logger.Info()
			if appErr != nil && appErr.Kind == apperr.KindInternal {
				ev = logger.Error().Err(appErr)
			}
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("grpc call")
		return resp, err
	}
}

// WatchStore pings the store every interval and mirrors the result onto hs
// until ctx is done, at which point every service is marked NOT_SERVING.
func WatchStore(ctx context.Context, pinger store.Pinger, hs *health.Server, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	logger = logger.With().Str("component", "health").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}

		pctx, cancel := context.WithTimeout(ctx, interval/2)
		err := pinger.Ping(pctx)
		cancel()

		switch {
		case err != nil && serving:
			logger.Warn().Err(err).Msg("store unreachable, reporting NOT_SERVING")
			hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			logger.Info().Msg("store reachable again, reporting SERVING")
			hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}

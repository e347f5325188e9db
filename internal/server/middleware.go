package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/auth"
	"github.com/rshade/carbon-offload/internal/logging"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// withTrace adopts the caller's trace id or assigns one, and echoes it back.
func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(logging.TraceIDHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = logging.NewTraceID()
		}
		w.Header().Set(logging.TraceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

// withAccessLog logs and counts every request by its route pattern. The mux
// fills r.Pattern, so this must wrap the mux directly.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().
					Str(logging.FieldTraceID, logging.TraceID(r.Context())).
					Interface("panic", p).
					Msg("handler panicked")
				if rec.status == 0 {
					s.writeError(rec, r, apperr.New(apperr.KindInternal, "internal error"))
				}
			}
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			s.deps.Recorder.RecordHTTPRequest(route, rec.status)

			evt := s.logger.Debug()
			if rec.status >= http.StatusInternalServerError {
				evt = s.logger.Info()
			}
			evt.Str(logging.FieldTraceID, logging.TraceID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Int64(logging.FieldDurationMs, time.Since(start).Milliseconds()).
				Msg("request served")
		}()
		next.ServeHTTP(rec, r)
	})
}

// withCORS answers preflight requests and tags responses for allowed
// origins. With no configured origins it is a pass-through.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origins := s.deps.CORSAllowedOrigins
	if len(origins) == 0 {
		return next
	}
	wildcard := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || slices.Contains(origins, origin)) {
			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", logging.TraceIDHeader)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", strings.Join([]string{
					"Authorization", "Content-Type", logging.TraceIDHeader,
				}, ", "))
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			s.writeError(w, r, apperr.Unauthenticated("authentication is not configured"))
			return
		}
		id, err := s.deps.Auth.Authenticate(r.Context(), auth.BearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if !id.Admin {
			s.writeError(w, r, apperr.Forbidden("administrator access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userID returns the authenticated user. Routes behind requireAuth always
// have one.
func userID(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.UserID
}

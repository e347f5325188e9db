package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/logging"
)

type errorBody struct {
	Error   errorDetail `json:"error"`
	TraceID string      `json:"trace_id"`
}

type errorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().
			Str(logging.FieldTraceID, logging.TraceID(r.Context())).
			Err(err).
			Msg("failed to encode response")
	}
}

// writeError renders err as the standard error envelope. Internal details
// are logged but never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	traceID := logging.TraceID(r.Context())

	evt := s.logger.Info()
	if status >= http.StatusInternalServerError {
		evt = s.logger.Error()
	}
	evt.Str(logging.FieldTraceID, traceID).
		Str("kind", string(kind)).
		Str("route", r.Pattern).
		Err(err).
		Msg("request failed")

	s.writeJSON(w, r, status, errorBody{
		Error:   errorDetail{Kind: kind, Message: apperr.Message(err)},
		TraceID: traceID,
	})
}

// decode reads a JSON body into v. An empty body is accepted when
// allowEmpty is set and leaves v untouched.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

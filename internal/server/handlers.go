package server

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/gateway"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/savings"
	"github.com/rshade/carbon-offload/internal/workload"
)

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Manager.TestConnection(r.Context(), r.PathValue("provider"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, status)
}

type launchBody struct {
	Provider      string            `json:"provider"`
	Region        string            `json:"region"`
	InstanceType  string            `json:"instanceType"`
	WorkloadType  workload.Type     `json:"workloadType"`
	DurationHours float64           `json:"durationHours"`
	Tags          map[string]string `json:"tags"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var body launchBody
	if err := decode(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.deps.Manager.Launch(r.Context(), workload.LaunchRequest{
		UserID:        userID(r),
		Provider:      body.Provider,
		Region:        body.Region,
		InstanceType:  body.InstanceType,
		WorkloadType:  body.WorkloadType,
		DurationHours: body.DurationHours,
		Tags:          body.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, out)
}

type terminateBody struct {
	Provider   string `json:"provider"`
	InstanceID string `json:"instanceId"`
	Region     string `json:"region"`
	WorkloadID string `json:"workloadId"`
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	var body terminateBody
	if err := decode(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.deps.Manager.Terminate(r.Context(), workload.TerminateRequest{
		UserID:     userID(r),
		Provider:   body.Provider,
		InstanceID: body.InstanceID,
		Region:     body.Region,
		WorkloadID: body.WorkloadID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleInstanceStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Manager.Status(r.Context(),
		r.PathValue("provider"), r.PathValue("instanceId"), r.URL.Query().Get("region"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]gateway.InstanceSnapshot{"instance": snap})
}

type instancesResponse struct {
	Provider  string                     `json:"provider"`
	Region    string                     `json:"region,omitempty"`
	Instances []gateway.InstanceSnapshot `json:"instances"`
	Count     int                        `json:"count"`
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	region := r.URL.Query().Get("region")
	list, err := s.deps.Manager.ListInstances(r.Context(), provider, region)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []gateway.InstanceSnapshot{}
	}
	s.writeJSON(w, r, http.StatusOK, instancesResponse{
		Provider:  strings.ToLower(provider),
		Region:    region,
		Instances: list,
		Count:     len(list),
	})
}

type regionsResponse struct {
	Regions        []regions.CloudRegion `json:"regions"`
	Recommendation *regions.CloudRegion  `json:"recommendation"`
	Count          int                   `json:"count"`
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListAvailable(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []regions.CloudRegion{}
	}
	resp := regionsResponse{Regions: list, Count: len(list)}
	if len(list) > 0 {
		greenest := list[0]
		resp.Recommendation = &greenest
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type seedBody struct {
	Regions []regions.CloudRegion `json:"regions"`
}

// handleSeedRegions replaces the catalog. The body may be JSON
// ({"regions": [...]}) or the YAML seed file format; an empty body seeds
// the built-in catalog.
func (s *Server) handleSeedRegions(w http.ResponseWriter, r *http.Request) {
	list, err := s.seedRegions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Catalog.Seed(r.Context(), list)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info().
		Str("user_id", userID(r)).
		Int("count", res.Count).
		Msg("region catalog replaced")
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) seedRegions(r *http.Request) ([]regions.CloudRegion, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/yaml" || mediaType == "application/x-yaml" || mediaType == "text/yaml" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, apperr.Validation("failed to read request body: %v", err)
		}
		if len(data) > 0 {
			list, err := regions.ParseRegions(data)
			if err != nil {
				return nil, apperr.Validation("invalid region file: %v", err)
			}
			return list, nil
		}
	} else {
		var body seedBody
		if err := decode(r, &body, true); err != nil {
			return nil, err
		}
		if body.Regions != nil {
			return body.Regions, nil
		}
	}
	list, err := s.deps.DefaultRegions()
	if err != nil {
		return nil, apperr.Internal(err, "failed to load built-in regions")
	}
	return list, nil
}

func (s *Server) handleCalculateSavings(w http.ResponseWriter, r *http.Request) {
	var req savings.Request
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Savings.Calculate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = regions.ProviderAWS
	}
	prefs, err := s.deps.Preferences.Get(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.deps.Catalog.Recommend(r.Context(), prefs, provider)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, rec)
}

type workloadBody struct {
	WorkloadType            workload.Type     `json:"workloadType"`
	Provider                string            `json:"provider"`
	TargetRegion            string            `json:"targetRegion"`
	InstanceType            string            `json:"instanceType"`
	DurationHours           float64           `json:"durationHours"`
	EstimatedLocalEmissions *float64          `json:"estimatedLocalEmissions"`
	EstimatedCloudEmissions *float64          `json:"estimatedCloudEmissions"`
	EstimatedCost           *float64          `json:"estimatedCost"`
	SourceLocation          string            `json:"sourceLocation"`
	Labels                  map[string]string `json:"labels"`
}

func (s *Server) handleSubmitWorkload(w http.ResponseWriter, r *http.Request) {
	var body workloadBody
	if err := decode(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	wl, err := s.deps.Manager.SubmitSimulated(r.Context(), workload.SimulatedRequest{
		UserID:                  userID(r),
		WorkloadType:            body.WorkloadType,
		Provider:                body.Provider,
		Region:                  body.TargetRegion,
		InstanceType:            body.InstanceType,
		DurationHours:           body.DurationHours,
		EstimatedLocalEmissions: body.EstimatedLocalEmissions,
		EstimatedCloudEmissions: body.EstimatedCloudEmissions,
		EstimatedCost:           body.EstimatedCost,
		SourceLocation:          body.SourceLocation,
		Labels:                  body.Labels,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, map[string]workload.Workload{"workload": wl})
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workload.Filter{
		UserID:   userID(r),
		Status:   workload.Status(q.Get("status")),
		Provider: q.Get("provider"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, apperr.Validation("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	res, err := s.deps.Manager.ListWorkloads(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	wl, err := s.deps.Manager.GetWorkload(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]workload.Workload{"workload": wl})
}

func (s *Server) handleReconcileWorkload(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Manager.Reconcile(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.deps.Preferences.Get(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs regions.Preferences
	if err := decode(r, &prefs, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.deps.Preferences.Put(r.Context(), userID(r), prefs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, saved)
}

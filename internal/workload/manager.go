package workload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rshade/carbon-offload/internal/apperr"
	"github.com/rshade/carbon-offload/internal/carbon"
	"github.com/rshade/carbon-offload/internal/gateway"
	"github.com/rshade/carbon-offload/internal/pricing"
	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store"
)

const (
	// DefaultListLimit applies when a listing does not set a limit.
	DefaultListLimit = 50
	// MaxListLimit caps any listing.
	MaxListLimit = 500
	// DefaultDurationHours is assumed when a launch gives no duration estimate.
	DefaultDurationHours = 1.0
)

// RegionCatalog is the catalog lookup the manager needs.
type RegionCatalog interface {
	Find(ctx context.Context, provider, region string) (regions.CloudRegion, error)
}

// Recorder observes workload creations, transitions and savings.
type Recorder interface {
	RecordWorkload(provider, status string)
	RecordSavings(provider string, grams float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkload(string, string)  {}
func (nopRecorder) RecordSavings(string, float64) {}

// Deps are the collaborators of a Manager. Repo, Catalog and Gateway are
// required; the rest default.
type Deps struct {
	Repo      Repository
	Catalog   RegionCatalog
	Gateway   gateway.Gateway
	Estimator carbon.CarbonEstimator
	Pricing   pricing.PricingClient
	Recorder  Recorder

	// LocalCarbonIntensity is the baseline grid savings are measured against.
	LocalCarbonIntensity float64

	Now   func() time.Time
	NewID func() string
}

// Manager drives workloads through their lifecycle. It is the only caller of
// the provisioning gateway.
type Manager struct {
	repo      Repository
	catalog   RegionCatalog
	gw        gateway.Gateway
	estimator carbon.CarbonEstimator
	pricing   pricing.PricingClient
	recorder  Recorder
	local     float64
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewManager builds a Manager from deps.
func NewManager(deps Deps, logger zerolog.Logger) *Manager {
	m := &Manager{
		repo:      deps.Repo,
		catalog:   deps.Catalog,
		gw:        deps.Gateway,
		estimator: deps.Estimator,
		pricing:   deps.Pricing,
		recorder:  deps.Recorder,
		local:     deps.LocalCarbonIntensity,
		logger:    logger.With().Str("component", "workload").Logger(),
		now:       deps.Now,
		newID:     deps.NewID,
	}
	if m.estimator == nil {
		m.estimator = carbon.NewEstimator()
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.local < 0 {
		m.local = carbon.DefaultLocalCarbonIntensity
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return ulid.Make().String() }
	}
	return m
}

// LocalCarbonIntensity returns the baseline used for savings.
func (m *Manager) LocalCarbonIntensity() float64 { return m.local }

// IntegrationEnabled reports whether real launches are possible.
func (m *Manager) IntegrationEnabled() bool { return m.gw.IsAvailable() }

// Estimate is the figure computed for a launch.
type Estimate struct {
	carbon.Savings
	InstanceType        string  `json:"instanceType"`
	PowerWatts          float64 `json:"power"`
	DurationHours       float64 `json:"durationHours"`
	CarbonIntensity     float64 `json:"carbonIntensity"`
	RenewablePercentage float64 `json:"renewablePercentage"`
	EstimatedCost       float64 `json:"estimatedCost"`
	Currency            string  `json:"currency"`
}

// LaunchRequest asks for one real instance.
type LaunchRequest struct {
	UserID        string
	Provider      string
	Region        string
	InstanceType  string
	WorkloadType  Type
	DurationHours float64
	Tags          map[string]string
}

// LaunchOutcome is returned by a successful launch.
type LaunchOutcome struct {
	Workload Workload             `json:"workload"`
	Instance gateway.LaunchResult `json:"instance"`
	Estimate Estimate             `json:"estimate"`
}

// TerminateRequest asks to terminate an instance and optionally complete
// the workload that launched it.
type TerminateRequest struct {
	UserID     string
	Provider   string
	InstanceID string
	Region     string
	WorkloadID string
}

// TerminateOutcome reports a termination. NoOp is set when nothing had to
// be done because the instance or workload was already gone.
type TerminateOutcome struct {
	Result   gateway.TerminateResult `json:"result"`
	Workload *Workload               `json:"workload,omitempty"`
	NoOp     bool                    `json:"noop"`
}

// SimulatedRequest records a workload without provisioning anything.
// Missing emission figures are estimated from InstanceType and DurationHours.
type SimulatedRequest struct {
	UserID                  string
	WorkloadType            Type
	Provider                string
	Region                  string
	InstanceType            string
	DurationHours           float64
	EstimatedLocalEmissions *float64
	EstimatedCloudEmissions *float64
	EstimatedCost           *float64
	SourceLocation          string
	Labels                  map[string]string
}

// ListResult is a page of workloads with stats over the whole filtered set.
type ListResult struct {
	Workloads []Workload `json:"workloads"`
	Stats     Stats      `json:"stats"`
}

// ReconcileOutcome reports what reconciliation observed.
type ReconcileOutcome struct {
	Workload Workload                  `json:"workload"`
	Instance *gateway.InstanceSnapshot `json:"instance,omitempty"`
	Changed  bool                      `json:"changed"`
}

// TestConnection checks the gateway for provider.
func (m *Manager) TestConnection(ctx context.Context, provider string) (gateway.ConnectionStatus, error) {
	if _, err := m.checkProvider(provider); err != nil {
		return gateway.ConnectionStatus{}, err
	}
	return m.gw.TestConnection(ctx), nil
}

// Launch provisions one instance and records a running workload for it.
// Nothing is persisted when the gateway fails. The provisioning call is not
// cancelled when ctx is; it is bounded by the gateway's own timeout.
func (m *Manager) Launch(ctx context.Context, req LaunchRequest) (LaunchOutcome, error) {
	provider, err := m.checkProvider(req.Provider)
	if err != nil {
		return LaunchOutcome{}, err
	}
	if req.UserID == "" {
		return LaunchOutcome{}, apperr.Unauthenticated("user is required")
	}

	region := strings.TrimSpace(req.Region)
	if region == "" {
		region = m.gw.DefaultRegion()
	}
	if !gateway.Contains(m.gw.SupportedRegions(), region) {
		return LaunchOutcome{}, apperr.Validation("region %s is not supported; supported regions: %s",
			region, strings.Join(m.gw.SupportedRegions(), ", "))
	}

	instanceType := strings.TrimSpace(req.InstanceType)
	if instanceType == "" {
		instanceType = carbon.DefaultInstanceType
	}
	if !gateway.Contains(m.gw.SupportedInstanceTypes(), instanceType) {
		return LaunchOutcome{}, apperr.Validation("instance type %s is not supported; supported types: %s",
			instanceType, strings.Join(m.gw.SupportedInstanceTypes(), ", "))
	}

	workloadType := req.WorkloadType
	if workloadType == "" {
		workloadType = TypeComputation
	}
	if !workloadType.Valid() {
		return LaunchOutcome{}, apperr.Validation("unknown workload type %q", workloadType)
	}

	hours := req.DurationHours
	if hours == 0 {
		hours = DefaultDurationHours
	}
	if err := checkHours(hours); err != nil {
		return LaunchOutcome{}, err
	}

	if !m.gw.IsAvailable() {
		return LaunchOutcome{}, apperr.Disabled("cloud integration is disabled")
	}

	target, err := m.launchRegion(ctx, provider, region)
	if err != nil {
		return LaunchOutcome{}, err
	}
	if len(target.InstanceTypes) > 0 && !target.SupportsInstanceType(instanceType) {
		return LaunchOutcome{}, apperr.Validation("instance type %s is not offered in %s; offered types: %s",
			instanceType, region, strings.Join(target.InstanceTypes, ", "))
	}
	intensity, renewable := target.CarbonIntensity, target.RenewablePercentage

	detached := context.WithoutCancel(ctx)
	res, err := m.gw.Launch(detached, gateway.LaunchRequest{
		Region:       region,
		InstanceType: instanceType,
		Tags:         req.Tags,
	})
	if err != nil {
		return LaunchOutcome{}, err
	}

	est := m.estimate(provider, res.InstanceType, hours, intensity, renewable)
	now := m.now().UTC()
	launchTime := res.LaunchTime
	w := Workload{
		ID:                      m.newID(),
		UserID:                  req.UserID,
		WorkloadType:            workloadType,
		SourceLocation:          DefaultSourceLocation,
		TargetProvider:          provider,
		TargetRegion:            res.Region,
		InstanceID:              res.ExternalID,
		InstanceType:            res.InstanceType,
		EstimatedLocalEmissions: est.LocalEmissions,
		EstimatedCloudEmissions: est.CloudEmissions,
		EstimatedCost:           est.EstimatedCost,
		Status:                  StatusRunning,
		StartTime:               now,
		Metadata: Metadata{
			EnergyKWh:           est.EnergyKWh,
			DurationHours:       hours,
			PowerWatts:          est.PowerWatts,
			CarbonIntensity:     intensity,
			RenewablePercentage: renewable,
			LaunchTime:          &launchTime,
			ImageID:             res.ImageID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.RecomputeSavings()

	if err := m.create(detached, w); err != nil {
		m.logger.Error().Err(err).
			Str("instance_id", res.ExternalID).
			Str("region", res.Region).
			Msg("instance launched but workload record was not saved")
		return LaunchOutcome{}, apperr.Internal(err,
			fmt.Sprintf("instance %s launched but the workload record could not be saved", res.ExternalID))
	}

	m.recorder.RecordWorkload(provider, string(w.Status))
	m.recorder.RecordSavings(provider, w.Savings)
	m.logger.Info().
		Str("workload_id", w.ID).
		Str("user_id", w.UserID).
		Str("instance_id", w.InstanceID).
		Str("region", w.TargetRegion).
		Float64("savings_gco2", w.Savings).
		Msg("workload launched")

	return LaunchOutcome{Workload: w, Instance: res, Estimate: est}, nil
}

// Terminate terminates an instance. When a workload id is given the
// workload is completed with its elapsed duration and actual figures.
// Terminating an instance the provider no longer knows, or a workload that
// is already finished, succeeds without changes.
func (m *Manager) Terminate(ctx context.Context, req TerminateRequest) (TerminateOutcome, error) {
	provider, err := m.checkProvider(req.Provider)
	if err != nil {
		return TerminateOutcome{}, err
	}
	instanceID := strings.TrimSpace(req.InstanceID)
	if instanceID == "" {
		return TerminateOutcome{}, apperr.Validation("instanceId is required")
	}
	if !m.gw.IsAvailable() {
		return TerminateOutcome{}, apperr.Disabled("cloud integration is disabled")
	}

	var w *Workload
	region := req.Region
	if req.WorkloadID != "" {
		found, err := m.GetWorkload(ctx, req.UserID, req.WorkloadID)
		if err != nil {
			return TerminateOutcome{}, err
		}
		if found.InstanceID != "" && found.InstanceID != instanceID {
			return TerminateOutcome{}, apperr.Validation("workload %s does not belong to instance %s", found.ID, instanceID)
		}
		if found.Status.Terminal() {
			m.logger.Debug().Str("workload_id", found.ID).Str("status", string(found.Status)).
				Msg("terminate on finished workload is a no-op")
			return TerminateOutcome{
				Result:   gateway.TerminateResult{ExternalID: instanceID, CurrentState: gateway.StateTerminated},
				Workload: &found,
				NoOp:     true,
			}, nil
		}
		if !found.Status.CanTransitionTo(StatusCompleted) {
			return TerminateOutcome{}, apperr.New(apperr.KindConflict,
				"workload %s is %s and cannot be terminated", found.ID, found.Status)
		}
		if region == "" {
			region = found.TargetRegion
		}
		w = &found
	}

	detached := context.WithoutCancel(ctx)
	out := TerminateOutcome{}
	res, err := m.gw.Terminate(detached, instanceID, region)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		m.logger.Info().Str("instance_id", instanceID).Msg("instance already gone; terminate is a no-op")
		out.NoOp = true
		res = gateway.TerminateResult{ExternalID: instanceID, CurrentState: gateway.StateTerminated}
	case err != nil:
		return TerminateOutcome{}, err
	}
	out.Result = res

	if w == nil {
		return out, nil
	}

	m.complete(w, provider)
	if err := m.update(detached, *w); err != nil {
		return TerminateOutcome{}, apperr.Internal(err,
			fmt.Sprintf("instance %s terminated but workload %s could not be updated", instanceID, w.ID))
	}
	m.recorder.RecordWorkload(provider, string(w.Status))
	m.logger.Info().
		Str("workload_id", w.ID).
		Str("instance_id", instanceID).
		Int64("duration_s", *w.Duration).
		Msg("workload completed")

	out.Workload = w
	return out, nil
}

// complete moves w to completed and fills the actual figures from the
// elapsed time since StartTime.
func (m *Manager) complete(w *Workload, provider string) {
	end := m.now().UTC()
	seconds := int64(math.Floor(end.Sub(w.StartTime).Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	hours := float64(seconds) / 3600

	cost := 0.0
	if m.pricing != nil {
		cost = m.pricing.EstimateCost(provider, w.InstanceType, hours)
	}
	emissions := m.estimator.Estimate(w.InstanceType, hours, w.Metadata.CarbonIntensity).EmissionsGCO2

	w.Status = StatusCompleted
	w.EndTime = &end
	w.Duration = &seconds
	w.ActualCost = &cost
	w.ActualCloudEmissions = &emissions
	w.UpdatedAt = end
	w.RecomputeSavings()
}

// Status returns the provider's view of a managed instance. It never
// mutates a stored workload.
func (m *Manager) Status(ctx context.Context, provider, instanceID, region string) (gateway.InstanceSnapshot, error) {
	if _, err := m.checkProvider(provider); err != nil {
		return gateway.InstanceSnapshot{}, err
	}
	if strings.TrimSpace(instanceID) == "" {
		return gateway.InstanceSnapshot{}, apperr.Validation("instanceId is required")
	}
	if !m.gw.IsAvailable() {
		return gateway.InstanceSnapshot{}, apperr.Disabled("cloud integration is disabled")
	}
	return m.gw.Status(ctx, instanceID, region)
}

// ListInstances returns the managed instances in region.
func (m *Manager) ListInstances(ctx context.Context, provider, region string) ([]gateway.InstanceSnapshot, error) {
	if _, err := m.checkProvider(provider); err != nil {
		return nil, err
	}
	if !m.gw.IsAvailable() {
		return nil, apperr.Disabled("cloud integration is disabled")
	}
	return m.gw.List(ctx, region)
}

// SubmitSimulated records a pending workload without touching the gateway.
func (m *Manager) SubmitSimulated(ctx context.Context, req SimulatedRequest) (Workload, error) {
	if req.UserID == "" {
		return Workload{}, apperr.Unauthenticated("user is required")
	}
	if !req.WorkloadType.Valid() {
		return Workload{}, apperr.Validation("unknown workload type %q", req.WorkloadType)
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = regions.ProviderAWS
	}
	if !regions.IsKnownProvider(provider) {
		return Workload{}, apperr.Validation("unknown provider %q", req.Provider)
	}
	region := strings.TrimSpace(req.Region)
	if region == "" {
		return Workload{}, apperr.Validation("targetRegion is required")
	}

	target, err := m.catalog.Find(ctx, provider, region)
	if apperr.Is(err, apperr.KindNotFound) {
		return Workload{}, apperr.Validation("region %s is not in the %s catalog", region, provider)
	}
	if err != nil {
		return Workload{}, err
	}

	hours := req.DurationHours
	if hours == 0 {
		hours = DefaultDurationHours
	}
	if err := checkHours(hours); err != nil {
		return Workload{}, err
	}
	instanceType := strings.TrimSpace(req.InstanceType)
	if instanceType == "" {
		instanceType = carbon.DefaultInstanceType
	}
	est := m.estimate(provider, instanceType, hours, target.CarbonIntensity, target.RenewablePercentage)

	local := est.LocalEmissions
	if req.EstimatedLocalEmissions != nil {
		local = *req.EstimatedLocalEmissions
	}
	cloud := est.CloudEmissions
	if req.EstimatedCloudEmissions != nil {
		cloud = *req.EstimatedCloudEmissions
	}
	cost := est.EstimatedCost
	if req.EstimatedCost != nil {
		cost = *req.EstimatedCost
	}
	for _, v := range []float64{local, cloud, cost} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Workload{}, apperr.Validation("emission and cost estimates must be non-negative numbers")
		}
	}

	source := req.SourceLocation
	if source == "" {
		source = DefaultSourceLocation
	}

	now := m.now().UTC()
	w := Workload{
		ID:                      m.newID(),
		UserID:                  req.UserID,
		WorkloadType:            req.WorkloadType,
		SourceLocation:          source,
		TargetProvider:          provider,
		TargetRegion:            region,
		InstanceType:            instanceType,
		EstimatedLocalEmissions: local,
		EstimatedCloudEmissions: cloud,
		EstimatedCost:           cost,
		Status:                  StatusPending,
		StartTime:               now,
		Metadata: Metadata{
			EnergyKWh:           est.EnergyKWh,
			DurationHours:       hours,
			PowerWatts:          est.PowerWatts,
			CarbonIntensity:     target.CarbonIntensity,
			RenewablePercentage: target.RenewablePercentage,
			Simulated:           true,
			Labels:              req.Labels,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.RecomputeSavings()

	if err := m.create(ctx, w); err != nil {
		return Workload{}, apperr.Internal(err, "failed to save workload")
	}
	m.recorder.RecordWorkload(provider, string(w.Status))
	m.recorder.RecordSavings(provider, w.Savings)
	m.logger.Info().
		Str("workload_id", w.ID).
		Str("user_id", w.UserID).
		Str("region", region).
		Bool("simulated", true).
		Msg("workload submitted")
	return w, nil
}

// ListWorkloads returns the user's workloads, newest first, with stats
// computed over every match rather than only the returned page.
func (m *Manager) ListWorkloads(ctx context.Context, filter Filter) (ListResult, error) {
	if filter.UserID == "" {
		return ListResult{}, apperr.Unauthenticated("user is required")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return ListResult{}, apperr.Validation("unknown status %q", filter.Status)
	}
	filter.Provider = strings.ToLower(filter.Provider)
	switch {
	case filter.Limit < 0:
		return ListResult{}, apperr.Validation("limit must be positive")
	case filter.Limit == 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	list, err := m.repo.ListWorkloads(ctx, filter)
	if err != nil {
		return ListResult{}, apperr.Internal(err, "failed to list workloads")
	}
	stats, err := m.repo.AggregateWorkloads(ctx, filter)
	if err != nil {
		return ListResult{}, apperr.Internal(err, "failed to aggregate workloads")
	}
	stats.TotalCarbonSaved = roundTo(stats.TotalCarbonSaved, carbon.EmissionsPrecision)
	stats.TotalCost = roundTo(stats.TotalCost, pricing.CostPrecision)

	if list == nil {
		list = []Workload{}
	}
	return ListResult{Workloads: list, Stats: stats}, nil
}

// GetWorkload returns one of the user's workloads. Workloads of other users
// are reported as not found.
func (m *Manager) GetWorkload(ctx context.Context, userID, id string) (Workload, error) {
	w, err := m.repo.GetWorkload(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && w.UserID != userID) {
		return Workload{}, apperr.NotFound("workload %s not found", id)
	}
	if err != nil {
		return Workload{}, apperr.Internal(err, "failed to load workload")
	}
	return w, nil
}

// Reconcile compares a workload with its instance and records what the
// provider reports. Only provisioning and running workloads with an
// instance are inspected.
func (m *Manager) Reconcile(ctx context.Context, userID, id string) (ReconcileOutcome, error) {
	w, err := m.GetWorkload(ctx, userID, id)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	if w.InstanceID == "" || (w.Status != StatusRunning && w.Status != StatusProvisioning) {
		return ReconcileOutcome{Workload: w}, nil
	}
	if !m.gw.IsAvailable() {
		return ReconcileOutcome{}, apperr.Disabled("cloud integration is disabled")
	}

	out := ReconcileOutcome{Workload: w}
	snap, err := m.gw.Status(ctx, w.InstanceID, w.TargetRegion)
	var next Status
	var reason string
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		next = StatusFailed
		reason = fmt.Sprintf("instance %s no longer exists", w.InstanceID)
	case err != nil:
		return ReconcileOutcome{}, err
	default:
		out.Instance = &snap
		switch snap.State {
		case gateway.StateShuttingDown, gateway.StateTerminated:
			next = StatusFailed
			reason = fmt.Sprintf("instance %s is %s", w.InstanceID, snap.State)
		case gateway.StateRunning:
			if w.Status == StatusProvisioning {
				next = StatusRunning
			}
		}
	}
	if next == "" {
		return out, nil
	}

	if !w.Status.CanTransitionTo(next) {
		return ReconcileOutcome{}, apperr.New(apperr.KindConflict, "workload %s cannot move from %s to %s", w.ID, w.Status, next)
	}
	now := m.now().UTC()
	w.Status = next
	w.ErrorMessage = reason
	w.UpdatedAt = now
	if next == StatusFailed {
		w.EndTime = &now
	}
	w.RecomputeSavings()
	if err := m.update(ctx, w); err != nil {
		return ReconcileOutcome{}, apperr.Internal(err, "failed to update workload")
	}
	m.recorder.RecordWorkload(w.TargetProvider, string(w.Status))
	m.logger.Info().
		Str("workload_id", w.ID).
		Str("status", string(w.Status)).
		Str("reason", reason).
		Msg("workload reconciled")

	out.Workload = w
	out.Changed = true
	return out, nil
}

// checkProvider normalises provider and rejects anything the gateway cannot act on.
func (m *Manager) checkProvider(provider string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p != m.gw.Provider() {
		return "", apperr.Validation("provider %q is not supported", provider)
	}
	return p, nil
}

// launchRegion looks the region up in the catalog. A region the catalog
// does not hold yields an entry carrying the built-in grid factor and no
// instance type restriction.
func (m *Manager) launchRegion(ctx context.Context, provider, region string) (regions.CloudRegion, error) {
	r, err := m.catalog.Find(ctx, provider, region)
	if apperr.Is(err, apperr.KindNotFound) {
		intensity := carbon.GetGridIntensity(region)
		m.logger.Warn().
			Str("region", region).
			Float64("carbon_intensity", intensity).
			Msg("region missing from catalog; using grid factor table")
		return regions.CloudRegion{Provider: provider, Region: region, CarbonIntensity: intensity}, nil
	}
	if err != nil {
		return regions.CloudRegion{}, err
	}
	return r, nil
}

func (m *Manager) create(ctx context.Context, w Workload) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workload record: %w", err)
	}
	return m.repo.CreateWorkload(ctx, w)
}

func (m *Manager) update(ctx context.Context, w Workload) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workload record: %w", err)
	}
	return m.repo.UpdateWorkload(ctx, w)
}

func (m *Manager) estimate(provider, instanceType string, hours, intensity, renewable float64) Estimate {
	e := m.estimator.Estimate(instanceType, hours, intensity)
	est := Estimate{
		Savings:             carbon.ComputeSavings(m.local, intensity, e.PowerWatts, hours),
		InstanceType:        e.InstanceType,
		PowerWatts:          e.PowerWatts,
		DurationHours:       hours,
		CarbonIntensity:     intensity,
		RenewablePercentage: renewable,
	}
	if m.pricing != nil {
		est.EstimatedCost = m.pricing.EstimateCost(provider, e.InstanceType, hours)
		est.Currency = m.pricing.Currency()
	}
	return est
}

func checkHours(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return apperr.Validation("durationHours must be a positive number")
	}
	return nil
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

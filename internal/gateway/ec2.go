package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-offload/internal/apperr"
)

const (
	// ProviderAWS is the only provider the gateway can act on.
	ProviderAWS = "aws"

	// DefaultCallTimeout bounds every provider call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultManagedByTag is the ManagedBy tag value that marks our instances.
	DefaultManagedByTag = "CarbonTrackerApp"

	tagName      = "Name"
	tagManagedBy = "ManagedBy"
	tagCreatedAt = "CreatedAt"
	tagPurpose   = "Purpose"

	instanceName    = "CarbonTracker-Workload"
	instancePurpose = "Carbon-Optimization"

	errCodeInstanceNotFound  = "InvalidInstanceID.NotFound"
	errCodeInstanceMalformed = "InvalidInstanceID.Malformed"

	maxTagsToLog = 5
)

// listedStates are the instance states reported by List.
var listedStates = []string{StatePending, StateRunning, StateStopping, StateStopped}

// EC2API is the subset of the EC2 client the gateway uses.
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// Config holds the credentials and limits read once at startup.
type Config struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	DefaultRegion   string
	CallTimeout     time.Duration
	ManagedByTag    string
}

// Option customises an EC2Gateway.
type Option func(*EC2Gateway)

// WithClient injects an EC2 client instead of building one from credentials.
func WithClient(client EC2API) Option {
	return func(g *EC2Gateway) {
		g.client = client
	}
}

// WithRecorder attaches a call observer.
func WithRecorder(r Recorder) Option {
	return func(g *EC2Gateway) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithClock overrides the time source used for tags and defaults.
func WithClock(now func() time.Time) Option {
	return func(g *EC2Gateway) {
		g.now = now
	}
}

// EC2Gateway implements Gateway against Amazon EC2.
type EC2Gateway struct {
	cfg       Config
	client    EC2API
	available bool
	reason    string
	recorder  Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

var _ Gateway = (*EC2Gateway)(nil)

// NewEC2 builds the gateway. It never fails: a missing flag, missing
// credentials or an unloadable SDK config leave the gateway unavailable and
// the reason is logged.
func NewEC2(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...Option) *EC2Gateway {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = fallbackImageRegion
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ManagedByTag == "" {
		cfg.ManagedByTag = DefaultManagedByTag
	}

	g := &EC2Gateway{
		cfg:      cfg,
		recorder: nopRecorder{},
		logger:   logger.With().Str("component", "gateway").Str("provider", ProviderAWS).Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	switch {
	case !cfg.Enabled:
		g.reason = "cloud integration is disabled"
	case g.client != nil:
		g.available = true
	case cfg.AccessKeyID == "" || cfg.SecretAccessKey == "":
		g.reason = "AWS credentials not configured"
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DefaultRegion),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
		)
		if err != nil {
			g.reason = fmt.Sprintf("failed to load AWS config: %v", err)
			break
		}
		g.client = ec2.NewFromConfig(awsCfg)
		g.available = true
	}

	if g.available {
		g.logger.Info().
			Str("default_region", cfg.DefaultRegion).
			Dur("call_timeout", cfg.CallTimeout).
			Msg("provisioning gateway ready")
	} else {
		g.logger.Warn().Str("reason", g.reason).Msg("provisioning gateway unavailable")
	}
	return g
}

// Provider returns "aws".
func (g *EC2Gateway) Provider() string { return ProviderAWS }

// IsAvailable reports whether the gateway was configured at startup.
func (g *EC2Gateway) IsAvailable() bool { return g.available }

// DefaultRegion is used when callers pass no region.
func (g *EC2Gateway) DefaultRegion() string { return g.cfg.DefaultRegion }

// SupportedRegions returns the regions with a known machine image.
func (g *EC2Gateway) SupportedRegions() []string { return SupportedRegions() }

// SupportedInstanceTypes returns the launchable instance types.
func (g *EC2Gateway) SupportedInstanceTypes() []string { return SupportedInstanceTypes() }

// TestConnection checks credentials and reachability with a small describe call.
func (g *EC2Gateway) TestConnection(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Provider: ProviderAWS, Region: g.cfg.DefaultRegion}
	if !g.available {
		status.Detail = g.reason
		return status
	}

	err := g.call(ctx, "test_connection", func(ctx context.Context) error {
		_, err := g.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			MaxResults: aws.Int32(5),
		}, withRegion(g.cfg.DefaultRegion))
		return err
	})
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.OK = true
	status.Detail = "AWS connection successful"
	return status
}

// Launch starts one instance tagged as managed by this service.
func (g *EC2Gateway) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	region := g.region(req.Region)
	imageID := ImageForRegion(region)
	tags := g.launchTags(req.Tags)

	g.logger.Info().
		Str("region", region).
		Str("instance_type", req.InstanceType).
		Str("image_id", imageID).
		Interface("tags", sanitizeTagsForLogging(req.Tags)).
		Msg("launching instance")

	var out *ec2.RunInstancesOutput
	err := g.call(ctx, "launch", func(ctx context.Context) error {
		var err error
		out, err = g.client.RunInstances(ctx, &ec2.RunInstancesInput{
			ImageId:      aws.String(imageID),
			InstanceType: types.InstanceType(req.InstanceType),
			MinCount:     aws.Int32(1),
			MaxCount:     aws.Int32(1),
			TagSpecifications: []types.TagSpecification{{
				ResourceType: types.ResourceTypeInstance,
				Tags:         tags,
			}},
		}, withRegion(region))
		return err
	})
	if err != nil {
		return LaunchResult{}, err
	}
	if out == nil || len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		return LaunchResult{}, apperr.Provisioning(errors.New("response contained no instance"), "failed to launch instance")
	}

	inst := out.Instances[0]
	result := LaunchResult{
		Provider:     ProviderAWS,
		ExternalID:   aws.ToString(inst.InstanceId),
		State:        stateName(inst.State, StatePending),
		LaunchTime:   aws.ToTime(inst.LaunchTime),
		InstanceType: string(inst.InstanceType),
		Region:       region,
		ImageID:      imageID,
	}
	if result.LaunchTime.IsZero() {
		result.LaunchTime = g.now().UTC()
	}
	if result.InstanceType == "" {
		result.InstanceType = req.InstanceType
	}

	g.logger.Info().
		Str("instance_id", result.ExternalID).
		Str("state", result.State).
		Str("region", region).
		Msg("instance launched")
	return result, nil
}

// Terminate terminates externalID in region. Instances that do not carry the
// gateway's ManagedBy tag are reported as NotFound and left untouched.
func (g *EC2Gateway) Terminate(ctx context.Context, externalID, region string) (TerminateResult, error) {
	region = g.region(region)

	if _, err := g.Status(ctx, externalID, region); err != nil {
		return TerminateResult{}, err
	}

	var out *ec2.TerminateInstancesOutput
	err := g.call(ctx, "terminate", func(ctx context.Context) error {
		var err error
		out, err = g.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{externalID},
		}, withRegion(region))
		return err
	})
	if err != nil {
		return TerminateResult{}, err
	}
	if out == nil || len(out.TerminatingInstances) == 0 {
		return TerminateResult{}, apperr.Provisioning(errors.New("response contained no state change"), "failed to terminate instance")
	}

	change := out.TerminatingInstances[0]
	result := TerminateResult{
		ExternalID:    externalID,
		PreviousState: stateName(change.PreviousState, ""),
		CurrentState:  stateName(change.CurrentState, StateShuttingDown),
	}
	g.logger.Info().
		Str("instance_id", externalID).
		Str("previous_state", result.PreviousState).
		Str("current_state", result.CurrentState).
		Msg("instance terminated")
	return result, nil
}

// Status describes a single managed instance.
func (g *EC2Gateway) Status(ctx context.Context, externalID, region string) (InstanceSnapshot, error) {
	region = g.region(region)

	var out *ec2.DescribeInstancesOutput
	err := g.call(ctx, "status", func(ctx context.Context) error {
		var err error
		out, err = g.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{externalID},
		}, withRegion(region))
		return err
	})
	if err != nil {
		return InstanceSnapshot{}, err
	}

	if out != nil {
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				if aws.ToString(inst.InstanceId) != externalID {
					continue
				}
				snap := snapshot(inst, region)
				if snap.Tags[tagManagedBy] != g.cfg.ManagedByTag {
					break
				}
				return snap, nil
			}
		}
	}
	return InstanceSnapshot{}, apperr.NotFound("instance %s not found in %s", externalID, region)
}

// List returns live managed instances in region, oldest launch first.
func (g *EC2Gateway) List(ctx context.Context, region string) ([]InstanceSnapshot, error) {
	region = g.region(region)
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + tagManagedBy), Values: []string{g.cfg.ManagedByTag}},
			{Name: aws.String("instance-state-name"), Values: listedStates},
		},
	}

	instances := []InstanceSnapshot{}
	err := g.call(ctx, "list", func(ctx context.Context) error {
		paginator := ec2.NewDescribeInstancesPaginator(g.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx, withRegion(region))
			if err != nil {
				return err
			}
			for _, res := range page.Reservations {
				for _, inst := range res.Instances {
					snap := snapshot(inst, region)
					// Filters are applied server-side; re-check so a
					// misbehaving endpoint cannot widen the scope.
					if snap.Tags[tagManagedBy] != g.cfg.ManagedByTag {
						continue
					}
					instances = append(instances, snap)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].LaunchTime.Before(instances[j].LaunchTime)
	})
	return instances, nil
}

// call runs fn under the per-call timeout, classifies its error and
// records the outcome.
func (g *EC2Gateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !g.available {
		return apperr.Disabled("%s", g.reason)
	}

	start := g.now()
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil {
		err = g.classify(operation, err, callCtx.Err())
	}
	g.recorder.RecordGatewayCall(operation, resultLabel(err), g.now().Sub(start))

	if err != nil {
		evt := g.logger.Error()
		if apperr.Is(err, apperr.KindNotFound) {
			evt = g.logger.Debug()
		}
		evt.Str("operation", operation).
			Str("error_kind", string(apperr.KindOf(err))).
			Err(err).
			Msg("provider call failed")
	}
	return err
}

// classify maps a provider error onto the error taxonomy.
func (g *EC2Gateway) classify(operation string, err, ctxErr error) error {
	msg := fmt.Sprintf("failed to %s instance", operationVerb(operation))

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded) {
		return apperr.Timeout(err, fmt.Sprintf("%s: no response within %s", msg, g.cfg.CallTimeout))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeInstanceNotFound:
			return apperr.Wrap(apperr.KindNotFound, err, "instance not found")
		case errCodeInstanceMalformed:
			return apperr.Wrap(apperr.KindValidation, err, "malformed instance id")
		}
	}
	return apperr.Provisioning(err, msg)
}

func (g *EC2Gateway) region(region string) string {
	if region == "" {
		return g.cfg.DefaultRegion
	}
	return region
}

// launchTags returns the management tags followed by caller tags in key
// order. Caller tags cannot replace management tags.
func (g *EC2Gateway) launchTags(extra map[string]string) []types.Tag {
	reserved := map[string]string{
		tagName:      instanceName,
		tagManagedBy: g.cfg.ManagedByTag,
		tagCreatedAt: g.now().UTC().Format(time.RFC3339),
		tagPurpose:   instancePurpose,
	}
	tags := []types.Tag{
		{Key: aws.String(tagName), Value: aws.String(reserved[tagName])},
		{Key: aws.String(tagManagedBy), Value: aws.String(reserved[tagManagedBy])},
		{Key: aws.String(tagCreatedAt), Value: aws.String(reserved[tagCreatedAt])},
		{Key: aws.String(tagPurpose), Value: aws.String(reserved[tagPurpose])},
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if _, isReserved := reserved[k]; isReserved {
			g.logger.Warn().Str("tag", k).Msg("ignoring caller tag that shadows a management tag")
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(extra[k])})
	}
	return tags
}

func withRegion(region string) func(*ec2.Options) {
	return func(o *ec2.Options) {
		o.Region = region
	}
}

func snapshot(inst types.Instance, region string) InstanceSnapshot {
	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return InstanceSnapshot{
		ExternalID:   aws.ToString(inst.InstanceId),
		State:        stateName(inst.State, ""),
		InstanceType: string(inst.InstanceType),
		LaunchTime:   aws.ToTime(inst.LaunchTime),
		PublicIP:     aws.ToString(inst.PublicIpAddress),
		PrivateIP:    aws.ToString(inst.PrivateIpAddress),
		Region:       region,
		Tags:         tags,
	}
}

func stateName(s *types.InstanceState, fallback string) string {
	if s == nil || s.Name == "" {
		return fallback
	}
	return string(s.Name)
}

func resultLabel(err error) string {
	switch apperr.KindOf(err) {
	case "":
		return "success"
	case apperr.KindTimeout:
		return "timeout"
	case apperr.KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func operationVerb(operation string) string {
	switch operation {
	case "status":
		return "describe"
	case "test_connection":
		return "list"
	default:
		return operation
	}
}

// sanitizeTagsForLogging returns at most maxTagsToLog tags, dropping keys
// that look like credentials.
func sanitizeTagsForLogging(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sanitized := make(map[string]string, min(len(tags), maxTagsToLog))
	for _, k := range keys {
		if len(sanitized) >= maxTagsToLog {
			break
		}
		kLower := strings.ToLower(k)
		if strings.Contains(kLower, "secret") ||
			strings.Contains(kLower, "password") ||
			strings.Contains(kLower, "token") {
			continue
		}
		sanitized[k] = tags[k]
	}
	return sanitized
}

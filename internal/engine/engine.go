// Package engine implements the Network Discovery Engine: the staged
// scanner pipeline, the job state machine, and the owner-gated capability
// set that both the in-process worker and the transport proxy expose.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
	"github.com/ExclusiveAccount/discovery-engine/internal/netscan/cidr"
	"github.com/ExclusiveAccount/discovery-engine/internal/secretstore"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

// StartRequest is the validated input to StartDiscovery.
type StartRequest struct {
	Name                string
	TargetRange         string
	CredentialProfileID string
}

// Service is the capability set spec §9 requires to have two
// behaviorally-identical variants: this in-process Engine, and
// internal/transport.Proxy for the request domain. Assembly picks one,
// never per-call.
type Service interface {
	StartDiscovery(ctx context.Context, req StartRequest, owner string) (jobID string, err error)
	GetDiscoveryStatus(ctx context.Context, jobID, owner string) (*store.DiscoveryJob, error)
	GetDiscoveryResults(ctx context.Context, jobID, owner string) ([]store.Device, error)
	CancelDiscovery(ctx context.Context, jobID, owner string) error
}

// Limits bounds CIDR size and per-stage fan-out, sourced from
// internal/config.DiscoveryConfig.
type Limits struct {
	MinCIDRPrefix    int
	AllowLargeCIDR   bool
	StageConcurrency int
	LivenessTimeout  time.Duration
	PortTimeout      time.Duration
	SSHTimeout       time.Duration
}

// Engine is the direct, in-process implementation of Service. It is the
// type a discovery worker holds; a worker blocks freely for the duration
// of runPipeline, per spec §5.
type Engine struct {
	store   *store.Store
	secrets *secretstore.Store
	limits  Limits
	log     *logrus.Logger
}

// New builds an Engine bound to its own store/secret-store/limits.
func New(s *store.Store, secrets *secretstore.Store, limits Limits, log *logrus.Logger) *Engine {
	return &Engine{store: s, secrets: secrets, limits: limits, log: log}
}

// StartDiscovery validates the request, verifies profile ownership,
// creates the job row in pending, and runs the pipeline synchronously to
// completion before returning. Per spec §4.8 the job id is available the
// instant the row is created; internal/transport.Pool is what makes that
// id observable to the caller before the pipeline finishes, by replying
// on the control-plane channel as soon as Begin returns rather than
// waiting for runPipeline — see transport.Pool.handleStart.
func (e *Engine) StartDiscovery(ctx context.Context, req StartRequest, owner string) (string, error) {
	jobID, run, err := e.Begin(req, owner)
	if err != nil {
		return "", err
	}
	run(ctx)
	return jobID, nil
}

// Begin performs every fast, synchronous step of starting a job —
// validation, ownership check, job-row creation — and returns a run
// closure that executes the blocking pipeline. Splitting the two halves
// lets a transport worker reply with the job id immediately, then run the
// pipeline itself before picking up its next message (spec §5).
func (e *Engine) Begin(req StartRequest, owner string) (jobID string, run func(context.Context), err error) {
	if req.Name == "" || req.TargetRange == "" || req.CredentialProfileID == "" {
		return "", nil, apperr.New(apperr.InvalidArgument, "name, targetRange, and credentialProfileId are required")
	}
	if err := cidr.Validate(req.TargetRange, e.limits.MinCIDRPrefix, e.limits.AllowLargeCIDR); err != nil {
		return "", nil, apperr.Wrap(apperr.InvalidArgument, "invalid target range", err)
	}

	profile, err := e.store.Profiles.GetForOwner(req.CredentialProfileID, owner)
	if err != nil {
		return "", nil, err
	}

	job := &store.DiscoveryJob{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		TargetRange:         req.TargetRange,
		CredentialProfileID: profile.ID,
		CreatedBy:           owner,
	}
	if err := e.store.Jobs.Create(job); err != nil {
		return "", nil, err
	}

	run = func(ctx context.Context) {
		e.runPipeline(ctx, job, profile)
	}
	return job.ID, run, nil
}

// GetDiscoveryStatus returns the job row, owner-gated.
func (e *Engine) GetDiscoveryStatus(ctx context.Context, jobID, owner string) (*store.DiscoveryJob, error) {
	return e.store.Jobs.GetForOwner(jobID, owner)
}

// GetDiscoveryResults returns the devices scoped strictly to jobID (spec
// §9 Open Question 1, resolved in SPEC_FULL.md §9). The owner check on the
// job row is what gates visibility; devices themselves are fetched by job,
// not by profile.
func (e *Engine) GetDiscoveryResults(ctx context.Context, jobID, owner string) ([]store.Device, error) {
	if _, err := e.store.Jobs.GetForOwner(jobID, owner); err != nil {
		return nil, err
	}
	return e.store.Devices.ListForJob(jobID)
}

// CancelDiscovery flips a pending-or-running job to failed with a
// cancellation marker. Idempotent: a second call on an already-terminal
// job returns NotFound, satisfying the cancel-idempotence law in spec §8.
func (e *Engine) CancelDiscovery(ctx context.Context, jobID, owner string) error {
	if _, err := e.store.Jobs.GetForOwner(jobID, owner); err != nil {
		return err
	}
	cancelled, err := e.store.Jobs.Cancel(jobID)
	if err != nil {
		return err
	}
	if !cancelled {
		return apperr.New(apperr.NotFound, "job is already terminal")
	}
	return nil
}

var _ Service = (*Engine)(nil)

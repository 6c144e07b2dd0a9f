package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
	"github.com/ExclusiveAccount/discovery-engine/internal/secretstore"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	s, err := store.Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	secrets, err := secretstore.New("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	if err != nil {
		t.Fatalf("secretstore: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	limits := Limits{
		MinCIDRPrefix:    16,
		StageConcurrency: 64,
		LivenessTimeout:  50 * time.Millisecond,
		PortTimeout:      50 * time.Millisecond,
		SSHTimeout:       50 * time.Millisecond,
	}

	return New(s, secrets, limits, log), s
}

func seedEngineProfile(t *testing.T, s *store.Store, secrets *secretstore.Store, owner string) *store.CredentialProfile {
	t.Helper()
	ciphertext, err := secrets.Encrypt([]byte("password"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	p := &store.CredentialProfile{Name: "lab", Username: "root", Secret: ciphertext, Port: 22, OwnerID: owner}
	if err := s.Profiles.Create(p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func TestStartDiscoveryCompletesWithZeroDevices(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	jobID, err := e.StartDiscovery(context.Background(), StartRequest{
		Name:                "loopback sweep",
		TargetRange:         "203.0.113.0/30",
		CredentialProfileID: profile.ID,
	}, "alice")
	if err != nil {
		t.Fatalf("start discovery: %v", err)
	}

	job, err := e.GetDiscoveryStatus(context.Background(), jobID, "alice")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if job.Status != store.JobCompleted {
		t.Fatalf("expected job completed, got %s", job.Status)
	}
	// The summary is read back through JSON, so numbers decode as float64.
	if n, _ := job.Summary["devicesDiscovered"].(float64); n != 0 {
		t.Fatalf("expected summary devicesDiscovered == 0, got %v", job.Summary["devicesDiscovered"])
	}

	devices, err := e.GetDiscoveryResults(context.Background(), jobID, "alice")
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected zero devices for an unreachable range, got %d", len(devices))
	}
}

func TestStartDiscoveryRejectsBadCIDR(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	_, err := e.StartDiscovery(context.Background(), StartRequest{
		Name:                "bad range",
		TargetRange:         "10.0.0.0/33",
		CredentialProfileID: profile.ID,
	}, "alice")
	if !apperr.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestStartDiscoveryRejectsForeignProfile(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	_, err := e.StartDiscovery(context.Background(), StartRequest{
		Name:                "wrong owner",
		TargetRange:         "203.0.113.0/30",
		CredentialProfileID: profile.ID,
	}, "bob")
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for foreign profile, got %v", err)
	}
}

func TestCancelDiscoveryIsIdempotent(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	job := &store.DiscoveryJob{Name: "long sweep", TargetRange: "203.0.113.0/30", CredentialProfileID: profile.ID, CreatedBy: "alice"}
	if err := s.Jobs.Create(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.Jobs.SetRunning(job.ID); err != nil {
		t.Fatalf("set running: %v", err)
	}

	if err := e.CancelDiscovery(context.Background(), job.ID, "alice"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	err := e.CancelDiscovery(context.Background(), job.ID, "alice")
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected second cancel to return NotFound on an already-terminal job, got %v", err)
	}
}

func TestCancelDiscoveryWhilePendingStampsStartedAt(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	// Mirrors the race transport.Pool.handleStart can hit: Begin creates
	// the job row (pending) and replies with the job id on one worker,
	// before that worker calls run(ctx) -> SetRunning; a cancel landing on
	// a different worker in that window still has to see the pending job.
	job := &store.DiscoveryJob{Name: "race", TargetRange: "203.0.113.0/30", CredentialProfileID: profile.ID, CreatedBy: "alice"}
	if err := s.Jobs.Create(job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := e.CancelDiscovery(context.Background(), job.ID, "alice"); err != nil {
		t.Fatalf("cancel pending job: %v", err)
	}

	got, err := e.GetDiscoveryStatus(context.Background(), job.ID, "alice")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if got.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatalf("expected started_at set on a cancelled pending job (spec invariant: set iff status in {running,completed,failed})")
	}
}

func TestGetDiscoveryStatusOwnerIsolation(t *testing.T) {
	e, s := testEngine(t)
	profile := seedEngineProfile(t, s, e.secrets, "alice")

	job := &store.DiscoveryJob{Name: "isolated", TargetRange: "203.0.113.0/30", CredentialProfileID: profile.ID, CreatedBy: "alice"}
	if err := s.Jobs.Create(job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if _, err := e.GetDiscoveryStatus(context.Background(), job.ID, "bob"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for a disjoint owner, got %v", err)
	}
}

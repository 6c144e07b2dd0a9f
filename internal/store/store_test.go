package store

import (
	"testing"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProfile(t *testing.T, s *Store, owner string) *CredentialProfile {
	t.Helper()
	p := &CredentialProfile{Name: "default", Username: "root", Secret: "ciphertext", OwnerID: owner}
	if err := s.Profiles.Create(p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func TestProfileOwnershipIsolation(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")

	if _, err := s.Profiles.GetForOwner(p.ID, "bob"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for wrong owner, got %v", err)
	}
	if _, err := s.Profiles.GetForOwner(p.ID, "alice"); err != nil {
		t.Fatalf("expected success for correct owner, got %v", err)
	}
}

func TestDeviceUpsertOnConflict(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")

	d1 := &Device{IPv4Address: "10.0.0.5", CredentialProfileID: p.ID, Status: DeviceOnline, DiscoveryJobID: "job-1", Hostname: "first"}
	if err := s.Devices.InsertDiscovered(d1); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	d2 := &Device{IPv4Address: "10.0.0.5", CredentialProfileID: p.ID, Status: DeviceOffline, DiscoveryJobID: "job-2", Hostname: "second"}
	if err := s.Devices.InsertDiscovered(d2); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	devices, err := s.Devices.ListForOwner("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected exactly one device row after rescan, got %d", len(devices))
	}
	if devices[0].Hostname != "second" || devices[0].DiscoveryJobID != "job-2" {
		t.Fatalf("expected upsert to refresh hostname/job, got %+v", devices[0])
	}
}

func TestJobCompletionCancelRace(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")
	j := &DiscoveryJob{Name: "sweep", TargetRange: "10.0.0.0/24", CredentialProfileID: p.ID, CreatedBy: "alice"}
	if err := s.Jobs.Create(j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.Jobs.SetRunning(j.ID); err != nil {
		t.Fatalf("set running: %v", err)
	}

	cancelled, err := s.Jobs.Cancel(j.ID)
	if err != nil || !cancelled {
		t.Fatalf("expected cancel to win, got ok=%v err=%v", cancelled, err)
	}

	completed, err := s.Jobs.SetCompletedIfRunning(j.ID, JSONMap{"devicesFound": 3})
	if err != nil {
		t.Fatalf("set completed: %v", err)
	}
	if completed {
		t.Fatalf("expected SetCompletedIfRunning to lose the race after cancel, but it won")
	}

	got, err := s.Jobs.GetForOwner(j.ID, "alice")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobFailed {
		t.Fatalf("expected job left failed by the winning cancel, got %s", got.Status)
	}
}

func TestCancelPendingJobStampsStartedAt(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")
	j := &DiscoveryJob{Name: "sweep", TargetRange: "10.0.0.0/24", CredentialProfileID: p.ID, CreatedBy: "alice"}
	if err := s.Jobs.Create(j); err != nil {
		t.Fatalf("create job: %v", err)
	}

	cancelled, err := s.Jobs.Cancel(j.ID)
	if err != nil || !cancelled {
		t.Fatalf("expected cancel of a pending job to succeed, got ok=%v err=%v", cancelled, err)
	}

	got, err := s.Jobs.GetForOwner(j.ID, "alice")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatalf("expected started_at to be stamped when cancelling a pending job")
	}
	if got.CompletedAt == nil || !got.StartedAt.Equal(*got.CompletedAt) {
		t.Fatalf("expected started_at == completed_at for a pending-job cancel, got started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestProfileDeleteRestrictedByDevice(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")
	if err := s.Devices.InsertDiscovered(&Device{IPv4Address: "10.0.0.9", CredentialProfileID: p.ID, Status: DeviceOnline}); err != nil {
		t.Fatalf("insert device: %v", err)
	}

	err := s.Profiles.DeleteForOwner(p.ID, "alice")
	if !apperr.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument when profile is referenced by a device, got %v", err)
	}
}

func TestProfileDeleteSucceedsWhenUnreferenced(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")

	if err := s.Profiles.DeleteForOwner(p.ID, "alice"); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := s.Profiles.GetForOwner(p.ID, "alice"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected profile gone, got %v", err)
	}
}

func TestProfileUpdateIsOwnerGated(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")

	if err := s.Profiles.Update(p.ID, "bob", map[string]interface{}{"name": "renamed"}); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound updating someone else's profile, got %v", err)
	}
	if err := s.Profiles.Update(p.ID, "alice", map[string]interface{}{"name": "renamed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Profiles.GetForOwner(p.ID, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("expected name to be updated, got %q", got.Name)
	}
}

func TestDeviceListByStatusAndSearch(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")

	online := &Device{IPv4Address: "10.0.0.1", Hostname: "web-01", CredentialProfileID: p.ID, Status: DeviceOnline}
	offline := &Device{IPv4Address: "10.0.0.2", Hostname: "db-01", CredentialProfileID: p.ID, Status: DeviceOffline}
	if err := s.Devices.InsertDiscovered(online); err != nil {
		t.Fatalf("insert online: %v", err)
	}
	if err := s.Devices.InsertDiscovered(offline); err != nil {
		t.Fatalf("insert offline: %v", err)
	}

	onlineOnly, err := s.Devices.ListForOwnerByStatus(DeviceOnline, "alice")
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(onlineOnly) != 1 || onlineOnly[0].Hostname != "web-01" {
		t.Fatalf("expected only web-01 online, got %+v", onlineOnly)
	}

	byHostname, err := s.Devices.Search("web", "alice")
	if err != nil {
		t.Fatalf("search by hostname: %v", err)
	}
	if len(byHostname) != 1 || byHostname[0].Hostname != "web-01" {
		t.Fatalf("expected hostname search to match web-01, got %+v", byHostname)
	}

	byIP, err := s.Devices.Search("10.0.0.2", "alice")
	if err != nil {
		t.Fatalf("search by ip: %v", err)
	}
	if len(byIP) != 1 || byIP[0].Hostname != "db-01" {
		t.Fatalf("expected ip search to match db-01, got %+v", byIP)
	}

	if devices, err := s.Devices.Search("web", "bob"); err != nil || len(devices) != 0 {
		t.Fatalf("expected no results for foreign owner, got %+v err=%v", devices, err)
	}
}

func TestDeviceUpdateAndSetStatusAreOwnerGated(t *testing.T) {
	s := newTestStore(t)
	p := seedProfile(t, s, "alice")
	d := &Device{IPv4Address: "10.0.0.3", Hostname: "app-01", CredentialProfileID: p.ID, Status: DeviceOnline}
	if err := s.Devices.InsertDiscovered(d); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.Devices.Update(d.ID, "bob", map[string]interface{}{"hostname": "stolen"}); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound updating foreign device, got %v", err)
	}
	if err := s.Devices.Update(d.ID, "alice", map[string]interface{}{"hostname": "renamed"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.Devices.SetStatus(d.ID, DeviceOffline, "bob"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound setting status on foreign device, got %v", err)
	}
	if err := s.Devices.SetStatus(d.ID, DeviceOffline, "alice"); err != nil {
		t.Fatalf("set status: %v", err)
	}

	got, err := s.Devices.GetForOwner(d.ID, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Hostname != "renamed" || got.Status != DeviceOffline {
		t.Fatalf("expected renamed/offline device, got %+v", got)
	}
}

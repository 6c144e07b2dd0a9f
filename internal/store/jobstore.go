package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
)

// JobStore persists DiscoveryJob rows and the status-transition writes the
// engine's pipeline drives them through.
type JobStore struct {
	db *gorm.DB
}

// Create inserts a new job in JobPending state.
func (s *JobStore) Create(j *DiscoveryJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = JobPending
	j.CreatedAt = time.Now()
	if err := s.db.Create(j).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "create discovery job", err)
	}
	return nil
}

// SetRunning transitions a job from pending to running, stamping StartedAt.
func (s *JobStore) SetRunning(id string) error {
	now := time.Now()
	res := s.db.Model(&DiscoveryJob{}).
		Where("id = ? AND status = ?", id, JobPending).
		Updates(map[string]interface{}{"status": JobRunning, "started_at": now})
	if res.Error != nil {
		return apperr.Wrap(apperr.Internal, "set job running", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.InvalidArgument, "job is not pending")
	}
	return nil
}

// SetCompletedIfRunning stamps a job completed with its summary, but only if
// it is still running. Zero rows affected means a concurrent Cancel already
// won the race (SPEC_FULL.md §9 Open Question 3) — the caller should treat
// that as a no-op, not an error.
func (s *JobStore) SetCompletedIfRunning(id string, summary JSONMap) (bool, error) {
	now := time.Now()
	res := s.db.Model(&DiscoveryJob{}).
		Where("id = ? AND status = ?", id, JobRunning).
		Updates(map[string]interface{}{"status": JobCompleted, "completed_at": now, "summary": summary})
	if res.Error != nil {
		return false, apperr.Wrap(apperr.Internal, "set job completed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetFailedIfRunning stamps a job failed, with the same race handling as
// SetCompletedIfRunning.
func (s *JobStore) SetFailedIfRunning(id string, summary JSONMap) (bool, error) {
	now := time.Now()
	res := s.db.Model(&DiscoveryJob{}).
		Where("id = ? AND status = ?", id, JobRunning).
		Updates(map[string]interface{}{"status": JobFailed, "completed_at": now, "summary": summary})
	if res.Error != nil {
		return false, apperr.Wrap(apperr.Internal, "set job failed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Cancel transitions a pending-or-running job straight to failed, recording
// a cancellation note in its summary. It is idempotent: cancelling an
// already-terminal job is treated as a no-op and reported via the bool.
//
// Cancelling a still-pending job (reachable when CancelDiscovery lands on a
// different worker than the one running Begin/SetRunning) must still leave
// started_at set, since started_at is defined to be set iff status ∈
// {running, completed, failed} (spec §8). The CASE expression stamps it only
// when it hasn't already been set by SetRunning.
func (s *JobStore) Cancel(id string) (bool, error) {
	now := time.Now()
	res := s.db.Model(&DiscoveryJob{}).
		Where("id = ? AND status IN ?", id, []JobStatus{JobPending, JobRunning}).
		Updates(map[string]interface{}{
			"status":       JobFailed,
			"started_at":   gorm.Expr("CASE WHEN started_at IS NULL THEN ? ELSE started_at END", now),
			"completed_at": now,
			"summary":      JSONMap{"cancelled": true, "cancelled_at": now.UTC().Format(time.RFC3339)},
		})
	if res.Error != nil {
		return false, apperr.Wrap(apperr.Internal, "cancel job", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetForOwner fetches a job by ID, scoped to the owner via the job's own
// created_by column.
func (s *JobStore) GetForOwner(id, ownerID string) (*DiscoveryJob, error) {
	var j DiscoveryJob
	err := s.db.Where("id = ? AND created_by = ?", id, ownerID).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "discovery job not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get discovery job", err)
	}
	return &j, nil
}

// ListForOwner returns every job created by ownerID, newest first.
func (s *JobStore) ListForOwner(ownerID string) ([]DiscoveryJob, error) {
	var jobs []DiscoveryJob
	if err := s.db.Where("created_by = ?", ownerID).Order("created_at desc").Find(&jobs).Error; err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list discovery jobs", err)
	}
	return jobs, nil
}

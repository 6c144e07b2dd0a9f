package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
)

// ProfileStore persists CredentialProfile rows. Secret and PrivateKey are
// stored and returned exactly as given — callers (internal/engine) are
// responsible for encrypting before Create and decrypting after Get.
type ProfileStore struct {
	db *gorm.DB
}

// Create inserts a new profile owned by ownerID, generating its ID.
func (s *ProfileStore) Create(p *CredentialProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.db.Create(p).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "create credential profile", err)
	}
	return nil
}

// GetForOwner fetches a profile by ID, scoped to ownerID. Returns NotFound
// rather than Forbidden when the row exists but belongs to someone else, to
// avoid existence disclosure (spec §7).
func (s *ProfileStore) GetForOwner(id, ownerID string) (*CredentialProfile, error) {
	var p CredentialProfile
	err := s.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "credential profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get credential profile", err)
	}
	return &p, nil
}

// ListForOwner returns every profile belonging to ownerID.
func (s *ProfileStore) ListForOwner(ownerID string) ([]CredentialProfile, error) {
	var profiles []CredentialProfile
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&profiles).Error; err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list credential profiles", err)
	}
	return profiles, nil
}

// Update applies a partial field update to a profile, scoped to ownerID.
// The id and owner cannot be changed this way.
func (s *ProfileStore) Update(id, ownerID string, fields map[string]interface{}) error {
	delete(fields, "id")
	delete(fields, "owner_id")
	fields["updated_at"] = time.Now()

	res := s.db.Model(&CredentialProfile{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(fields)
	if res.Error != nil {
		return apperr.Wrap(apperr.Internal, "update credential profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "credential profile not found")
	}
	return nil
}

// DeleteForOwner removes a profile, rejecting the delete with
// InvalidArgument when it is still referenced by a device or a non-terminal
// job — the restrict-cascade decision recorded in SPEC_FULL.md §9.
func (s *ProfileStore) DeleteForOwner(id, ownerID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var profile CredentialProfile
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "credential profile not found")
			}
			return apperr.Wrap(apperr.Internal, "get credential profile", err)
		}

		var deviceCount int64
		if err := tx.Model(&Device{}).Where("credential_profile_id = ?", id).Count(&deviceCount).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "count devices", err)
		}
		if deviceCount > 0 {
			return apperr.New(apperr.InvalidArgument, "credential profile is referenced by existing devices")
		}

		var jobCount int64
		if err := tx.Model(&DiscoveryJob{}).
			Where("credential_profile_id = ? AND status IN ?", id, []JobStatus{JobPending, JobRunning}).
			Count(&jobCount).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "count jobs", err)
		}
		if jobCount > 0 {
			return apperr.New(apperr.InvalidArgument, "credential profile is referenced by a non-terminal discovery job")
		}

		if err := tx.Delete(&profile).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "delete credential profile", err)
		}
		return nil
	})
}

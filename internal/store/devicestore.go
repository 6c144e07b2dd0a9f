package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
)

// DeviceStore persists Device rows discovered by the pipeline.
type DeviceStore struct {
	db *gorm.DB
}

// InsertDiscovered upserts a device keyed on (credential_profile_id,
// ipv4_address) — SPEC_FULL.md §9 Open Question 2's resolution. A rescan of
// the same address under the same profile refreshes facts, status,
// last_seen, and the owning job rather than creating a duplicate row.
func (s *DeviceStore) InsertDiscovered(d *Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now()
	d.LastSeen = now
	d.CreatedAt, d.UpdatedAt = now, now

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ipv4_address"}, {Name: "credential_profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hostname", "device_type", "os_facts", "discovery_job_id",
			"status", "last_seen", "updated_at",
		}),
	}).Create(d).Error
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert discovered device", err)
	}
	return nil
}

// GetForOwner fetches a device by ID, joined through its credential
// profile's owner.
func (s *DeviceStore) GetForOwner(id, ownerID string) (*Device, error) {
	var d Device
	err := s.db.Joins("JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id").
		Where("devices.id = ? AND credential_profiles.owner_id = ?", id, ownerID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "device not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get device", err)
	}
	return &d, nil
}

// ListForJob returns every device most recently (re)discovered by jobID,
// the strict per-job results scoping from SPEC_FULL.md §9 Open Question 1.
func (s *DeviceStore) ListForJob(jobID string) ([]Device, error) {
	var devices []Device
	if err := s.db.Where("discovery_job_id = ?", jobID).Order("ipv4_address").Find(&devices).Error; err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list devices for job", err)
	}
	return devices, nil
}

// ListForOwner returns every device visible to ownerID across all its
// credential profiles.
func (s *DeviceStore) ListForOwner(ownerID string) ([]Device, error) {
	var devices []Device
	err := s.db.Joins("JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id").
		Where("credential_profiles.owner_id = ?", ownerID).
		Order("devices.ipv4_address").
		Find(&devices).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list devices for owner", err)
	}
	return devices, nil
}

// ListForOwnerByStatus returns every device visible to ownerID in the
// given status (spec §4.7).
func (s *DeviceStore) ListForOwnerByStatus(status DeviceStatus, ownerID string) ([]Device, error) {
	var devices []Device
	err := s.db.Joins("JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id").
		Where("credential_profiles.owner_id = ? AND devices.status = ?", ownerID, status).
		Order("devices.ipv4_address").
		Find(&devices).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list devices by status", err)
	}
	return devices, nil
}

// Search performs a LIKE-style match on hostname or ipv4 text, scoped to
// ownerID (spec §4.7).
func (s *DeviceStore) Search(substring, ownerID string) ([]Device, error) {
	like := "%" + substring + "%"
	var devices []Device
	err := s.db.Joins("JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id").
		Where("credential_profiles.owner_id = ? AND (devices.hostname LIKE ? OR devices.ipv4_address LIKE ?)", ownerID, like, like).
		Order("devices.ipv4_address").
		Find(&devices).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "search devices", err)
	}
	return devices, nil
}

// Update applies a partial field update to a device, scoped to ownerID.
// Only non-id, non-ownership fields may be changed this way.
func (s *DeviceStore) Update(id, ownerID string, fields map[string]interface{}) error {
	delete(fields, "id")
	delete(fields, "credential_profile_id")
	fields["updated_at"] = time.Now()

	res := s.db.Model(&Device{}).
		Where("id IN (SELECT devices.id FROM devices JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id WHERE devices.id = ? AND credential_profiles.owner_id = ?)", id, ownerID).
		Updates(fields)
	if res.Error != nil {
		return apperr.Wrap(apperr.Internal, "update device", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "device not found")
	}
	return nil
}

// SetStatus updates a single device's health status, scoped to ownerID —
// e.g. after a standalone liveness recheck outside a full discovery job.
func (s *DeviceStore) SetStatus(id string, status DeviceStatus, ownerID string) error {
	res := s.db.Model(&Device{}).
		Where("id IN (SELECT devices.id FROM devices JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id WHERE devices.id = ? AND credential_profiles.owner_id = ?)", id, ownerID).
		Updates(map[string]interface{}{"status": status, "last_seen": time.Now()})
	if res.Error != nil {
		return apperr.Wrap(apperr.Internal, "set device status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "device not found")
	}
	return nil
}

// DeleteForOwner removes a device, scoped to the owner.
func (s *DeviceStore) DeleteForOwner(id, ownerID string) error {
	res := s.db.Where("id IN (SELECT devices.id FROM devices JOIN credential_profiles ON credential_profiles.id = devices.credential_profile_id WHERE devices.id = ? AND credential_profiles.owner_id = ?)", id, ownerID).
		Delete(&Device{})
	if res.Error != nil {
		return apperr.Wrap(apperr.Internal, "delete device", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "device not found")
	}
	return nil
}

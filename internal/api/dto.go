package api

import "github.com/ExclusiveAccount/discovery-engine/internal/store"

// startDiscoveryRequest is the body of POST /api/discovery/start (spec §6).
type startDiscoveryRequest struct {
	Name                string `json:"name" binding:"required"`
	TargetRange         string `json:"targetRange" binding:"required"`
	CredentialProfileID string `json:"credentialProfileId" binding:"required"`
}

// jobView is the wire shape of a DiscoveryJob, isolating the JSON tags
// from the GORM model.
type jobView struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Status              string                 `json:"status"`
	TargetRange         string                 `json:"targetRange"`
	CredentialProfileID string                 `json:"credentialProfileId"`
	Summary             map[string]interface{} `json:"summary"`
	CreatedAt           string                 `json:"createdAt"`
	StartedAt           *string                `json:"startedAt"`
	CompletedAt         *string                `json:"completedAt"`
}

func newJobView(j *store.DiscoveryJob) jobView {
	v := jobView{
		ID:                  j.ID,
		Name:                j.Name,
		Status:              string(j.Status),
		TargetRange:         j.TargetRange,
		CredentialProfileID: j.CredentialProfileID,
		Summary:             j.Summary,
		CreatedAt:           j.CreatedAt.UTC().Format(rfc3339Milli),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.UTC().Format(rfc3339Milli)
		v.StartedAt = &s
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.UTC().Format(rfc3339Milli)
		v.CompletedAt = &s
	}
	return v
}

// deviceView is the wire shape of a Device.
type deviceView struct {
	ID                  string                 `json:"id"`
	Hostname            string                 `json:"hostname"`
	IPv4Address         string                 `json:"ipv4Address"`
	DeviceType          string                 `json:"deviceType"`
	OSFacts             map[string]interface{} `json:"osFacts"`
	CredentialProfileID string                 `json:"credentialProfileId"`
	Status              string                 `json:"status"`
	LastSeen            string                 `json:"lastSeen"`
}

func newDeviceView(d store.Device) deviceView {
	return deviceView{
		ID:                  d.ID,
		Hostname:            d.Hostname,
		IPv4Address:         d.IPv4Address,
		DeviceType:          d.DeviceType,
		OSFacts:             d.OSFacts,
		CredentialProfileID: d.CredentialProfileID,
		Status:              string(d.Status),
		LastSeen:            d.LastSeen.UTC().Format(rfc3339Milli),
	}
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

package models

// HealthStatus is the exposure state of a stored contact.
type HealthStatus string

const (
	// HealthStatusUnknown is the state of every newly recorded contact.
	HealthStatusUnknown HealthStatus = "UNKNOWN"
	// HealthStatusSick marks a contact whose id appeared in the exposure set.
	HealthStatusSick HealthStatus = "SICK"
)

// Location is a best-known position at the time a contact was recorded.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contact is a completed encounter with a nearby device.
type Contact struct {
	ID                 string       `json:"id"`
	DisplayName        string       `json:"display_name"`
	EncounterStartedAt int64        `json:"encounter_started_at"`
	DurationMS         int64        `json:"duration_ms"`
	AverageRSSI        int          `json:"average_rssi"`
	Location           *Location    `json:"location,omitempty"`
	HealthStatus       HealthStatus `json:"health_status"`
}

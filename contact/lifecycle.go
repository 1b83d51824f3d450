package contact

import (
	"github.com/google/uuid"

	"nodetrace/models"
	"nodetrace/presence"
)

// Finalize builds the persisted record for a completed session. The contact
// gets a fresh id so stored rows cannot be linked back to the identifier that
// was visible on the radio.
func Finalize(lost presence.PeerLost, location *models.Location) models.Contact {
	c := models.Contact{
		ID:                 uuid.NewString(),
		DisplayName:        lost.DisplayName,
		EncounterStartedAt: lost.FirstSeen.UnixMilli(),
		DurationMS:         lost.Duration().Milliseconds(),
		AverageRSSI:        lost.AverageRSSI,
		HealthStatus:       models.HealthStatusUnknown,
	}
	if location != nil {
		loc := *location
		c.Location = &loc
	}
	return c
}

package contact

import (
	"context"
	"errors"

	"nodetrace/models"
)

var (
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("contact: store failure")
	// ErrDirectory wraps exposure directory failures.
	ErrDirectory = errors.New("contact: exposure directory failure")
	// ErrPublishUnsupported is returned when the directory cannot accept reports.
	ErrPublishUnsupported = errors.New("contact: exposure directory does not accept reports")
)

// ContactStore persists contacts.
type ContactStore interface {
	InsertContact(c models.Contact) error
	ListContacts() ([]models.Contact, error)
	UpdateHealthStatus(id string, status models.HealthStatus) error
}

// ContactPruner is implemented by stores that can drop expired contacts.
type ContactPruner interface {
	PruneContactsBefore(cutoffTimestamp int64) (int64, error)
}

// ExposureDirectory serves the published at-risk identifiers.
type ExposureDirectory interface {
	FetchExposedIDs(ctx context.Context) ([]string, error)
}

// ExposurePublisher is implemented by directories that accept exposure reports.
type ExposurePublisher interface {
	PublishExposedIDs(ctx context.Context, ids []string) error
}

// LocationProvider returns the best known location, or nil.
type LocationProvider interface {
	BestKnownLocation() *models.Location
}

// StaticLocation is a LocationProvider returning a fixed position.
type StaticLocation struct {
	Location *models.Location
}

// BestKnownLocation implements LocationProvider.
func (s StaticLocation) BestKnownLocation() *models.Location {
	if s.Location == nil {
		return nil
	}
	loc := *s.Location
	return &loc
}

package storage

import (
	"testing"

	"github.com/google/uuid"

	"nodetrace/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustInsertContact(t *testing.T, store *Store, name string, startedAt int64) models.Contact {
	t.Helper()

	contact := models.Contact{
		ID:                 uuid.NewString(),
		DisplayName:        name,
		EncounterStartedAt: startedAt,
		DurationMS:         15_000,
		AverageRSSI:        -70,
		HealthStatus:       models.HealthStatusUnknown,
	}
	if err := store.InsertContact(contact); err != nil {
		t.Fatalf("insert contact %q: %v", name, err)
	}
	return contact
}

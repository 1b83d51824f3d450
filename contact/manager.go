package contact

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"nodetrace/models"
	"nodetrace/presence"
)

var log = logging.Logger("contact")

const (
	// DefaultRetention is how far back risk checks look.
	DefaultRetention = 14 * 24 * time.Hour
	// DefaultRiskCheckInterval is the cadence of scheduled risk checks.
	DefaultRiskCheckInterval = 6 * time.Hour
)

// ManagerConfig wires the manager to its collaborators. Store is required.
type ManagerConfig struct {
	Store     ContactStore
	Directory ExposureDirectory
	Location  LocationProvider
	Retention time.Duration

	// OnEvent observes every presence event before it is handled.
	OnEvent func(presence.Event)
	// OnRecorded observes every persisted contact.
	OnRecorded func(models.Contact)
	// OnExposed observes contacts newly marked SICK by a risk check.
	OnExposed func([]models.Contact)

	now func() time.Time
}

// Manager turns lost sessions into stored contacts and keeps their health
// status in sync with the exposure directory.
type Manager struct {
	cfg ManagerConfig
}

// NewManager validates cfg and applies defaults.
func NewManager(config ManagerConfig) (*Manager, error) {
	cfg := config
	if cfg.Store == nil {
		return nil, errors.New("contact store is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

// HandleEvent persists a contact for PeerLost and ignores other events.
func (m *Manager) HandleEvent(event presence.Event) error {
	lost, ok := event.(presence.PeerLost)
	if !ok {
		return nil
	}

	var location *models.Location
	if m.cfg.Location != nil {
		location = m.cfg.Location.BestKnownLocation()
	}
	c := Finalize(lost, location)
	if err := m.cfg.Store.InsertContact(c); err != nil {
		return fmt.Errorf("%w: insert contact for %s: %v", ErrStore, lost.NodeID, err)
	}
	log.Infof("contact recorded id=%s name=%q duration_ms=%d avg_rssi=%d", c.ID, c.DisplayName, c.DurationMS, c.AverageRSSI)

	if m.cfg.OnRecorded != nil {
		m.cfg.OnRecorded(c)
	}
	return nil
}

// Run handles events until the channel closes or ctx is done. Store failures
// are logged and the loop keeps going.
func (m *Manager) Run(ctx context.Context, events <-chan presence.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if m.cfg.OnEvent != nil {
				m.cfg.OnEvent(event)
			}
			if err := m.HandleEvent(event); err != nil {
				log.Warnf("dropping contact: %v", err)
			}
		}
	}
}

// CheckRisk fetches the exposure set, reconciles it against stored contacts
// inside the retention window and persists SICK for new matches. A fetch
// failure skips the cycle and leaves every contact untouched.
func (m *Manager) CheckRisk(ctx context.Context) ([]models.Contact, error) {
	if m.cfg.Directory == nil {
		return nil, fmt.Errorf("%w: no directory configured", ErrDirectory)
	}

	ids, err := m.cfg.Directory.FetchExposedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch exposed ids: %v", ErrDirectory, err)
	}

	stored, err := m.cfg.Store.ListContacts()
	if err != nil {
		return nil, fmt.Errorf("%w: list contacts: %v", ErrStore, err)
	}

	cutoff := m.cfg.now().Add(-m.cfg.Retention).UnixMilli()
	recent := make([]models.Contact, 0, len(stored))
	previous := make(map[string]models.HealthStatus, len(stored))
	for _, c := range stored {
		if c.EncounterStartedAt < cutoff {
			continue
		}
		recent = append(recent, c)
		previous[c.ID] = c.HealthStatus
	}

	newlyExposed := make([]models.Contact, 0)
	for _, c := range Reconcile(recent, NewIDSet(ids)) {
		if previous[c.ID] == models.HealthStatusSick {
			continue
		}
		if err := m.cfg.Store.UpdateHealthStatus(c.ID, c.HealthStatus); err != nil {
			return newlyExposed, fmt.Errorf("%w: update health status %s: %v", ErrStore, c.ID, err)
		}
		newlyExposed = append(newlyExposed, c)
	}

	if len(newlyExposed) > 0 {
		log.Warnf("risk check: %d contacts newly exposed", len(newlyExposed))
		if m.cfg.OnExposed != nil {
			m.cfg.OnExposed(newlyExposed)
		}
	} else {
		log.Debugf("risk check: no new exposures among %d contacts", len(recent))
	}
	return newlyExposed, nil
}

// PruneExpired deletes contacts older than the retention window when the
// store supports it.
func (m *Manager) PruneExpired() (int64, error) {
	pruner, ok := m.cfg.Store.(ContactPruner)
	if !ok {
		return 0, nil
	}
	cutoff := m.cfg.now().Add(-m.cfg.Retention).UnixMilli()
	removed, err := pruner.PruneContactsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune contacts: %v", ErrStore, err)
	}
	if removed > 0 {
		log.Infof("pruned %d expired contacts", removed)
	}
	return removed, nil
}

// RunRiskChecks prunes expired contacts and runs CheckRisk immediately, then
// every interval until ctx is done.
func (m *Manager) RunRiskChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRiskCheckInterval
	}

	m.checkRiskAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkRiskAndLog(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) checkRiskAndLog(ctx context.Context) {
	if _, err := m.PruneExpired(); err != nil {
		log.Warnf("retention prune failed: %v", err)
	}
	if _, err := m.CheckRisk(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warnf("risk check skipped: %v", err)
	}
}

// ReportExposure publishes every stored contact id inside the retention
// window. It is used when the local user reports being sick.
func (m *Manager) ReportExposure(ctx context.Context) (int, error) {
	publisher, ok := m.cfg.Directory.(ExposurePublisher)
	if !ok {
		return 0, ErrPublishUnsupported
	}

	stored, err := m.cfg.Store.ListContacts()
	if err != nil {
		return 0, fmt.Errorf("%w: list contacts: %v", ErrStore, err)
	}

	cutoff := m.cfg.now().Add(-m.cfg.Retention).UnixMilli()
	ids := make([]string, 0, len(stored))
	for _, c := range stored {
		if c.EncounterStartedAt >= cutoff {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := publisher.PublishExposedIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("%w: publish exposed ids: %v", ErrDirectory, err)
	}
	log.Infof("reported %d contacts as exposed", len(ids))
	return len(ids), nil
}

package presence

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"nodetrace/beacon"
)

var log = logging.Logger("presence")

// Sighting is one decoded advertisement reported by the radio layer.
type Sighting struct {
	NodeID      beacon.NodeIdentifier
	DisplayName string
	RSSI        int
	At          time.Time
}

// queuedSighting carries the run generation it was accepted under.
type queuedSighting struct {
	Sighting
	generation uint64
}

// MonitorConfig controls the sweep loop.
type MonitorConfig struct {
	OutOfRangeTimeout time.Duration
	SweepInterval     time.Duration
	EventBuffer       int

	now func() time.Time
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	out := c
	if out.OutOfRangeTimeout <= 0 {
		out.OutOfRangeTimeout = DefaultOutOfRangeTimeout
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = DefaultSweepInterval
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = 256
	}
	if out.now == nil {
		out.now = time.Now
	}
	return out
}

// Monitor drives a Tracker from one goroutine. Sightings and sweep ticks are
// processed in arrival order on that goroutine, so events for a peer always
// leave in PeerFound, SignalUpdated*, PeerLost order.
type Monitor struct {
	cfg     MonitorConfig
	tracker *Tracker

	sightings chan queuedSighting
	events    chan Event

	mu         sync.Mutex
	running    bool
	generation uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
}

// NewMonitor creates a stopped monitor.
func NewMonitor(config MonitorConfig) *Monitor {
	cfg := config.withDefaults()
	return &Monitor{
		cfg:       cfg,
		tracker:   NewTracker(cfg.OutOfRangeTimeout),
		sightings: make(chan queuedSighting, cfg.EventBuffer),
		events:    make(chan Event, cfg.EventBuffer),
	}
}

// Tracker exposes the underlying state machine for snapshots.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Events provides presence updates. The channel is closed by Close.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Running reports whether the sweep loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins the sweep loop. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})
	m.running = true
	m.generation++
	go m.loop(m.ctx, m.done, m.generation)
}

// Stop halts the sweep loop and discards every open session. Sessions that
// were still in range are not reported as lost.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.cancel()
	<-m.done
	m.running = false

drain:
	for {
		select {
		case <-m.sightings:
		default:
			break drain
		}
	}
	if dropped := m.tracker.Reset(); dropped > 0 {
		log.Infof("discarded %d open sessions on stop", dropped)
	}
}

// Close stops the monitor and closes the event channel.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		m.Stop()
		close(m.events)
	})
}

// Sighting queues a sighting for the loop. It returns false if the monitor
// is not running. A sighting accepted just before Stop is dropped by the
// loop of any later run.
func (m *Monitor) Sighting(s Sighting) bool {
	m.mu.Lock()
	running, ctx, generation := m.running, m.ctx, m.generation
	m.mu.Unlock()
	if !running {
		return false
	}

	if s.At.IsZero() {
		s.At = m.cfg.now()
	}
	select {
	case m.sightings <- queuedSighting{Sighting: s, generation: generation}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}, generation uint64) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.sightings:
			if s.generation != generation {
				log.Debugf("dropping sighting of %s from a stopped run", s.NodeID)
				continue
			}
			if event, ok := m.tracker.OnSighting(s.NodeID, s.DisplayName, s.RSSI, s.At); ok {
				if found, isFound := event.(PeerFound); isFound {
					log.Infof("peer found id=%s name=%q", found.NodeID, found.DisplayName)
				}
				m.emit(ctx, event)
			}
		case <-ticker.C:
			for _, event := range m.tracker.Sweep(m.cfg.now()) {
				lost := event.(PeerLost)
				log.Infof("peer lost id=%s name=%q duration=%s samples=%d avg_rssi=%d",
					lost.NodeID, lost.DisplayName, lost.Duration(), lost.SampleCount, lost.AverageRSSI)
				m.emit(ctx, event)
			}
		}
	}
}

func (m *Monitor) emit(ctx context.Context, event Event) {
	select {
	case m.events <- event:
	case <-ctx.Done():
	}
}

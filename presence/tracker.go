package presence

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"nodetrace/beacon"
)

const (
	// DefaultOutOfRangeTimeout is how long a peer may go unseen before it is lost.
	DefaultOutOfRangeTimeout = 12 * time.Second
	// DefaultSweepInterval is the sweep cadence.
	DefaultSweepInterval = time.Second
)

// TrackedPeer is the in-memory state of one open session.
type TrackedPeer struct {
	NodeID      beacon.NodeIdentifier
	DisplayName string
	FirstSeen   time.Time
	LastSeen    time.Time
	RSSISamples []int
}

// Tracker is the presence state machine. All access to the peer map goes
// through its methods under one mutex.
type Tracker struct {
	timeout time.Duration

	mu    sync.Mutex
	peers map[beacon.NodeIdentifier]*TrackedPeer
}

// NewTracker creates a tracker. A non-positive timeout selects the default.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultOutOfRangeTimeout
	}
	return &Tracker{
		timeout: timeout,
		peers:   make(map[beacon.NodeIdentifier]*TrackedPeer),
	}
}

// Timeout returns the out-of-range threshold.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// OnSighting records one observation of id. It returns PeerFound for an
// unseen peer and SignalUpdated for a tracked one. A zero RSSI on a tracked
// peer means "no reading" and is dropped without touching LastSeen.
func (t *Tracker) OnSighting(id beacon.NodeIdentifier, displayName string, rssi int, now time.Time) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	peer, exists := t.peers[id]
	if !exists {
		t.peers[id] = &TrackedPeer{
			NodeID:      id,
			DisplayName: displayName,
			FirstSeen:   now,
			LastSeen:    now,
		}
		return PeerFound{NodeID: id, DisplayName: displayName, At: now}, true
	}

	if rssi == 0 {
		return nil, false
	}
	peer.RSSISamples = append(peer.RSSISamples, rssi)
	peer.LastSeen = now
	return SignalUpdated{NodeID: id, RSSI: rssi, At: now}, true
}

// Sweep removes every peer unseen for strictly longer than the timeout and
// returns a PeerLost event per removed peer, ordered by first sighting.
func (t *Tracker) Sweep(now time.Time) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lost []PeerLost
	for id, peer := range t.peers {
		if now.Sub(peer.LastSeen) <= t.timeout {
			continue
		}
		delete(t.peers, id)
		lost = append(lost, PeerLost{
			NodeID:      id,
			DisplayName: peer.DisplayName,
			FirstSeen:   peer.FirstSeen,
			LostAt:      now,
			AverageRSSI: AverageRSSI(peer.RSSISamples),
			SampleCount: len(peer.RSSISamples),
		})
	}
	if len(lost) == 0 {
		return nil
	}

	sort.Slice(lost, func(i, j int) bool {
		if lost[i].FirstSeen.Equal(lost[j].FirstSeen) {
			return bytes.Compare(lost[i].NodeID[:], lost[j].NodeID[:]) < 0
		}
		return lost[i].FirstSeen.Before(lost[j].FirstSeen)
	})
	events := make([]Event, 0, len(lost))
	for _, e := range lost {
		events = append(events, e)
	}
	return events
}

// Reset discards every open session without emitting events and returns how
// many were dropped.
func (t *Tracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.peers)
	t.peers = make(map[beacon.NodeIdentifier]*TrackedPeer)
	return n
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// ListPeers returns a snapshot of open sessions ordered by first sighting.
func (t *Tracker) ListPeers() []TrackedPeer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrackedPeer, 0, len(t.peers))
	for _, peer := range t.peers {
		cp := *peer
		cp.RSSISamples = append([]int(nil), peer.RSSISamples...)
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return bytes.Compare(out[i].NodeID[:], out[j].NodeID[:]) < 0
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// AverageRSSI is the floor of the arithmetic mean of samples, or 0 when
// there are none.
func AverageRSSI(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, s := range samples {
		sum += s
	}
	n := len(samples)
	q := sum / n
	if sum%n != 0 && sum < 0 {
		q--
	}
	return q
}

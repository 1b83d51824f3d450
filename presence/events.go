package presence

import (
	"time"

	"nodetrace/beacon"
)

const (
	// EventPeerFound is emitted on the first sighting of a peer.
	EventPeerFound EventType = "peer_found"
	// EventSignalUpdated is emitted for every later sighting with a usable RSSI.
	EventSignalUpdated EventType = "signal_updated"
	// EventPeerLost is emitted once a peer has been out of range past the timeout.
	EventPeerLost EventType = "peer_lost"
)

// EventType identifies presence updates.
type EventType string

// Event is one of PeerFound, SignalUpdated or PeerLost.
type Event interface {
	Type() EventType
	Peer() beacon.NodeIdentifier
	presenceEvent()
}

// PeerFound starts a session.
type PeerFound struct {
	NodeID      beacon.NodeIdentifier
	DisplayName string
	At          time.Time
}

// SignalUpdated carries one RSSI sample.
type SignalUpdated struct {
	NodeID beacon.NodeIdentifier
	RSSI   int
	At     time.Time
}

// PeerLost ends a session.
type PeerLost struct {
	NodeID      beacon.NodeIdentifier
	DisplayName string
	FirstSeen   time.Time
	LostAt      time.Time
	AverageRSSI int
	SampleCount int
}

func (PeerFound) Type() EventType     { return EventPeerFound }
func (SignalUpdated) Type() EventType { return EventSignalUpdated }
func (PeerLost) Type() EventType      { return EventPeerLost }

func (e PeerFound) Peer() beacon.NodeIdentifier     { return e.NodeID }
func (e SignalUpdated) Peer() beacon.NodeIdentifier { return e.NodeID }
func (e PeerLost) Peer() beacon.NodeIdentifier      { return e.NodeID }

func (PeerFound) presenceEvent()     {}
func (SignalUpdated) presenceEvent() {}
func (PeerLost) presenceEvent()      {}

// Duration is the session length, never negative.
func (e PeerLost) Duration() time.Duration {
	d := e.LostAt.Sub(e.FirstSeen)
	if d < 0 {
		return 0
	}
	return d
}

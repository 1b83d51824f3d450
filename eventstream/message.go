// Package eventstream pushes presence and contact events to UI clients over
// websockets and serves the read-only contact and peer listings.
package eventstream

import (
	"time"

	"nodetrace/models"
	"nodetrace/presence"
)

// Message types beyond the presence event types.
const (
	TypeContactRecorded = "contact_recorded"
	TypeContactExposed  = "contact_exposed"
)

// Message is the JSON frame sent to every client.
type Message struct {
	Type    string          `json:"type"`
	At      int64           `json:"at"`
	Peer    *PeerInfo       `json:"peer,omitempty"`
	Contact *models.Contact `json:"contact,omitempty"`
}

// PeerInfo describes a nearby peer.
type PeerInfo struct {
	NodeID      string `json:"node_id"`
	DisplayName string `json:"display_name,omitempty"`
	RSSI        *int   `json:"rssi,omitempty"`
	FirstSeen   int64  `json:"first_seen,omitempty"`
	LastSeen    int64  `json:"last_seen,omitempty"`
	AverageRSSI *int   `json:"average_rssi,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
}

// FromPresence converts a presence event into a message.
func FromPresence(event presence.Event) Message {
	switch e := event.(type) {
	case presence.PeerFound:
		return Message{
			Type: string(e.Type()),
			At:   e.At.UnixMilli(),
			Peer: &PeerInfo{NodeID: e.NodeID.String(), DisplayName: e.DisplayName, FirstSeen: e.At.UnixMilli()},
		}
	case presence.SignalUpdated:
		rssi := e.RSSI
		return Message{
			Type: string(e.Type()),
			At:   e.At.UnixMilli(),
			Peer: &PeerInfo{NodeID: e.NodeID.String(), RSSI: &rssi},
		}
	case presence.PeerLost:
		avg := e.AverageRSSI
		return Message{
			Type: string(e.Type()),
			At:   e.LostAt.UnixMilli(),
			Peer: &PeerInfo{
				NodeID:      e.NodeID.String(),
				DisplayName: e.DisplayName,
				FirstSeen:   e.FirstSeen.UnixMilli(),
				LastSeen:    e.LostAt.UnixMilli(),
				AverageRSSI: &avg,
				DurationMS:  e.Duration().Milliseconds(),
			},
		}
	default:
		return Message{Type: string(event.Type()), At: time.Now().UnixMilli(), Peer: &PeerInfo{NodeID: event.Peer().String()}}
	}
}

// FromContact wraps a contact in a message of the given type.
func FromContact(messageType string, c models.Contact) Message {
	return Message{Type: messageType, At: time.Now().UnixMilli(), Contact: &c}
}

func peerInfo(p presence.TrackedPeer) PeerInfo {
	avg := presence.AverageRSSI(p.RSSISamples)
	return PeerInfo{
		NodeID:      p.NodeID.String(),
		DisplayName: p.DisplayName,
		FirstSeen:   p.FirstSeen.UnixMilli(),
		LastSeen:    p.LastSeen.UnixMilli(),
		AverageRSSI: &avg,
		DurationMS:  p.LastSeen.Sub(p.FirstSeen).Milliseconds(),
	}
}

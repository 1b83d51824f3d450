package eventstream

import (
	"encoding/json"
	"net/http"
	"strconv"

	"nodetrace/models"
	"nodetrace/presence"
)

// ContactLister reads stored contacts.
type ContactLister interface {
	ListContacts() ([]models.Contact, error)
	ListContactsSince(sinceTimestamp int64) ([]models.Contact, error)
}

// PeerLister snapshots the peers currently in range.
type PeerLister interface {
	ListPeers() []presence.TrackedPeer
}

// NewMux serves the websocket stream at /events, contact history at
// /contacts and the nearby peers at /peers.
func NewMux(hub *Hub, contacts ContactLister, peers PeerLister) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.HandleFunc("/contacts", contactsHandler(contacts))
	mux.HandleFunc("/peers", peersHandler(peers))
	return mux
}

// contactsHandler lists contacts newest first; ?since=<unix ms> limits the
// result to encounters that started at or after that time.
func contactsHandler(contacts ContactLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var (
			list []models.Contact
			err  error
		)
		if raw := r.URL.Query().Get("since"); raw != "" {
			since, parseErr := strconv.ParseInt(raw, 10, 64)
			if parseErr != nil {
				http.Error(w, "invalid since", http.StatusBadRequest)
				return
			}
			list, err = contacts.ListContactsSince(since)
		} else {
			list, err = contacts.ListContacts()
		}
		if err != nil {
			log.Warnf("list contacts: %v", err)
			http.Error(w, "failed to list contacts", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []models.Contact{}
		}
		writeJSON(w, list)
	}
}

func peersHandler(peers PeerLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snapshot := peers.ListPeers()
		out := make([]PeerInfo, 0, len(snapshot))
		for _, p := range snapshot {
			out = append(out, peerInfo(p))
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

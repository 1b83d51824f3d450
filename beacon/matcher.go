package beacon

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("beacon")

// Filter is the coarse pre-filter handed to the radio layer. Mask bytes that
// are non-zero mark offsets that must equal Data; zero mask bytes are ignored.
type Filter struct {
	ManufacturerID uint16
	Data           []byte
	Mask           []byte
}

// TransportFilter returns the filter matching every payload produced by Encode.
func TransportFilter() Filter {
	data := make([]byte, PayloadLength)
	mask := make([]byte, PayloadLength)
	for i := range payloadTemplate {
		if isFixedOffset(i) {
			data[i] = payloadTemplate[i]
			mask[i] = 0x01
		}
	}
	return Filter{
		ManufacturerID: ManufacturerID,
		Data:           data,
		Mask:           mask,
	}
}

// Matches applies masked byte equality to manufacturer data.
func (f Filter) Matches(manufacturerID uint16, data []byte) bool {
	if manufacturerID != f.ManufacturerID {
		return false
	}
	if len(data) != len(f.Data) || len(f.Mask) != len(f.Data) {
		return false
	}
	for i := range f.Data {
		if f.Mask[i] != 0 && data[i] != f.Data[i] {
			return false
		}
	}
	return true
}

// Matcher turns manufacturer data into node identifiers and drops the local
// device's own advertisement.
type Matcher struct {
	mu      sync.RWMutex
	self    NodeIdentifier
	hasSelf bool
}

// NewMatcher creates a matcher with no local identifier.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// SetSelf records the identifier currently advertised by this device.
func (m *Matcher) SetSelf(id NodeIdentifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = id
	m.hasSelf = true
}

// ClearSelf forgets the local identifier once advertising stops.
func (m *Matcher) ClearSelf() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = NodeIdentifier{}
	m.hasSelf = false
}

// Identify decodes manufacturer data. Foreign or corrupted data that slipped
// past the transport filter yields false and is not an error.
func (m *Matcher) Identify(manufacturerID uint16, data []byte) (NodeIdentifier, bool) {
	if manufacturerID != ManufacturerID {
		return NodeIdentifier{}, false
	}
	id, err := Decode(data)
	if err != nil {
		log.Debugf("dropping advertisement: %v", err)
		return NodeIdentifier{}, false
	}

	m.mu.RLock()
	isSelf := m.hasSelf && m.self == id
	m.mu.RUnlock()
	if isSelf {
		return NodeIdentifier{}, false
	}
	return id, true
}

package beacon

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// PayloadLength is the size of the manufacturer-specific advertisement payload.
	PayloadLength = 23
	// IdentifierLength is the size of a NodeIdentifier.
	IdentifierLength = 16
	// ManufacturerID tags the manufacturer-specific data section that carries the payload.
	ManufacturerID uint16 = 0xFFFF

	identifierOffset = 2
	identifierEnd    = identifierOffset + IdentifierLength
)

// ErrMalformedPayload is returned when advertisement bytes do not follow the payload layout.
var ErrMalformedPayload = errors.New("beacon: malformed payload")

// payloadTemplate holds the constant header and footer bytes. Offsets 2-17 are
// overwritten with the node identifier.
var payloadTemplate = [PayloadLength]byte{
	0:  0x02, // type
	1:  0x15, // length
	18: 0x00, // major high
	19: 0x09, // major low
	20: 0x00, // minor high
	21: 0x06, // minor low
	22: 0xB5, // calibrated tx power
}

// NodeIdentifier identifies an advertising session. A new one is generated
// every time advertising starts.
type NodeIdentifier [IdentifierLength]byte

// Payload is an encoded advertisement.
type Payload [PayloadLength]byte

// NewNodeIdentifier returns a random identifier.
func NewNodeIdentifier() NodeIdentifier {
	return NodeIdentifier(uuid.New())
}

// ParseNodeIdentifier decodes the hex form produced by String.
func ParseNodeIdentifier(s string) (NodeIdentifier, error) {
	var id NodeIdentifier
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse node identifier: %w", err)
	}
	if len(raw) != IdentifierLength {
		return id, fmt.Errorf("parse node identifier: want %d bytes, got %d", IdentifierLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex form.
func (id NodeIdentifier) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is unset.
func (id NodeIdentifier) IsZero() bool {
	return id == NodeIdentifier{}
}

// Bytes returns a copy of the payload bytes.
func (p Payload) Bytes() []byte {
	out := make([]byte, PayloadLength)
	copy(out, p[:])
	return out
}

// Encode places id at offsets 2-17 of the fixed payload layout.
func Encode(id NodeIdentifier) Payload {
	p := Payload(payloadTemplate)
	copy(p[identifierOffset:identifierEnd], id[:])
	return p
}

// Decode extracts the node identifier from raw payload bytes. Every byte
// outside the identifier range must match the fixed layout.
func Decode(raw []byte) (NodeIdentifier, error) {
	var id NodeIdentifier
	if len(raw) != PayloadLength {
		return id, fmt.Errorf("%w: length %d, want %d", ErrMalformedPayload, len(raw), PayloadLength)
	}
	for i, want := range payloadTemplate {
		if !isFixedOffset(i) {
			continue
		}
		if raw[i] != want {
			return id, fmt.Errorf("%w: byte %d is 0x%02x, want 0x%02x", ErrMalformedPayload, i, raw[i], want)
		}
	}
	copy(id[:], raw[identifierOffset:identifierEnd])
	return id, nil
}

func isFixedOffset(i int) bool {
	return i < identifierOffset || i >= identifierEnd
}

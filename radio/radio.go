package radio

import (
	"errors"
	"time"

	"nodetrace/beacon"
)

// ErrNotStarted is returned when an operation needs an active radio session.
var ErrNotStarted = errors.New("radio: not started")

// ScanResult is one received advertisement.
type ScanResult struct {
	ManufacturerID   uint16
	ManufacturerData []byte
	LocalName        string
	RSSI             int
	Timestamp        time.Time
}

// ScanHandler receives scan results. It may be called from any goroutine.
type ScanHandler func(ScanResult)

// Layer is the radio hardware abstraction. Implementations apply the filter
// before calling the handler.
type Layer interface {
	StartScan(filter beacon.Filter, handler ScanHandler) error
	StopScan()
	StartAdvertise(manufacturerID uint16, payload []byte) error
	StopAdvertise()
}

package radio

import (
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"nodetrace/beacon"
	"nodetrace/presence"
)

var log = logging.Logger("radio")

const (
	// ModeNone disables the radio.
	ModeNone Mode = "none"
	// ModeScan only listens for nearby advertisements.
	ModeScan Mode = "scan"
	// ModeAdvertise only broadcasts the local identifier.
	ModeAdvertise Mode = "advertise"
	// ModeScanAndAdvertise does both.
	ModeScanAndAdvertise Mode = "scan_and_advertise"
)

// Mode selects which radio activities are running.
type Mode string

// ParseMode validates a mode string. An empty string means ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeScan, ModeAdvertise, ModeScanAndAdvertise:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid radio mode %q", s)
	}
}

func (m Mode) scans() bool {
	return m == ModeScan || m == ModeScanAndAdvertise
}

func (m Mode) advertises() bool {
	return m == ModeAdvertise || m == ModeScanAndAdvertise
}

func modeFor(scanning, advertising bool) Mode {
	switch {
	case scanning && advertising:
		return ModeScanAndAdvertise
	case scanning:
		return ModeScan
	case advertising:
		return ModeAdvertise
	default:
		return ModeNone
	}
}

// Controller owns mode transitions. Scanning feeds decoded sightings into the
// presence monitor; advertising broadcasts a fresh identifier per session.
type Controller struct {
	layer   Layer
	monitor *presence.Monitor
	matcher *beacon.Matcher

	newID func() beacon.NodeIdentifier

	mu          sync.Mutex
	mode        Mode
	scanning    bool
	advertising bool
	localID     beacon.NodeIdentifier
}

// NewController creates a controller in ModeNone.
func NewController(layer Layer, monitor *presence.Monitor, matcher *beacon.Matcher) *Controller {
	if matcher == nil {
		matcher = beacon.NewMatcher()
	}
	return &Controller{
		layer:   layer,
		monitor: monitor,
		matcher: matcher,
		newID:   beacon.NewNodeIdentifier,
		mode:    ModeNone,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// LocalID returns the identifier being advertised, if any.
func (c *Controller) LocalID() (beacon.NodeIdentifier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID, c.advertising
}

// LocalPayload returns the advertised payload. It fails with ErrNotStarted
// when the controller is not advertising.
func (c *Controller) LocalPayload() (beacon.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.advertising {
		return beacon.Payload{}, ErrNotStarted
	}
	return beacon.Encode(c.localID), nil
}

// SetMode stops whatever is running and starts what mode needs. Setting the
// current mode again does nothing. On a start failure the controller reports
// the mode that is actually running, so a later SetMode can stop it.
func (c *Controller) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == c.mode {
		return nil
	}
	log.Infof("switching radio mode %s -> %s", c.mode, mode)
	defer func() {
		c.mode = modeFor(c.scanning, c.advertising)
	}()

	// The monitor stops first so a scan handler blocked on a full sightings
	// queue returns and the layer can join it.
	if c.scanning {
		c.monitor.Stop()
		c.layer.StopScan()
		c.scanning = false
	}
	if c.advertising {
		c.layer.StopAdvertise()
		c.matcher.ClearSelf()
		c.localID = beacon.NodeIdentifier{}
		c.advertising = false
	}

	if mode.advertises() {
		id := c.newID()
		payload := beacon.Encode(id)
		if err := c.layer.StartAdvertise(beacon.ManufacturerID, payload.Bytes()); err != nil {
			return fmt.Errorf("start advertising: %w", err)
		}
		c.matcher.SetSelf(id)
		c.localID = id
		c.advertising = true
		log.Infof("advertising node id=%s", id)
	}

	if mode.scans() {
		c.monitor.Start()
		if err := c.layer.StartScan(beacon.TransportFilter(), c.handleScanResult); err != nil {
			c.monitor.Stop()
			return fmt.Errorf("start scanning: %w", err)
		}
		c.scanning = true
	}
	return nil
}

// Close switches to ModeNone.
func (c *Controller) Close() error {
	return c.SetMode(ModeNone)
}

func (c *Controller) handleScanResult(result ScanResult) {
	id, ok := c.matcher.Identify(result.ManufacturerID, result.ManufacturerData)
	if !ok {
		return
	}
	c.monitor.Sighting(presence.Sighting{
		NodeID:      id,
		DisplayName: result.LocalName,
		RSSI:        result.RSSI,
		At:          result.Timestamp,
	})
}

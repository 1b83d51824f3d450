package radio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"nodetrace/beacon"
)

const (
	// DefaultService is the mDNS service carrying advertisements on a LAN.
	DefaultService = "_nodetrace._udp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultPort is the placeholder port registered with the service.
	DefaultPort = 48123
	// DefaultScanWindow bounds each browse; every window yields at most one
	// result per advertiser.
	DefaultScanWindow = 2 * time.Second
	// DefaultRSSI is reported for LAN results, which carry no signal strength.
	DefaultRSSI = -60

	manufacturerIDTXTKey   = "mid"
	manufacturerDataTXTKey = "mfg"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// LANConfig controls the mDNS radio emulation.
type LANConfig struct {
	Service    string
	Domain     string
	DeviceName string
	Port       int
	ScanWindow time.Duration
	RSSI       int

	registerFn registerFunc
	browseFn   browseFunc
	now        func() time.Time
}

func (c LANConfig) withDefaults() LANConfig {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if strings.TrimSpace(out.DeviceName) == "" {
		out.DeviceName = "nodetrace"
	}
	if out.Port <= 0 {
		out.Port = DefaultPort
	}
	if out.ScanWindow <= 0 {
		out.ScanWindow = DefaultScanWindow
	}
	if out.RSSI == 0 {
		out.RSSI = DefaultRSSI
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	if out.browseFn == nil {
		out.browseFn = browseOnce
	}
	if out.now == nil {
		out.now = time.Now
	}
	return out
}

// LANRadio emulates a short-range radio over mDNS. Advertising registers a
// service whose TXT record carries the manufacturer data; scanning browses
// the service in back-to-back windows.
type LANRadio struct {
	cfg LANConfig

	mu         sync.Mutex
	server     *zeroconf.Server
	scanCancel context.CancelFunc
	scanWG     sync.WaitGroup
}

// NewLANRadio creates an idle LAN radio.
func NewLANRadio(config LANConfig) *LANRadio {
	return &LANRadio{cfg: config.withDefaults()}
}

// StartAdvertise registers the payload. An existing registration is replaced.
func (r *LANRadio) StartAdvertise(manufacturerID uint16, payload []byte) error {
	if len(payload) == 0 {
		return errors.New("advertisement payload is required")
	}

	txt := []string{
		manufacturerIDTXTKey + "=" + strconv.FormatUint(uint64(manufacturerID), 16),
		manufacturerDataTXTKey + "=" + hex.EncodeToString(payload),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server != nil {
		r.server.Shutdown()
		r.server = nil
	}

	server, err := r.cfg.registerFn(r.cfg.DeviceName, r.cfg.Service, r.cfg.Domain, r.cfg.Port, txt, nil)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}
	r.server = server
	return nil
}

// StopAdvertise shuts the registration down.
func (r *LANRadio) StopAdvertise() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server == nil {
		return
	}
	r.server.Shutdown()
	r.server = nil
}

// StartScan begins browsing. Calling it while a scan runs is a no-op.
func (r *LANRadio) StartScan(filter beacon.Filter, handler ScanHandler) error {
	if handler == nil {
		return errors.New("scan handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.scanCancel = cancel
	r.scanWG.Add(1)
	go r.scanLoop(ctx, filter, handler)
	return nil
}

// StopScan stops browsing and waits for the scan loop to exit.
func (r *LANRadio) StopScan() {
	r.mu.Lock()
	cancel := r.scanCancel
	r.scanCancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.scanWG.Wait()
}

func (r *LANRadio) scanLoop(ctx context.Context, filter beacon.Filter, handler ScanHandler) {
	defer r.scanWG.Done()

	for ctx.Err() == nil {
		if err := r.runWindow(ctx, filter, handler); err != nil {
			log.Warnf("mDNS browse failed: %v", err)
			select {
			case <-time.After(r.cfg.ScanWindow):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *LANRadio) runWindow(ctx context.Context, filter beacon.Filter, handler ScanHandler) error {
	windowCtx, cancel := context.WithTimeout(ctx, r.cfg.ScanWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collectorDone := make(chan struct{})

	go func(in <-chan *zeroconf.ServiceEntry) {
		defer close(collectorDone)
		for {
			select {
			case <-windowCtx.Done():
				return
			case entry, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				if entry == nil {
					continue
				}
				result, ok := parseEntry(entry)
				if !ok {
					continue
				}
				if !filter.Matches(result.ManufacturerID, result.ManufacturerData) {
					continue
				}
				result.RSSI = r.cfg.RSSI
				result.Timestamp = r.cfg.now()
				handler(result)
			}
		}
	}(entries)

	if err := r.cfg.browseFn(windowCtx, r.cfg.Service, r.cfg.Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return err
	}

	<-windowCtx.Done()
	<-collectorDone
	return nil
}

// browseOnce uses a fresh resolver per window; a resolver is shut down when
// its browse context ends.
func browseOnce(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("create mDNS resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

func parseEntry(entry *zeroconf.ServiceEntry) (ScanResult, bool) {
	txt := txtToMap(entry.Text)

	rawID, rawData := txt[manufacturerIDTXTKey], txt[manufacturerDataTXTKey]
	if rawID == "" || rawData == "" {
		return ScanResult{}, false
	}
	manufacturerID, err := strconv.ParseUint(rawID, 16, 16)
	if err != nil {
		return ScanResult{}, false
	}
	data, err := hex.DecodeString(rawData)
	if err != nil {
		return ScanResult{}, false
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}

	return ScanResult{
		ManufacturerID:   uint16(manufacturerID),
		ManufacturerData: data,
		LocalName:        name,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}

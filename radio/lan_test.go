package radio

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"nodetrace/beacon"
)

func TestLANRadioAdvertiseBuildsTXTRecords(t *testing.T) {
	var (
		gotInstance string
		gotService  string
		gotPort     int
		gotTXT      []string
	)
	radio := NewLANRadio(LANConfig{
		DeviceName: "Alice Phone",
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			gotInstance = instance
			gotService = service
			gotPort = port
			gotTXT = append([]string(nil), text...)
			return nil, nil
		},
	})

	payload := beacon.Encode(beacon.NewNodeIdentifier()).Bytes()
	if err := radio.StartAdvertise(beacon.ManufacturerID, payload); err != nil {
		t.Fatalf("StartAdvertise failed: %v", err)
	}
	defer radio.StopAdvertise()

	if gotInstance != "Alice Phone" || gotService != DefaultService || gotPort != DefaultPort {
		t.Fatalf("unexpected registration %q %q %d", gotInstance, gotService, gotPort)
	}
	assertContainsTXT(t, gotTXT, "mid=ffff")
	assertContainsTXT(t, gotTXT, "mfg="+hex.EncodeToString(payload))

	if err := radio.StartAdvertise(beacon.ManufacturerID, nil); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}

func TestLANRadioAdvertiseRegisterError(t *testing.T) {
	radio := NewLANRadio(LANConfig{
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			return nil, errors.New("no multicast")
		},
	})
	if err := radio.StartAdvertise(beacon.ManufacturerID, []byte{1}); err == nil {
		t.Fatalf("expected register failure")
	}
}

func TestLANRadioScanFiltersEntries(t *testing.T) {
	peer := beacon.NewNodeIdentifier()
	valid := beacon.Encode(peer).Bytes()
	foreign := append([]byte(nil), valid...)
	foreign[0] = 0x07

	radio := NewLANRadio(LANConfig{
		ScanWindow: 30 * time.Millisecond,
		RSSI:       -48,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- testServiceEntry("Bob", "ffff", hex.EncodeToString(valid))
			entries <- testServiceEntry("Foreign", "ffff", hex.EncodeToString(foreign))
			entries <- testServiceEntry("OtherVendor", "004c", hex.EncodeToString(valid))
			entries <- testServiceEntry("Garbage", "ffff", "not-hex")
			entries <- &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{Instance: "NoTXT"}}
			<-ctx.Done()
			return nil
		},
	})

	var (
		mu      sync.Mutex
		results []ScanResult
	)
	err := radio.StartScan(beacon.TransportFilter(), func(r ScanResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 2
	})
	radio.StopScan()

	mu.Lock()
	defer mu.Unlock()
	for _, r := range results {
		if r.LocalName != "Bob" {
			t.Fatalf("unexpected result from %q", r.LocalName)
		}
		if r.RSSI != -48 || r.Timestamp.IsZero() {
			t.Fatalf("unexpected RSSI/timestamp %+v", r)
		}
		id, err := beacon.Decode(r.ManufacturerData)
		if err != nil || id != peer {
			t.Fatalf("unexpected payload: %v", err)
		}
	}
}

func TestLANRadioStopScanIsIdempotent(t *testing.T) {
	radio := NewLANRadio(LANConfig{
		ScanWindow: 20 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			<-ctx.Done()
			return nil
		},
	})
	if err := radio.StartScan(beacon.TransportFilter(), func(ScanResult) {}); err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	if err := radio.StartScan(beacon.TransportFilter(), func(ScanResult) {}); err != nil {
		t.Fatalf("second StartScan failed: %v", err)
	}
	radio.StopScan()
	radio.StopScan()
	if err := radio.StartScan(beacon.TransportFilter(), nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
}

func testServiceEntry(instance, manufacturerID, data string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  DefaultService,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local",
		Port:     DefaultPort,
		Text: []string{
			"mid=" + manufacturerID,
			"mfg=" + data,
		},
		AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")},
	}
}

func assertContainsTXT(t *testing.T, txt []string, expected string) {
	t.Helper()
	for _, v := range txt {
		if v == expected {
			return
		}
	}
	t.Fatalf("missing TXT record %q in %v", expected, txt)
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

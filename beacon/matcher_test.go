package beacon

import "testing"

func TestTransportFilterMask(t *testing.T) {
	filter := TransportFilter()
	if filter.ManufacturerID != 0xFFFF {
		t.Fatalf("unexpected manufacturer id 0x%04x", filter.ManufacturerID)
	}
	if len(filter.Data) != PayloadLength || len(filter.Mask) != PayloadLength {
		t.Fatalf("expected %d byte data and mask", PayloadLength)
	}
	for i, m := range filter.Mask {
		wantCare := i < 2 || i > 17
		if (m != 0) != wantCare {
			t.Fatalf("offset %d: mask 0x%02x, want care=%v", i, m, wantCare)
		}
	}
}

func TestTransportFilterMatches(t *testing.T) {
	filter := TransportFilter()
	payload := Encode(NewNodeIdentifier()).Bytes()

	if !filter.Matches(ManufacturerID, payload) {
		t.Fatalf("expected encoded payload to pass transport filter")
	}
	if filter.Matches(0x004C, payload) {
		t.Fatalf("expected foreign manufacturer to be rejected")
	}
	payload[22] = 0xC5
	if filter.Matches(ManufacturerID, payload) {
		t.Fatalf("expected wrong tx power byte to be rejected")
	}
	if filter.Matches(ManufacturerID, payload[:10]) {
		t.Fatalf("expected short data to be rejected")
	}
}

func TestMatcherIdentify(t *testing.T) {
	matcher := NewMatcher()
	id := testIdentifier(9)

	got, ok := matcher.Identify(ManufacturerID, Encode(id).Bytes())
	if !ok || got != id {
		t.Fatalf("expected %s, got %s ok=%v", id, got, ok)
	}

	corrupt := Encode(id).Bytes()
	corrupt[1] = 0x16
	if _, ok := matcher.Identify(ManufacturerID, corrupt); ok {
		t.Fatalf("expected corrupted payload to be ignored")
	}
	if _, ok := matcher.Identify(0x0001, Encode(id).Bytes()); ok {
		t.Fatalf("expected foreign manufacturer data to be ignored")
	}
}

func TestMatcherIgnoresSelf(t *testing.T) {
	matcher := NewMatcher()
	self := testIdentifier(3)
	matcher.SetSelf(self)

	if _, ok := matcher.Identify(ManufacturerID, Encode(self).Bytes()); ok {
		t.Fatalf("expected own advertisement to be ignored")
	}
	other := testIdentifier(4)
	if _, ok := matcher.Identify(ManufacturerID, Encode(other).Bytes()); !ok {
		t.Fatalf("expected other advertisement to be identified")
	}

	matcher.ClearSelf()
	if _, ok := matcher.Identify(ManufacturerID, Encode(self).Bytes()); !ok {
		t.Fatalf("expected identifier to be accepted after ClearSelf")
	}
}

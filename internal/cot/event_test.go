package cot

import (
	"strings"
	"testing"
	"time"
)

func sampleEvent() Event {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	return Event{
		Version: "2.0",
		Type:    "a-f-G-U-C",
		UID:     "ANDROID-1234",
		Time:    now,
		Start:   now,
		Stale:   now.Add(2 * time.Minute),
		How:     "m-g",
		Point:   Point{Lat: 1.5, Lon: -2.25, Hae: 10, CE: 5, LE: 5},
		Detail: Detail{
			Contact: &Contact{Callsign: "RAVEN-1"},
			Group:   &Group{Name: "Cyan", Role: "Team Member"},
		},
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	ev := sampleEvent()
	wire, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.UID != ev.UID || got.Type != ev.Type || got.How != ev.How {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, ev)
	}
	if got.Point != ev.Point {
		t.Fatalf("point mismatch: got %+v want %+v", got.Point, ev.Point)
	}
	if got.Detail.Contact == nil || got.Detail.Contact.Callsign != "RAVEN-1" {
		t.Fatalf("contact not preserved: %+v", got.Detail.Contact)
	}
	if got.Detail.Group == nil || got.Detail.Group.Name != "Cyan" {
		t.Fatalf("group not preserved: %+v", got.Detail.Group)
	}
	if !got.Time.Equal(ev.Time) {
		t.Fatalf("time mismatch: got %v want %v", got.Time, ev.Time)
	}
}

func TestUnmarshalPreservesUnknownDetailChildrenVerbatim(t *testing.T) {
	raw := `<event version="2.0" uid="x" type="a-f-G" time="2026-07-31T12:00:00Z" start="2026-07-31T12:00:00Z" stale="2026-07-31T12:02:00Z" how="m-g"><point lat="1" lon="2" hae="3" ce="4" le="5"/><detail><contact callsign="c1"/><uid Droid="c1"/><precisionlocation geopointsrc="GPS" altsrc="GPS"/></detail></event>`
	ev, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(ev.Detail.Raw) != 2 {
		t.Fatalf("expected 2 raw children preserved, got %d: %+v", len(ev.Detail.Raw), ev.Detail.Raw)
	}
	if ev.Detail.Raw[0].Name != "uid" || ev.Detail.Raw[1].Name != "precisionlocation" {
		t.Fatalf("unexpected raw element names: %+v", ev.Detail.Raw)
	}
	if !strings.Contains(string(ev.Detail.Raw[0].Raw), `Droid="c1"`) {
		t.Fatalf("raw element content lost: %s", ev.Detail.Raw[0].Raw)
	}

	remarshaled, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(remarshaled), `Droid="c1"`) {
		t.Fatalf("remarshaled event dropped unknown detail content: %s", remarshaled)
	}
}

func TestParseTimeFallback(t *testing.T) {
	if got := parseTime("garbage"); !got.IsZero() {
		t.Fatalf("parseTime on garbage = %v, want zero time", got)
	}
	if got := parseTime("2026-07-31T12:00:00.500Z"); got.IsZero() {
		t.Fatal("parseTime failed to parse sub-second RFC3339 variant")
	}
	if got := parseTime("2026-07-31 12:00:00"); got.IsZero() {
		t.Fatal("parseTime failed to parse space-separated variant")
	}
}

func TestGeoChatUIDRoundTrip(t *testing.T) {
	uid := GeoChatUID("ANDROID-1", "ANDROID-2", "msg-99")
	sender, recipient, msgID, ok := ParseGeoChatUID(uid)
	if !ok {
		t.Fatal("ParseGeoChatUID returned ok=false for a valid uid")
	}
	if sender != "ANDROID-1" || recipient != "ANDROID-2" || msgID != "msg-99" {
		t.Fatalf("parsed fields mismatch: %s %s %s", sender, recipient, msgID)
	}
}

func TestParseGeoChatUIDRejectsNonChatUID(t *testing.T) {
	if _, _, _, ok := ParseGeoChatUID("ANDROID-1234"); ok {
		t.Fatal("expected ok=false for a non-GeoChat uid")
	}
}

package bridge

import (
	"math"
	"testing"

	"github.com/johntiver92-beep/meshtastic-apple/internal/compact"
	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
	"github.com/johntiver92-beep/meshtastic-apple/internal/fountain"
	"github.com/johntiver92-beep/meshtastic-apple/internal/radio"
)

func TestDirectoryLearnAndResolve(t *testing.T) {
	d := NewDirectory()
	d.Learn("RAVEN-1", "!aabbccdd")

	if uid, ok := d.DeviceUID("RAVEN-1"); !ok || uid != "!aabbccdd" {
		t.Fatalf("DeviceUID = %q %v, want !aabbccdd true", uid, ok)
	}
	if cs, ok := d.Callsign("!aabbccdd"); !ok || cs != "RAVEN-1" {
		t.Fatalf("Callsign = %q %v, want RAVEN-1 true", cs, ok)
	}
}

func TestDirectoryLearnOverwritesStaleAssociation(t *testing.T) {
	d := NewDirectory()
	d.Learn("RAVEN-1", "!aaaa")
	d.Learn("RAVEN-1", "!bbbb") // device re-paired under the same callsign

	if _, ok := d.Callsign("!aaaa"); ok {
		t.Fatal("stale uid->callsign association should have been dropped")
	}
	if uid, ok := d.DeviceUID("RAVEN-1"); !ok || uid != "!bbbb" {
		t.Fatalf("DeviceUID = %q %v, want !bbbb true", uid, ok)
	}
}

func TestClassifyRoutesByPortAndFrame(t *testing.T) {
	cases := []struct {
		name string
		pkt  radio.Packet
		want TransportKind
	}{
		{"plugin", radio.Packet{Port: radio.PortPlugin}, KindPluginRecord},
		{"forwarder-ack", radio.Packet{Port: radio.PortForwarder, Payload: fountain.EncodeACK(fountain.ACK{})}, KindForwarderACK},
		{"forwarder-block", radio.Packet{Port: radio.PortForwarder, Payload: fountain.EncodeDataBlock(fountain.DataBlock{Payload: make([]byte, fountain.BlockPayloadSize)})}, KindForwarderDataBlock},
		{"forwarder-direct", radio.Packet{Port: radio.PortForwarder, Payload: []byte("<event/>")}, KindForwarderDirect},
		{"unknown", radio.Packet{Port: 999}, KindUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.pkt); got != c.want {
			t.Errorf("%s: Classify = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCoTToPLIAndBackRoundTrip(t *testing.T) {
	ev := cot.Event{
		Point: cot.Point{Lat: 38.712, Lon: -122.41, Hae: 15},
		Detail: cot.Detail{
			Contact: &cot.Contact{Callsign: "RAVEN-1"},
			Group:   &cot.Group{Name: "Cyan", Role: "Team Lead"},
			Status:  &cot.Status{Battery: 72},
			Track:   &cot.Track{Course: 90, Speed: 5},
		},
	}
	pli, ok := CoTToPLI(ev, "!deadbeef")
	if !ok {
		t.Fatal("CoTToPLI returned ok=false for a valid event")
	}
	if pli.DeviceUID != "!deadbeef" {
		t.Fatalf("DeviceUID = %q", pli.DeviceUID)
	}

	dir := NewDirectory()
	dir.Learn("RAVEN-1", "!deadbeef")
	back := PLIToCoT(pli, dir)

	if back.Detail.Contact.Callsign != "RAVEN-1" {
		t.Fatalf("callsign not resolved: %+v", back.Detail.Contact)
	}
	if back.Detail.Group.Name != "Cyan" || back.Detail.Group.Role != "Team Lead" {
		t.Fatalf("team/role mismatch: %+v", back.Detail.Group)
	}
	if diff := back.Point.Lat - ev.Point.Lat; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("lat mismatch: got %v want %v", back.Point.Lat, ev.Point.Lat)
	}
}

func TestCoTToPLIRejectsEventWithoutContact(t *testing.T) {
	if _, ok := CoTToPLI(cot.Event{}, "!x"); ok {
		t.Fatal("expected ok=false for an event with no contact")
	}
}

func TestCoTToPLIMapsAltitudeSentinelToZero(t *testing.T) {
	cases := []struct {
		name string
		hae  float64
	}{
		{"sentinel", 9999999},
		{"nan", math.NaN()},
		{"+inf", math.Inf(1)},
		{"-inf", math.Inf(-1)},
	}
	for _, c := range cases {
		ev := cot.Event{
			Point:  cot.Point{Hae: c.hae},
			Detail: cot.Detail{Contact: &cot.Contact{Callsign: "RAVEN-1"}},
		}
		pli, ok := CoTToPLI(ev, "!x")
		if !ok {
			t.Fatalf("%s: CoTToPLI returned ok=false", c.name)
		}
		if pli.AltitudeM != 0 {
			t.Fatalf("%s: AltitudeM = %d, want 0", c.name, pli.AltitudeM)
		}
	}
}

func TestPLIZeroAltitudeRoundTripsToZeroNotSentinel(t *testing.T) {
	pli := compact.PLI{DeviceUID: "!x", AltitudeM: 0}
	ev := PLIToCoT(pli, NewDirectory())
	if ev.Point.Hae != 0 {
		t.Fatalf("expected zero HAE, got %v", ev.Point.Hae)
	}
}

func TestParseReadReceipt(t *testing.T) {
	rr, ok := ParseReadReceipt("ACK:D:msg-1")
	if !ok || !rr.Delivered || rr.MessageID != "msg-1" {
		t.Fatalf("ParseReadReceipt(ACK:D:) = %+v %v", rr, ok)
	}
	rr, ok = ParseReadReceipt("ACK:R:msg-2")
	if !ok || rr.Delivered || rr.MessageID != "msg-2" {
		t.Fatalf("ParseReadReceipt(ACK:R:) = %+v %v", rr, ok)
	}
	if _, ok := ParseReadReceipt("hello there"); ok {
		t.Fatal("ordinary chat text should not be treated as a read receipt")
	}
}

func TestChatRoundTripThroughDirectory(t *testing.T) {
	dir := NewDirectory()
	ev := cot.Event{
		UID: "GeoChat.ANDROID-1.All Chat Rooms.msg-1",
		Detail: cot.Detail{
			Chat:    &cot.Chat{SenderCallsign: "RAVEN-1"},
			Remarks: &cot.Remarks{Source: "RAVEN-1", Text: "moving to checkpoint"},
		},
	}
	chat, ok := CoTToChat(ev, dir)
	if !ok {
		t.Fatal("CoTToChat returned ok=false for a valid chat event")
	}

	dir.Learn("RAVEN-1", "ANDROID-1")
	back := ChatToCoT(chat, dir)

	if back.Detail.Contact.Callsign != "RAVEN-1" {
		t.Fatalf("callsign mismatch: %+v", back.Detail.Contact)
	}
	if back.Detail.Remarks.Text != "moving to checkpoint" {
		t.Fatalf("message text mismatch: %+v", back.Detail.Remarks)
	}
}

func TestCoTToChatSmugglesMessageIDFromGeoChatUID(t *testing.T) {
	ev := cot.Event{
		UID: "GeoChat.ANDROID-abc.All Chat Rooms.MID42",
		Detail: cot.Detail{
			Chat:    &cot.Chat{SenderCallsign: "RAVEN-1"},
			Remarks: &cot.Remarks{Source: "RAVEN-1", Text: "hi"},
		},
	}
	chat, ok := CoTToChat(ev, NewDirectory())
	if !ok {
		t.Fatal("CoTToChat returned ok=false for a valid chat event")
	}
	const want = "ANDROID-abc|MID42"
	if chat.SenderField != want {
		t.Fatalf("SenderField = %q, want %q", chat.SenderField, want)
	}
	if chat.To != allChatRooms {
		t.Fatalf("To = %q, want %q", chat.To, allChatRooms)
	}
}

func TestCoTToChatResolvesDirectMessageRecipient(t *testing.T) {
	dir := NewDirectory()
	dir.Learn("BRAVO", "ANDROID-xyz")
	ev := cot.Event{
		UID: "GeoChat.ANDROID-abc.BRAVO.MID42",
		Detail: cot.Detail{
			Chat:    &cot.Chat{SenderCallsign: "ANDROID-abc"},
			Remarks: &cot.Remarks{Source: "ANDROID-abc", Text: "hi"},
		},
	}
	chat, ok := CoTToChat(ev, dir)
	if !ok {
		t.Fatal("CoTToChat returned ok=false for a valid chat event")
	}
	if chat.To != "ANDROID-xyz" {
		t.Fatalf("To = %q, want ANDROID-xyz", chat.To)
	}
	if chat.ToCallsign != "BRAVO" {
		t.Fatalf("ToCallsign = %q, want BRAVO", chat.ToCallsign)
	}
}

func TestStatusToCoTUsesCallsignFromRecord(t *testing.T) {
	ev := StatusToCoT(compact.Status{DeviceUID: "!deadbeef", Callsign: "RAVEN-1", Battery: 55}, NewDirectory())
	if ev.Detail.Contact.Callsign != "RAVEN-1" {
		t.Fatalf("callsign = %q, want RAVEN-1", ev.Detail.Contact.Callsign)
	}
	if ev.Detail.Status.Battery != 55 {
		t.Fatalf("battery = %d, want 55", ev.Detail.Status.Battery)
	}
	if ev.Detail.Status == nil || ev.Point.Lat != 0 {
		t.Fatal("status ping should carry no position")
	}
}

func TestStatusToCoTFallsBackToDirectory(t *testing.T) {
	dir := NewDirectory()
	dir.Learn("RAVEN-1", "!deadbeef")
	ev := StatusToCoT(compact.Status{DeviceUID: "!deadbeef", Battery: 10}, dir)
	if ev.Detail.Contact.Callsign != "RAVEN-1" {
		t.Fatalf("callsign = %q, want RAVEN-1 from directory", ev.Detail.Contact.Callsign)
	}
}

package compact

import "testing"

func TestPLIRoundTrip(t *testing.T) {
	p := PLI{
		DeviceUID: "ANDROID-DEADBEEF",
		Callsign:  "RAVEN-1",
		LatE7:     387123456,
		LonE7:     -1224123456,
		AltitudeM: 152,
		CourseCD:  9000,
		SpeedCMS:  350,
		Battery:   87,
		Team:      TeamCyan,
		Role:      RoleTeamLead,
	}
	wire, err := EncodePLI(p)
	if err != nil {
		t.Fatalf("EncodePLI: %v", err)
	}
	got, err := DecodePLI(wire)
	if err != nil {
		t.Fatalf("DecodePLI: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestPLIZeroAltitudeRoundTrip(t *testing.T) {
	p := PLI{DeviceUID: "x", AltitudeM: 0}
	wire, err := EncodePLI(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePLI(wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.AltitudeM != 0 {
		t.Fatalf("altitude mismatch: got %d want 0", got.AltitudeM)
	}
}

func TestDecodePLIRejectsWrongType(t *testing.T) {
	wire, _ := EncodeChat(Chat{SenderField: "a|b", Message: "hi"})
	if _, err := DecodePLI(wire); err == nil {
		t.Fatal("expected error decoding a chat record as PLI")
	}
}

func TestDecodePLITruncated(t *testing.T) {
	wire, _ := EncodePLI(PLI{DeviceUID: "uid"})
	if _, err := DecodePLI(wire[:len(wire)-3]); err == nil {
		t.Fatal("expected error on truncated PLI record")
	}
}

func TestChatRoundTrip(t *testing.T) {
	c := Chat{
		SenderField: EncodeSenderField("RAVEN-1", "msg-42"),
		Message:     "moving to checkpoint",
		To:          "ANDROID-xyz",
		ToCallsign:  "BRAVO",
	}
	wire, err := EncodeChat(c)
	if err != nil {
		t.Fatalf("EncodeChat: %v", err)
	}
	got, err := DecodeChat(wire)
	if err != nil {
		t.Fatalf("DecodeChat: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
	}
}

func TestSenderFieldRoundTrip(t *testing.T) {
	field := EncodeSenderField("RAVEN-1", "msg-42")
	callsign, msgID, ok := DecodeSenderField(field)
	if !ok || callsign != "RAVEN-1" || msgID != "msg-42" {
		t.Fatalf("DecodeSenderField = %q %q %v, want RAVEN-1 msg-42 true", callsign, msgID, ok)
	}
}

func TestSenderFieldWithoutSeparator(t *testing.T) {
	callsign, msgID, ok := DecodeSenderField("RAVEN-1")
	if ok || callsign != "RAVEN-1" || msgID != "" {
		t.Fatalf("DecodeSenderField = %q %q %v, want RAVEN-1 \"\" false", callsign, msgID, ok)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	s := Status{DeviceUID: "!deadbeef", Callsign: "RAVEN-1", Battery: 42, VoltageMV: 3700}
	wire, err := EncodeStatus(s)
	if err != nil {
		t.Fatalf("EncodeStatus: %v", err)
	}
	got, err := DecodeStatus(wire)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, s)
	}
}

func TestRecordTypeOf(t *testing.T) {
	wire, _ := EncodePLI(PLI{DeviceUID: "x"})
	rt, err := RecordTypeOf(wire)
	if err != nil || rt != TypePLI {
		t.Fatalf("RecordTypeOf = %v %v, want TypePLI", rt, err)
	}
}

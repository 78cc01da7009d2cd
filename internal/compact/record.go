// Package compact implements the fixed-layout binary record carried on
// the Meshtastic "plugin port" (72): position reports and chat messages
// encoded as compact as possible for airtime-constrained LoRa links,
// instead of the verbose CoT XML carried on the forwarder port.
//
// There is no original_source/ reference for this wire format (the
// retrieval pack's original-language sources were all filtered out by
// size), so the exact byte layout here is this package's own design,
// built from spec.md's field list in the teacher's binary-framing idiom
// (fixed-width integer fields, explicit byte order, length-prefixed
// strings) — see DESIGN.md's compact-binary open question entry.
package compact

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RecordType distinguishes a PLI position report from a chat message.
type RecordType byte

const (
	TypePLI    RecordType = 0x01
	TypeChat   RecordType = 0x02
	TypeStatus RecordType = 0x03
)

// Team is the ATAK team-color enumeration, encoded as a single byte.
type Team uint8

const (
	TeamWhite Team = iota
	TeamYellow
	TeamOrange
	TeamMagenta
	TeamRed
	TeamMaroon
	TeamPurple
	TeamDarkBlue
	TeamBlue
	TeamCyan
	TeamTeal
	TeamGreen
	TeamDarkGreen
	TeamBrown
)

// Role is the ATAK team-role enumeration, encoded as a single byte.
type Role uint8

const (
	RoleTeamMember Role = iota
	RoleTeamLead
	RoleHQ
	RoleSniper
	RoleMedic
	RoleForwardObserver
	RoleRTO
	RoleK9
)

// PLI is a position-location-information report. Callsign is carried on
// the wire (not just DeviceUID) so a receiving gateway can populate its
// callsign<->uid directory from PLI traffic alone, without first seeing
// a chat message from that device.
type PLI struct {
	DeviceUID string
	Callsign  string
	LatE7     int32 // latitude * 1e7
	LonE7     int32 // longitude * 1e7
	// AltitudeM is meters; 0 means unknown (the CoT sentinel 9999999,
	// NaN and +/-Inf all map to this on the way in, and 0 maps back to
	// 0 on the way out, not the CoT sentinel — lossy but peer-compatible).
	AltitudeM int32
	CourseCD  uint16
	SpeedCMS  uint16
	Battery   uint8
	Team      Team
	Role      Role
}

// Chat is a GeoChat message. SenderField smuggles the originating
// message id alongside the sender's callsign as "<callsign>|<msgID>" so
// the TAK side can thread read receipts back to the originating CoT
// chat event without a dedicated wire field. To/ToCallsign route a
// direct message: when the target chatroom isn't the broadcast room,
// To carries the recipient's resolved device uid (or its callsign if
// the directory has no mapping yet) and ToCallsign carries the
// recipient callsign as sent by the originating client.
type Chat struct {
	SenderField string
	Message     string
	To          string
	ToCallsign  string
}

// Status is a standalone device-health ping, carrying no position, sent
// by a node reporting battery/voltage without a PLI fix.
type Status struct {
	DeviceUID string
	Callsign  string
	Battery   uint8
	VoltageMV uint16
}

// EncodeStatus serializes a Status record: type(1) uidLen(1) uid(n)
// callsignLen(1) callsign(m) battery(1) voltageMV(2).
func EncodeStatus(s Status) ([]byte, error) {
	if len(s.DeviceUID) > 255 {
		return nil, fmt.Errorf("compact: device uid too long: %d bytes", len(s.DeviceUID))
	}
	if len(s.Callsign) > 255 {
		return nil, fmt.Errorf("compact: callsign too long: %d bytes", len(s.Callsign))
	}
	buf := make([]byte, 0, 3+len(s.DeviceUID)+len(s.Callsign)+1+2)
	buf = append(buf, byte(TypeStatus), byte(len(s.DeviceUID)))
	buf = append(buf, s.DeviceUID...)
	buf = append(buf, byte(len(s.Callsign)))
	buf = append(buf, s.Callsign...)
	buf = append(buf, s.Battery)
	buf = appendUint16(buf, s.VoltageMV)
	return buf, nil
}

// DecodeStatus parses a Status record produced by EncodeStatus.
func DecodeStatus(data []byte) (Status, error) {
	if len(data) < 2 {
		return Status{}, fmt.Errorf("compact: record too short")
	}
	if RecordType(data[0]) != TypeStatus {
		return Status{}, fmt.Errorf("compact: not a status record (type %#x)", data[0])
	}
	uidLen := int(data[1])
	if len(data) < 2+uidLen+1 {
		return Status{}, fmt.Errorf("compact: status record truncated")
	}
	off := 2
	uid := string(data[off : off+uidLen])
	off += uidLen

	csLen := int(data[off])
	off++

	want := off + csLen + 1 + 2
	if len(data) < want {
		return Status{}, fmt.Errorf("compact: status record truncated: have %d want %d", len(data), want)
	}
	callsign := string(data[off : off+csLen])
	off += csLen
	battery := data[off]
	off++
	voltage := binary.BigEndian.Uint16(data[off : off+2])

	return Status{DeviceUID: uid, Callsign: callsign, Battery: battery, VoltageMV: voltage}, nil
}

// EncodePLI serializes a PLI record: type(1) uidLen(1) uid(n)
// callsignLen(1) callsign(m) lat(4) lon(4) alt(4) course(2) speed(2)
// battery(1) team(1) role(1).
func EncodePLI(p PLI) ([]byte, error) {
	if len(p.DeviceUID) > 255 {
		return nil, fmt.Errorf("compact: device uid too long: %d bytes", len(p.DeviceUID))
	}
	if len(p.Callsign) > 255 {
		return nil, fmt.Errorf("compact: callsign too long: %d bytes", len(p.Callsign))
	}
	buf := make([]byte, 0, 3+len(p.DeviceUID)+len(p.Callsign)+4+4+4+2+2+1+1+1)
	buf = append(buf, byte(TypePLI), byte(len(p.DeviceUID)))
	buf = append(buf, p.DeviceUID...)
	buf = append(buf, byte(len(p.Callsign)))
	buf = append(buf, p.Callsign...)
	buf = appendUint32(buf, uint32(p.LatE7))
	buf = appendUint32(buf, uint32(p.LonE7))
	buf = appendUint32(buf, uint32(p.AltitudeM))
	buf = appendUint16(buf, p.CourseCD)
	buf = appendUint16(buf, p.SpeedCMS)
	buf = append(buf, p.Battery, byte(p.Team), byte(p.Role))
	return buf, nil
}

// DecodePLI parses a PLI record produced by EncodePLI.
func DecodePLI(data []byte) (PLI, error) {
	if len(data) < 2 {
		return PLI{}, fmt.Errorf("compact: record too short")
	}
	if RecordType(data[0]) != TypePLI {
		return PLI{}, fmt.Errorf("compact: not a PLI record (type %#x)", data[0])
	}
	uidLen := int(data[1])
	if len(data) < 2+uidLen+1 {
		return PLI{}, fmt.Errorf("compact: PLI record truncated")
	}
	off := 2
	uid := string(data[off : off+uidLen])
	off += uidLen

	csLen := int(data[off])
	off++

	want := off + csLen + 4 + 4 + 4 + 2 + 2 + 1 + 1 + 1
	if len(data) < want {
		return PLI{}, fmt.Errorf("compact: PLI record truncated: have %d want %d", len(data), want)
	}
	callsign := string(data[off : off+csLen])
	off += csLen

	lat := int32(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	lon := int32(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	alt := int32(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	course := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	speed := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	battery := data[off]
	off++
	team := Team(data[off])
	off++
	role := Role(data[off])

	return PLI{
		DeviceUID: uid,
		Callsign:  callsign,
		LatE7:     lat,
		LonE7:     lon,
		AltitudeM: alt,
		CourseCD:  course,
		SpeedCMS:  speed,
		Battery:   battery,
		Team:      team,
		Role:      role,
	}, nil
}

// EncodeChat serializes a Chat record: type(1) senderLen(2) sender(n)
// msgLen(2) message(m) toLen(2) to(x) toCallsignLen(2) toCallsign(y).
func EncodeChat(c Chat) ([]byte, error) {
	fields := []string{c.SenderField, c.Message, c.To, c.ToCallsign}
	for _, f := range fields {
		if len(f) > math.MaxUint16 {
			return nil, fmt.Errorf("compact: chat field exceeds 65535 bytes")
		}
	}
	size := 1
	for _, f := range fields {
		size += 2 + len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, byte(TypeChat))
	for _, f := range fields {
		buf = appendUint16(buf, uint16(len(f)))
		buf = append(buf, f...)
	}
	return buf, nil
}

// DecodeChat parses a Chat record produced by EncodeChat.
func DecodeChat(data []byte) (Chat, error) {
	if len(data) < 3 {
		return Chat{}, fmt.Errorf("compact: record too short")
	}
	if RecordType(data[0]) != TypeChat {
		return Chat{}, fmt.Errorf("compact: not a chat record (type %#x)", data[0])
	}
	off := 1
	var fields [4]string
	for i := range fields {
		if len(data) < off+2 {
			return Chat{}, fmt.Errorf("compact: chat record truncated")
		}
		n := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if len(data) < off+n {
			return Chat{}, fmt.Errorf("compact: chat record truncated")
		}
		fields[i] = string(data[off : off+n])
		off += n
	}
	return Chat{SenderField: fields[0], Message: fields[1], To: fields[2], ToCallsign: fields[3]}, nil
}

// RecordTypeOf peeks at the leading type byte without fully decoding.
func RecordTypeOf(data []byte) (RecordType, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("compact: empty record")
	}
	return RecordType(data[0]), nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

package bridge

import (
	"math"
	"time"

	"github.com/johntiver92-beep/meshtastic-apple/internal/compact"
	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
)

const (
	latLonScale = 1e7
	courseScale = 100.0
	speedScale  = 100.0 // m/s -> cm/s
	pliStaleFor = 2 * time.Minute
)

// CoTToPLI converts an outbound (TAK -> mesh) position-report CoT event
// into its compact binary form. ok is false if ev doesn't carry the
// fields a PLI record needs (no contact callsign).
func CoTToPLI(ev cot.Event, deviceUID string) (compact.PLI, bool) {
	if ev.Detail.Contact == nil {
		return compact.PLI{}, false
	}

	alt := int32(0)
	if ev.Point.Hae != 9999999 && !math.IsNaN(ev.Point.Hae) && !math.IsInf(ev.Point.Hae, 0) {
		alt = clampInt32(ev.Point.Hae)
	}

	var course, speed uint16
	if ev.Detail.Track != nil {
		course = clampUint16(ev.Detail.Track.Course * courseScale)
		speed = clampUint16(ev.Detail.Track.Speed * speedScale)
	}

	var battery uint8
	if ev.Detail.Status != nil {
		battery = uint8(clampInt(ev.Detail.Status.Battery, 0, 100))
	}

	team, role := teamRoleFromGroup(ev.Detail.Group)

	return compact.PLI{
		DeviceUID: deviceUID,
		Callsign:  ev.Detail.Contact.Callsign,
		LatE7:     int32(ev.Point.Lat * latLonScale),
		LonE7:     int32(ev.Point.Lon * latLonScale),
		AltitudeM: alt,
		CourseCD:  course,
		SpeedCMS:  speed,
		Battery:   battery,
		Team:      team,
		Role:      role,
	}, true
}

// PLIToCoT converts an inbound (mesh -> TAK) PLI record into a CoT
// position-report event. It prefers the callsign carried on the record
// itself, falling back to dir's learned mapping and then the device uid
// for older peers that don't populate the field.
func PLIToCoT(p compact.PLI, dir *Directory) cot.Event {
	callsign := p.Callsign
	if callsign == "" {
		callsign = p.DeviceUID
		if cs, ok := dir.Callsign(p.DeviceUID); ok {
			callsign = cs
		}
	}

	now := time.Now().UTC()

	return cot.Event{
		Version: "2.0",
		Type:    "a-f-G-U-C",
		UID:     p.DeviceUID,
		Time:    now,
		Start:   now,
		Stale:   now.Add(pliStaleFor),
		How:     "m-g",
		Point: cot.Point{
			Lat: float64(p.LatE7) / latLonScale,
			Lon: float64(p.LonE7) / latLonScale,
			// AltitudeM 0 reverse-maps to hae 0, not the CoT sentinel;
			// lossy but peer-compatible.
			Hae: float64(p.AltitudeM),
			CE:  9999999.0,
			LE:  9999999.0,
		},
		Detail: cot.Detail{
			Contact: &cot.Contact{Callsign: callsign},
			Group:   groupFromTeamRole(p.Team, p.Role),
			Status:  &cot.Status{Battery: int(p.Battery)},
			Track:   &cot.Track{Course: float64(p.CourseCD) / courseScale, Speed: float64(p.SpeedCMS) / speedScale},
		},
	}
}

func clampInt32(v float64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func clampUint16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var teamNames = []string{
	"White", "Yellow", "Orange", "Magenta", "Red", "Maroon", "Purple",
	"Dark Blue", "Blue", "Cyan", "Teal", "Green", "Dark Green", "Brown",
}

var roleNames = []string{
	"Team Member", "Team Lead", "HQ", "Sniper", "Medic", "Forward Observer", "RTO", "K9",
}

func teamRoleFromGroup(g *cot.Group) (compact.Team, compact.Role) {
	if g == nil {
		return compact.TeamCyan, compact.RoleTeamMember
	}
	team := compact.TeamCyan
	for i, name := range teamNames {
		if name == g.Name {
			team = compact.Team(i)
			break
		}
	}
	role := compact.RoleTeamMember
	for i, name := range roleNames {
		if name == g.Role {
			role = compact.Role(i)
			break
		}
	}
	return team, role
}

func groupFromTeamRole(team compact.Team, role compact.Role) *cot.Group {
	name := "Cyan"
	if int(team) < len(teamNames) {
		name = teamNames[team]
	}
	roleName := "Team Member"
	if int(role) < len(roleNames) {
		roleName = roleNames[role]
	}
	return &cot.Group{Name: name, Role: roleName}
}

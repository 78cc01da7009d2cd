package bridge

import (
	"time"

	"github.com/johntiver92-beep/meshtastic-apple/internal/compact"
	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
)

const statusStaleFor = 10 * time.Minute

// StatusToCoT converts a standalone device-health ping into a CoT event
// carrying only a status detail, for a node that has battery telemetry
// but no fresh position fix to attach it to.
func StatusToCoT(s compact.Status, dir *Directory) cot.Event {
	callsign := s.Callsign
	if callsign == "" {
		callsign = s.DeviceUID
		if cs, ok := dir.Callsign(s.DeviceUID); ok {
			callsign = cs
		}
	}

	now := time.Now().UTC()
	return cot.Event{
		Version: "2.0",
		Type:    "b-m-p-s-p-i",
		UID:     s.DeviceUID,
		Time:    now,
		Start:   now,
		Stale:   now.Add(statusStaleFor),
		How:     "m-g",
		Detail: cot.Detail{
			Contact: &cot.Contact{Callsign: callsign},
			Status:  &cot.Status{Battery: int(s.Battery)},
		},
	}
}

package bridge

import (
	"strings"
	"time"

	"github.com/johntiver92-beep/meshtastic-apple/internal/compact"
	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
	"github.com/johntiver92-beep/meshtastic-apple/internal/tlsserver"
)

// allChatRooms is ATAK's literal broadcast-chatroom name; anything else
// is treated as a direct-message recipient callsign.
const allChatRooms = "All Chat Rooms"

// ReadReceipt is a delivery/read acknowledgement smuggled inside a chat
// message body as "ACK:D:<id>" (delivered) or "ACK:R:<id>" (read),
// intercepted by the bridge rather than forwarded as ordinary chat.
type ReadReceipt struct {
	Delivered bool
	MessageID string
}

// ParseReadReceipt reports whether message is a read-receipt control
// message and, if so, decodes it.
func ParseReadReceipt(message string) (ReadReceipt, bool) {
	switch {
	case strings.HasPrefix(message, "ACK:D:"):
		return ReadReceipt{Delivered: true, MessageID: strings.TrimPrefix(message, "ACK:D:")}, true
	case strings.HasPrefix(message, "ACK:R:"):
		return ReadReceipt{Delivered: false, MessageID: strings.TrimPrefix(message, "ACK:R:")}, true
	default:
		return ReadReceipt{}, false
	}
}

// CoTToChat converts an outbound (TAK -> mesh) GeoChat event into its
// compact record. The sender and message id are recovered by splitting
// a "GeoChat.<sender>.<room>.<msgId>" event uid, falling back to the
// chat detail's own fields and the event uid whole when the uid isn't
// in that form. <msgId> is smuggled into the sender field as
// "<sender>|<msgId>" since the wire record has no dedicated field for
// it. When the target room isn't the broadcast room, it's treated as a
// direct-message recipient callsign and resolved through dir to a
// device uid; an unknown recipient is sent as both To and ToCallsign
// (degraded but non-fatal). ok is false if ev isn't a recognizable
// GeoChat event.
func CoTToChat(ev cot.Event, dir *Directory) (compact.Chat, bool) {
	if ev.Detail.Chat == nil || ev.Detail.Remarks == nil {
		return compact.Chat{}, false
	}

	sender, room, msgID, ok := cot.ParseGeoChatUID(ev.UID)
	if !ok {
		sender = ev.Detail.Chat.SenderCallsign
		if sender == "" {
			sender = ev.Detail.Remarks.Source
		}
		room = ev.Detail.Chat.Chatroom
		msgID = ev.UID
	}

	var to, toCallsign string
	switch {
	case room == "" || room == allChatRooms:
		to = allChatRooms
	default:
		to, toCallsign = room, room
		if uid, ok := dir.DeviceUID(room); ok {
			to = uid
		}
	}

	return compact.Chat{
		SenderField: compact.EncodeSenderField(sender, msgID),
		Message:     ev.Detail.Remarks.Text,
		To:          to,
		ToCallsign:  toCallsign,
	}, true
}

// ChatToCoT converts an inbound (mesh -> TAK) chat record into a
// GeoChat CoT event, resolving the sender's callsign from its device uid
// via dir (falling back to the device uid itself) so the chat room
// routing matches what ATAK expects. This is the exact inverse of
// CoTToChat, including recovering the "<device>|<msgId>" smuggle format.
func ChatToCoT(c compact.Chat, dir *Directory) cot.Event {
	senderUID, msgID, _ := compact.DecodeSenderField(c.SenderField)
	callsign := senderUID
	if cs, ok := dir.Callsign(senderUID); ok {
		callsign = cs
	}
	if msgID == "" {
		msgID = senderUID
	}

	room := c.ToCallsign
	if room == "" {
		room = c.To
	}
	if room == "" {
		room = allChatRooms
	}

	uid := cot.GeoChatUID(senderUID, room, msgID)
	now := time.Now().UTC()

	return cot.Event{
		Version: "2.0",
		Type:    "b-t-f",
		UID:     uid,
		Time:    now,
		Start:   now,
		Stale:   now.Add(pliStaleFor),
		How:     "h-g-i-g-o",
		Detail: cot.Detail{
			Contact: &cot.Contact{Callsign: callsign},
			Chat: &cot.Chat{
				ID:             room,
				Chatroom:       room,
				SenderCallsign: callsign,
				MessageID:      msgID,
			},
			ChatGroup: &cot.ChatGroup{ID: room},
			Link: []*cot.Link{
				{UID: senderUID, Type: "a-f-G-U-C", Relation: "p-p"},
			},
			ServerDestination: &cot.ServerDestination{
				Destinations: tlsserver.ListenAddress + ":tcp:" + callsign,
			},
			Remarks: &cot.Remarks{
				Source: "BAO.F.ATAK." + senderUID,
				To:     room,
				Time:   now,
				Text:   c.Message,
			},
		},
	}
}

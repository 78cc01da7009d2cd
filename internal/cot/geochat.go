package cot

import "strings"

// GeoChatUID synthesizes a GeoChat CoT event uid from a sender uid and
// a recipient uid, matching ATAK's "GeoChat.<sender>.<recipient>.<msg>"
// convention for one-to-one chat.
func GeoChatUID(senderUID, recipientUID, messageID string) string {
	return strings.Join([]string{"GeoChat", senderUID, recipientUID, messageID}, ".")
}

// ParseGeoChatUID splits a GeoChat uid back into its sender, recipient
// and message-id components. ok is false if uid isn't a well-formed
// GeoChat uid.
func ParseGeoChatUID(uid string) (senderUID, recipientUID, messageID string, ok bool) {
	parts := strings.SplitN(uid, ".", 4)
	if len(parts) != 4 || parts[0] != "GeoChat" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

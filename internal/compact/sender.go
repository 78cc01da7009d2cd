package compact

import "strings"

// EncodeSenderField combines a callsign and the originating CoT message
// id into the "<callsign>|<msgID>" form smuggled through Chat.SenderField.
func EncodeSenderField(callsign, messageID string) string {
	return callsign + "|" + messageID
}

// DecodeSenderField splits a SenderField back into callsign and message
// id. ok is false if no "|" separator is present, in which case the
// whole string is returned as the callsign with an empty message id.
func DecodeSenderField(field string) (callsign, messageID string, ok bool) {
	idx := strings.LastIndexByte(field, '|')
	if idx < 0 {
		return field, "", false
	}
	return field[:idx], field[idx+1:], true
}

package cot

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// parseDetail decodes a detail block's inner XML, recognizing the tags
// in knownDetailTags and preserving every other child verbatim in
// encounter order.
func parseDetail(innerXML []byte) (Detail, error) {
	var det Detail
	dec := xml.NewDecoder(bytes.NewReader(innerXML))

	for {
		startOffset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return det, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		name := se.Name.Local
		if !knownDetailTags[name] {
			raw, err := captureRaw(dec, se, innerXML, startOffset)
			if err != nil {
				return det, err
			}
			det.Raw = append(det.Raw, RawElement{Name: name, Raw: raw})
			continue
		}

		switch name {
		case "contact":
			var c struct {
				Callsign string `xml:"callsign,attr"`
				Endpoint string `xml:"endpoint,attr"`
			}
			if err := dec.DecodeElement(&c, &se); err != nil {
				return det, err
			}
			det.Contact = &Contact{Callsign: c.Callsign, Endpoint: c.Endpoint}
		case "__group":
			var g struct {
				Name string `xml:"name,attr"`
				Role string `xml:"role,attr"`
			}
			if err := dec.DecodeElement(&g, &se); err != nil {
				return det, err
			}
			det.Group = &Group{Name: g.Name, Role: g.Role}
		case "status":
			var s struct {
				Battery int `xml:"battery,attr"`
			}
			if err := dec.DecodeElement(&s, &se); err != nil {
				return det, err
			}
			det.Status = &Status{Battery: s.Battery}
		case "track":
			var tr struct {
				Course float64 `xml:"course,attr"`
				Speed  float64 `xml:"speed,attr"`
			}
			if err := dec.DecodeElement(&tr, &se); err != nil {
				return det, err
			}
			det.Track = &Track{Course: tr.Course, Speed: tr.Speed}
		case "__chat":
			var c struct {
				ID         string `xml:"id,attr"`
				Chatroom   string `xml:"chatroom,attr"`
				Sender     string `xml:"senderCallsign,attr"`
				GroupOwner string `xml:"groupOwner,attr"`
			}
			if err := dec.DecodeElement(&c, &se); err != nil {
				return det, err
			}
			if det.Chat == nil {
				det.Chat = &Chat{}
			}
			det.Chat.ID = c.ID
			det.Chat.Chatroom = c.Chatroom
			det.Chat.SenderCallsign = c.Sender
			det.Chat.GroupOwner = c.GroupOwner
		case "chatgrp":
			var raw struct {
				Attrs []xml.Attr `xml:",any,attr"`
			}
			if err := dec.DecodeElement(&raw, &se); err != nil {
				return det, err
			}
			group := &ChatGroup{}
			for _, a := range raw.Attrs {
				if a.Name.Local == "id" {
					group.ID = a.Value
				} else {
					group.UID = append(group.UID, a.Value)
				}
			}
			det.ChatGroup = group
		case "remarks":
			var r struct {
				Source string `xml:"source,attr"`
				To     string `xml:"to,attr"`
				Time   string `xml:"time,attr"`
				Text   string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&r, &se); err != nil {
				return det, err
			}
			det.Remarks = &Remarks{Source: r.Source, To: r.To, Time: parseTime(r.Time), Text: r.Text}
		case "link":
			var l struct {
				UID      string `xml:"uid,attr"`
				Type     string `xml:"type,attr"`
				Relation string `xml:"relation,attr"`
			}
			if err := dec.DecodeElement(&l, &se); err != nil {
				return det, err
			}
			det.Link = append(det.Link, &Link{UID: l.UID, Type: l.Type, Relation: l.Relation})
		case "__serverdestination":
			var s struct {
				Destinations string `xml:"destinations,attr"`
			}
			if err := dec.DecodeElement(&s, &se); err != nil {
				return det, err
			}
			det.ServerDestination = &ServerDestination{Destinations: s.Destinations}
		case "TakProtocolSupport":
			var s struct {
				Version string `xml:"version,attr"`
			}
			if err := dec.DecodeElement(&s, &se); err != nil {
				return det, err
			}
			det.TakProtocolSupport = &TakProtocolSupport{Version: s.Version}
		case "TakResponse":
			var s struct {
				Status bool `xml:"status,attr"`
			}
			if err := dec.DecodeElement(&s, &se); err != nil {
				return det, err
			}
			det.TakResponse = &TakResponse{Status: s.Status}
		}
	}

	return det, nil
}

// captureRaw skips past the element se (already consumed as a start
// token at startOffset) and returns its exact source bytes, including
// the opening and closing tags.
func captureRaw(dec *xml.Decoder, se xml.StartElement, source []byte, startOffset int64) ([]byte, error) {
	if err := dec.Skip(); err != nil {
		return nil, fmt.Errorf("cot: skip unknown detail child %q: %w", se.Name.Local, err)
	}
	endOffset := dec.InputOffset()
	if startOffset < 0 || endOffset > int64(len(source)) || startOffset > endOffset {
		return nil, fmt.Errorf("cot: bad offsets capturing %q", se.Name.Local)
	}
	raw := make([]byte, endOffset-startOffset)
	copy(raw, source[startOffset:endOffset])
	return raw, nil
}

// marshalDetail serializes a Detail back to its "<detail>...</detail>"
// wire form, writing known fields in a fixed order and then re-emitting
// every preserved raw child.
func marshalDetail(d Detail) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<detail>")

	if d.Contact != nil {
		buf.WriteString(`<contact callsign="`)
		xml.EscapeText(&buf, []byte(d.Contact.Callsign))
		if d.Contact.Endpoint != "" {
			buf.WriteString(`" endpoint="`)
			xml.EscapeText(&buf, []byte(d.Contact.Endpoint))
		}
		buf.WriteString(`"/>`)
	}
	if d.Group != nil {
		fmt.Fprintf(&buf, `<__group name="%s" role="%s"/>`, escapeAttr(d.Group.Name), escapeAttr(d.Group.Role))
	}
	if d.Status != nil {
		fmt.Fprintf(&buf, `<status battery="%d"/>`, d.Status.Battery)
	}
	if d.Track != nil {
		fmt.Fprintf(&buf, `<track course="%s" speed="%s"/>`, formatFloat(d.Track.Course), formatFloat(d.Track.Speed))
	}
	if d.Chat != nil {
		fmt.Fprintf(&buf, `<__chat id="%s" chatroom="%s" senderCallsign="%s" groupOwner="%s"/>`,
			escapeAttr(d.Chat.ID), escapeAttr(d.Chat.Chatroom), escapeAttr(d.Chat.SenderCallsign), escapeAttr(d.Chat.GroupOwner))
	}
	if d.ChatGroup != nil {
		buf.WriteString(`<chatgrp id="`)
		xml.EscapeText(&buf, []byte(d.ChatGroup.ID))
		buf.WriteString(`"`)
		for i, uid := range d.ChatGroup.UID {
			fmt.Fprintf(&buf, ` uid%d="%s"`, i, escapeAttr(uid))
		}
		buf.WriteString(`/>`)
	}
	if d.Remarks != nil {
		buf.WriteString(`<remarks source="`)
		xml.EscapeText(&buf, []byte(d.Remarks.Source))
		buf.WriteString(`" to="`)
		xml.EscapeText(&buf, []byte(d.Remarks.To))
		buf.WriteString(`" time="`)
		buf.WriteString(formatTime(d.Remarks.Time))
		buf.WriteString(`">`)
		xml.EscapeText(&buf, []byte(d.Remarks.Text))
		buf.WriteString(`</remarks>`)
	}
	for _, l := range d.Link {
		fmt.Fprintf(&buf, `<link uid="%s" type="%s" relation="%s"/>`,
			escapeAttr(l.UID), escapeAttr(l.Type), escapeAttr(l.Relation))
	}
	if d.ServerDestination != nil {
		fmt.Fprintf(&buf, `<__serverdestination destinations="%s"/>`, escapeAttr(d.ServerDestination.Destinations))
	}
	if d.TakProtocolSupport != nil {
		fmt.Fprintf(&buf, `<TakProtocolSupport version="%s"/>`, escapeAttr(d.TakProtocolSupport.Version))
	}
	if d.TakResponse != nil {
		fmt.Fprintf(&buf, `<TakResponse status="%t"/>`, d.TakResponse.Status)
	}
	for _, raw := range d.Raw {
		buf.Write(raw.Raw)
	}

	buf.WriteString("</detail>")
	return buf.Bytes(), nil
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

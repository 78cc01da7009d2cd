// Package cot implements the Cursor-on-Target XML event model: parsing,
// serialization and a streaming frame reader for the "</event>"-delimited
// TAK protocol wire format.
//
// Grounded on the teacher's cot/cot.go Event/Point/Detail/Contact/Group
// structs, generalized from hydris's narrow entity-conversion use case
// to a full CoT event model that preserves every detail child the
// gateway doesn't itself interpret.
package cot

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

// Event is one Cursor-on-Target XML event.
type Event struct {
	Version string
	Type    string
	UID     string
	Time    time.Time
	Start   time.Time
	Stale   time.Time
	How     string
	Point   Point
	Detail  Detail
}

// Point is a CoT event's position.
type Point struct {
	Lat float64
	Lon float64
	Hae float64
	CE  float64
	LE  float64
}

// Contact carries a unit's callsign and, for chat-capable endpoints, its
// XMPP-style endpoint address.
type Contact struct {
	Callsign string
	Endpoint string
}

// Group is the unit's team color and role.
type Group struct {
	Name string
	Role string
}

// Status is a generic numeric status field (e.g. battery percentage).
type Status struct {
	Battery int
}

// Track carries course and speed, used on PLI events.
type Track struct {
	Course float64
	Speed  float64
}

// Chat holds a GeoChat message's routing fields.
type Chat struct {
	ID             string
	Chatroom       string
	SenderCallsign string
	GroupOwner     string
	Message        string
	MessageID      string
}

// ChatGroup lists the UIDs participating in a chat room.
type ChatGroup struct {
	ID  string
	UID []string
}

// Remarks is free-text chat body, carried as a sibling of __chat on
// GeoChat events per the ATAK wire format. To names the chatroom (or
// recipient) the remark is addressed to.
type Remarks struct {
	Source string
	To     string
	Time   time.Time
	Text   string
}

// Link references another CoT entity, used for delete/relationship
// events such as t-x-d-d.
type Link struct {
	UID      string
	Type     string
	Relation string
}

// ServerDestination carries the TAK server's own address, echoed back by
// some ATAK clients in their detail block.
type ServerDestination struct {
	Destinations string
}

// TakProtocolSupport advertises which TAK protocol versions this server
// speaks, sent once a connection reaches ready.
type TakProtocolSupport struct {
	Version string
}

// TakResponse answers a client's t-x-takp-q protocol query.
type TakResponse struct {
	Status bool
}

// RawElement preserves one detail child this package does not interpret,
// byte-for-byte (modulo XML token re-serialization), so CoT traffic the
// bridge doesn't need to touch round-trips unchanged.
type RawElement struct {
	Name string
	Raw  []byte
}

// Detail is a CoT event's extensible detail block. Known children are
// decoded into typed fields; every other child is preserved in Raw in
// the order it was encountered.
type Detail struct {
	Contact            *Contact
	Group              *Group
	Status             *Status
	Track              *Track
	Chat               *Chat
	ChatGroup          *ChatGroup
	Remarks            *Remarks
	Link               []*Link
	ServerDestination  *ServerDestination
	TakProtocolSupport *TakProtocolSupport
	TakResponse        *TakResponse
	Raw                []RawElement
}

// knownDetailTags lists the detail children this package decodes.
// Anything else falls through to RawElement preservation.
var knownDetailTags = map[string]bool{
	"contact":             true,
	"__group":             true,
	"status":              true,
	"track":               true,
	"__chat":              true,
	"chatgrp":             true,
	"remarks":             true,
	"link":                true,
	"__serverdestination": true,
	"TakProtocolSupport":  true,
	"TakResponse":         true,
}

var errUnclosedEvent = fmt.Errorf("cot: event not terminated by </event>")

// Marshal serializes an Event to its CoT XML wire form, terminated with
// a trailing newline the way streaming TAK peers expect between events.
func Marshal(ev Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<event version="`)
	xml.EscapeText(&buf, []byte(ev.Version))
	buf.WriteString(`" uid="`)
	xml.EscapeText(&buf, []byte(ev.UID))
	buf.WriteString(`" type="`)
	xml.EscapeText(&buf, []byte(ev.Type))
	buf.WriteString(`" time="`)
	buf.WriteString(formatTime(ev.Time))
	buf.WriteString(`" start="`)
	buf.WriteString(formatTime(ev.Start))
	buf.WriteString(`" stale="`)
	buf.WriteString(formatTime(ev.Stale))
	buf.WriteString(`" how="`)
	xml.EscapeText(&buf, []byte(ev.How))
	buf.WriteString("\">")

	fmt.Fprintf(&buf, `<point lat="%s" lon="%s" hae="%s" ce="%s" le="%s"/>`,
		formatFloat(ev.Point.Lat), formatFloat(ev.Point.Lon), formatFloat(ev.Point.Hae),
		formatFloat(ev.Point.CE), formatFloat(ev.Point.LE))

	detailXML, err := marshalDetail(ev.Detail)
	if err != nil {
		return nil, fmt.Errorf("cot: marshal detail: %w", err)
	}
	buf.Write(detailXML)

	buf.WriteString("</event>\n")
	return buf.Bytes(), nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// Unmarshal parses a single CoT XML event (without requiring a trailing
// newline); use Reader to split a byte stream into individual events
// first.
func Unmarshal(data []byte) (Event, error) {
	type rawPoint struct {
		Lat float64 `xml:"lat,attr"`
		Lon float64 `xml:"lon,attr"`
		Hae float64 `xml:"hae,attr"`
		CE  float64 `xml:"ce,attr"`
		LE  float64 `xml:"le,attr"`
	}
	type rawEvent struct {
		XMLName xml.Name `xml:"event"`
		Version string   `xml:"version,attr"`
		Type    string   `xml:"type,attr"`
		UID     string   `xml:"uid,attr"`
		Time    string   `xml:"time,attr"`
		Start   string   `xml:"start,attr"`
		Stale   string   `xml:"stale,attr"`
		How     string   `xml:"how,attr"`
		Point   rawPoint `xml:"point"`
		Detail  struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"detail"`
	}

	var re rawEvent
	if err := xml.Unmarshal(data, &re); err != nil {
		return Event{}, fmt.Errorf("cot: unmarshal: %w", err)
	}

	detail, err := parseDetail(re.Detail.Inner)
	if err != nil {
		return Event{}, fmt.Errorf("cot: parse detail: %w", err)
	}

	return Event{
		Version: re.Version,
		Type:    re.Type,
		UID:     re.UID,
		Time:    parseTime(re.Time),
		Start:   parseTime(re.Start),
		Stale:   parseTime(re.Stale),
		How:     re.How,
		Point: Point{
			Lat: re.Point.Lat,
			Lon: re.Point.Lon,
			Hae: re.Point.Hae,
			CE:  re.Point.CE,
			LE:  re.Point.LE,
		},
		Detail: detail,
	}, nil
}

package serialization

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/wire"
)

// PayloadValue decodes a payload for display: JSON encodings are parsed,
// valid UTF-8 becomes a string and anything else stays raw bytes
func PayloadValue(payload []byte, encoding string) any {
	if payload == nil {
		return nil
	}
	if isJSON(encoding) {
		var v any
		if err := json.Unmarshal(payload, &v); err == nil {
			return v
		}
	}
	if utf8.Valid(payload) {
		return string(payload)
	}
	return payload
}

func isJSON(encoding string) bool {
	base, _, _ := strings.Cut(encoding, ";")
	switch base {
	case "application/json", "text/json", "zenoh/json":
		return true
	}
	return false
}

// SampleRecord converts a sample
func SampleRecord(s contracts.Sample) Record {
	var timestamp any
	if s.Timestamp != nil {
		timestamp = s.Timestamp.String()
	}
	return Record{
		{"keyexpr", s.KeyExpr},
		{"payload", PayloadValue(s.Payload, s.Encoding)},
		{"encoding", s.Encoding},
		{"kind", s.Kind.String()},
		{"timestamp", timestamp},
		{"priority", s.Priority.String()},
		{"congestion_control", s.CongestionControl.String()},
		{"express", s.Express},
		{"attachment", PayloadValue(s.Attachment, "")},
	}
}

// ReplyErrorRecord converts a reply error
func ReplyErrorRecord(e contracts.ReplyError) Record {
	return Record{
		{"error", PayloadValue(e.Payload, e.Encoding)},
		{"encoding", e.Encoding},
	}
}

// ReplyRecord converts a reply to the record of its sample or error
func ReplyRecord(r contracts.Reply) Record {
	if r.Sample != nil {
		return SampleRecord(*r.Sample)
	}
	if r.Err != nil {
		return ReplyErrorRecord(*r.Err)
	}
	return Record{}
}

// HelloRecord converts a scouting answer
func HelloRecord(h contracts.Hello) Record {
	locators := h.Locators
	if locators == nil {
		locators = []string{}
	}
	return Record{
		{"zid", h.ZID.String()},
		{"whatami", h.WhatAmI.String()},
		{"locators", locators},
	}
}

// ScoutingRecord converts a decoded scouting probe or answer
func ScoutingRecord(msg wire.ScoutingMessage) Record {
	if msg.Hello != nil {
		rec := Record{{"type", wire.TypeHello}, {"version", msg.Version}}
		return append(rec, HelloRecord(*msg.Hello)...)
	}
	var what []string
	var zid any
	if msg.Scout != nil {
		for _, w := range msg.Scout.What {
			what = append(what, w.String())
		}
		if msg.Scout.ZID != "" {
			zid = msg.Scout.ZID.String()
		}
	}
	return Record{
		{"type", wire.TypeScout},
		{"version", msg.Version},
		{"what", strings.Join(what, "|")},
		{"zid", zid},
	}
}

// QueryRecord converts a query received by a queryable
func QueryRecord(q *contracts.Query) Record {
	return Record{
		{"selector", q.Selector()},
		{"keyexpr", q.KeyExpr},
		{"parameters", q.Parameters},
		{"payload", PayloadValue(q.Payload, q.Encoding)},
		{"encoding", q.Encoding},
		{"attachment", PayloadValue(q.Attachment, "")},
	}
}

// Replies converts replies into records
type Replies struct{}

// Convert converts a data reply
func (Replies) Convert(s contracts.Sample) Record {
	return SampleRecord(s)
}

// ConvertError converts an error reply
func (Replies) ConvertError(e contracts.ReplyError) Record {
	return ReplyErrorRecord(e)
}

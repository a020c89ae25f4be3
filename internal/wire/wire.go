package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glimte/nuze-go/contracts"
)

// Header names
const (
	HeaderKind        = "Nuze-Kind"
	HeaderKeyExpr     = "Nuze-Keyexpr"
	HeaderEncoding    = "Nuze-Encoding"
	HeaderPriority    = "Nuze-Priority"
	HeaderCongestion  = "Nuze-Congestion"
	HeaderExpress     = "Nuze-Express"
	HeaderTimestamp   = "Nuze-Timestamp"
	HeaderAttachment  = "Nuze-Attachment"
	HeaderSource      = "Nuze-Source"
	HeaderDestination = "Nuze-Destination"
	HeaderParameters  = "Nuze-Parameters"
	HeaderTarget      = "Nuze-Target"
	HeaderReply       = "Nuze-Reply"
	HeaderReplier     = "Nuze-Replier"
)

// Reply markers carried in HeaderReply. A replier announces itself with
// ReplyAck, answers with ReplyOK or ReplyErr messages and ends with ReplyFinal.
const (
	ReplyAck   = "ack"
	ReplyOK    = "ok"
	ReplyErr   = "err"
	ReplyFinal = "final"
)

var ErrMalformed = errors.New("wire: malformed message")

// Header is a transport-neutral set of message headers
type Header map[string]string

// Get returns the value of key, or "" when absent
func (h Header) Get(key string) string {
	return h[key]
}

func (h Header) set(key, value string) {
	if value != "" {
		h[key] = value
	}
}

// EncodeSample writes s and its routing metadata into a new header set.
// The payload travels as the message body.
func EncodeSample(s contracts.Sample, source contracts.ZID, dest contracts.Locality) Header {
	h := Header{}
	putSample(h, s)
	h.set(HeaderSource, string(source))
	h.set(HeaderDestination, dest.String())
	return h
}

func putSample(h Header, s contracts.Sample) {
	h.set(HeaderKeyExpr, s.KeyExpr)
	h.set(HeaderKind, s.Kind.String())
	h.set(HeaderEncoding, s.Encoding)
	if s.Priority.Valid() {
		h.set(HeaderPriority, strconv.Itoa(int(s.Priority)))
	}
	h.set(HeaderCongestion, s.CongestionControl.String())
	if s.Express {
		h.set(HeaderExpress, "true")
	}
	if s.Timestamp != nil {
		h.set(HeaderTimestamp, s.Timestamp.String())
	}
	if len(s.Attachment) > 0 {
		h.set(HeaderAttachment, base64.StdEncoding.EncodeToString(s.Attachment))
	}
}

// DecodeSample rebuilds a sample together with its publisher id and
// destination restriction
func DecodeSample(h Header, body []byte) (contracts.Sample, contracts.ZID, contracts.Locality, error) {
	s, err := sample(h, body)
	if err != nil {
		return contracts.Sample{}, "", 0, err
	}
	dest, err := locality(h)
	if err != nil {
		return contracts.Sample{}, "", 0, err
	}
	return s, contracts.ZID(h.Get(HeaderSource)), dest, nil
}

func sample(h Header, body []byte) (contracts.Sample, error) {
	key := h.Get(HeaderKeyExpr)
	if key == "" {
		return contracts.Sample{}, fmt.Errorf("%w: missing %s", ErrMalformed, HeaderKeyExpr)
	}
	s := contracts.NewSample(key, body)
	if h.Get(HeaderKind) == contracts.KindDelete.String() {
		s.Kind = contracts.KindDelete
	}
	if v := h.Get(HeaderEncoding); v != "" {
		s.Encoding = v
	}
	if v := h.Get(HeaderPriority); v != "" {
		p, err := contracts.ParsePriority(v)
		if err != nil {
			return contracts.Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s.Priority = p
	}
	if v := h.Get(HeaderCongestion); v != "" {
		cc, err := contracts.ParseCongestionControl(v)
		if err != nil {
			return contracts.Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s.CongestionControl = cc
	}
	s.Express = h.Get(HeaderExpress) == "true"
	if v := h.Get(HeaderTimestamp); v != "" {
		ts, err := contracts.ParseTimestamp(v)
		if err != nil {
			return contracts.Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s.Timestamp = ts
	}
	att, err := attachment(h)
	if err != nil {
		return contracts.Sample{}, err
	}
	s.Attachment = att
	return s, nil
}

func attachment(h Header) ([]byte, error) {
	v := h.Get(HeaderAttachment)
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment: %v", ErrMalformed, err)
	}
	return b, nil
}

func locality(h Header) (contracts.Locality, error) {
	v := h.Get(HeaderDestination)
	if v == "" {
		return contracts.LocalityAny, nil
	}
	l, err := contracts.ParseLocality(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return l, nil
}

// Query is the decoded form of a query message
type Query struct {
	KeyExpr     string
	Parameters  string
	Payload     []byte
	Encoding    string
	Attachment  []byte
	Target      contracts.QueryTarget
	Source      contracts.ZID
	Destination contracts.Locality
}

// EncodeQuery writes q into a new header set. The payload travels as the body.
func EncodeQuery(q Query) Header {
	h := Header{}
	h.set(HeaderKeyExpr, q.KeyExpr)
	h.set(HeaderParameters, q.Parameters)
	h.set(HeaderEncoding, q.Encoding)
	h.set(HeaderTarget, q.Target.String())
	h.set(HeaderSource, string(q.Source))
	h.set(HeaderDestination, q.Destination.String())
	if len(q.Attachment) > 0 {
		h.set(HeaderAttachment, base64.StdEncoding.EncodeToString(q.Attachment))
	}
	return h
}

// DecodeQuery rebuilds a query message
func DecodeQuery(h Header, body []byte) (Query, error) {
	q := Query{
		KeyExpr:    h.Get(HeaderKeyExpr),
		Parameters: h.Get(HeaderParameters),
		Encoding:   h.Get(HeaderEncoding),
		Source:     contracts.ZID(h.Get(HeaderSource)),
	}
	if q.KeyExpr == "" {
		return Query{}, fmt.Errorf("%w: missing %s", ErrMalformed, HeaderKeyExpr)
	}
	if len(body) > 0 {
		q.Payload = body
	}
	if v := h.Get(HeaderTarget); v != "" {
		t, err := contracts.ParseQueryTarget(v)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		q.Target = t
	}
	dest, err := locality(h)
	if err != nil {
		return Query{}, err
	}
	q.Destination = dest
	att, err := attachment(h)
	if err != nil {
		return Query{}, err
	}
	q.Attachment = att
	return q, nil
}

// EncodeReply writes r into a new header set and returns the body
func EncodeReply(r contracts.Reply) (Header, []byte) {
	h := Header{}
	h.set(HeaderReplier, string(r.ReplierID))
	if r.Err != nil {
		h.set(HeaderReply, ReplyErr)
		h.set(HeaderEncoding, r.Err.Encoding)
		return h, r.Err.Payload
	}
	h.set(HeaderReply, ReplyOK)
	putSample(h, *r.Sample)
	return h, r.Sample.Payload
}

// EncodeMarker returns the headers of a ReplyAck or ReplyFinal message
func EncodeMarker(marker string, replier contracts.ZID) Header {
	h := Header{HeaderReply: marker}
	h.set(HeaderReplier, string(replier))
	return h
}

// DecodeReply rebuilds a reply message and returns its marker. For
// ReplyAck and ReplyFinal only the replier id of the reply is set.
func DecodeReply(h Header, body []byte) (contracts.Reply, string, error) {
	replier := contracts.ZID(h.Get(HeaderReplier))
	marker := h.Get(HeaderReply)
	switch marker {
	case ReplyAck, ReplyFinal:
		return contracts.Reply{ReplierID: replier}, marker, nil
	case ReplyErr:
		return contracts.NewErrorReply(replier, body, h.Get(HeaderEncoding)), marker, nil
	case ReplyOK:
		s, err := sample(h, body)
		if err != nil {
			return contracts.Reply{}, "", err
		}
		return contracts.NewSampleReply(replier, s), marker, nil
	}
	return contracts.Reply{}, "", fmt.Errorf("%w: reply kind %q", ErrMalformed, marker)
}

// ScoutingVersion is the version stamped on scouting messages
const ScoutingVersion = 1

// Scouting message types
const (
	TypeScout = "scout"
	TypeHello = "hello"
)

type scouting struct {
	Type     string   `json:"type"`
	Version  int      `json:"version"`
	What     string   `json:"what,omitempty"`
	ZID      string   `json:"zid,omitempty"`
	WhatAmI  string   `json:"whatami,omitempty"`
	Locators []string `json:"locators,omitempty"`
}

// Scout is a scouting probe looking for the roles in What. ZID is empty
// when the prober has no session.
type Scout struct {
	What []contracts.WhatAmI
	ZID  contracts.ZID
}

// ScoutingMessage is a decoded probe or answer. Exactly one of Scout and
// Hello is set.
type ScoutingMessage struct {
	Version int
	Scout   *Scout
	Hello   *contracts.Hello
}

// EncodeScout returns the body of a scouting probe
func EncodeScout(s Scout) ([]byte, error) {
	what := make([]string, len(s.What))
	for i, w := range s.What {
		what[i] = w.String()
	}
	return json.Marshal(scouting{
		Type:    TypeScout,
		Version: ScoutingVersion,
		What:    strings.Join(what, "|"),
		ZID:     string(s.ZID),
	})
}

// EncodeHello returns the JSON body of a scouting answer
func EncodeHello(h contracts.Hello) ([]byte, error) {
	return json.Marshal(scouting{
		Type:     TypeHello,
		Version:  ScoutingVersion,
		ZID:      string(h.ZID),
		WhatAmI:  h.WhatAmI.String(),
		Locators: h.Locators,
	})
}

// DecodeHello parses a scouting answer
func DecodeHello(body []byte) (contracts.Hello, error) {
	msg, err := DecodeScouting(body)
	if err != nil {
		return contracts.Hello{}, err
	}
	if msg.Hello == nil {
		return contracts.Hello{}, fmt.Errorf("%w: hello: got a %s", ErrMalformed, TypeScout)
	}
	return *msg.Hello, nil
}

// DecodeScouting parses a scouting probe or answer. A body without a type
// is read as a hello.
func DecodeScouting(body []byte) (ScoutingMessage, error) {
	var raw scouting
	if err := json.Unmarshal(body, &raw); err != nil {
		return ScoutingMessage{}, fmt.Errorf("%w: scouting: %v", ErrMalformed, err)
	}
	version := raw.Version
	if version == 0 {
		version = ScoutingVersion
	}

	switch raw.Type {
	case TypeScout:
		s := &Scout{}
		if raw.ZID != "" {
			zid, err := contracts.ParseZID(raw.ZID)
			if err != nil {
				return ScoutingMessage{}, fmt.Errorf("%w: scout: %v", ErrMalformed, err)
			}
			s.ZID = zid
		}
		if raw.What != "" {
			for _, part := range strings.Split(raw.What, "|") {
				w, err := contracts.ParseWhatAmI(part)
				if err != nil {
					return ScoutingMessage{}, fmt.Errorf("%w: scout: %v", ErrMalformed, err)
				}
				s.What = append(s.What, w)
			}
		}
		return ScoutingMessage{Version: version, Scout: s}, nil
	case TypeHello, "":
		zid, err := contracts.ParseZID(raw.ZID)
		if err != nil {
			return ScoutingMessage{}, fmt.Errorf("%w: hello: %v", ErrMalformed, err)
		}
		w, err := contracts.ParseWhatAmI(raw.WhatAmI)
		if err != nil {
			return ScoutingMessage{}, fmt.Errorf("%w: hello: %v", ErrMalformed, err)
		}
		return ScoutingMessage{Version: version, Hello: &contracts.Hello{ZID: zid, WhatAmI: w, Locators: raw.Locators}}, nil
	}
	return ScoutingMessage{}, fmt.Errorf("%w: scouting type %q", ErrMalformed, raw.Type)
}

package contracts

import (
	"fmt"
	"strings"
	"time"
)

// DefaultEncoding is the encoding of payloads published without one
const DefaultEncoding = "zenoh/bytes"

// SampleKind distinguishes puts from deletes
type SampleKind int

const (
	// KindPut carries a value
	KindPut SampleKind = iota
	// KindDelete signals the removal of a key
	KindDelete
)

func (k SampleKind) String() string {
	if k == KindDelete {
		return "delete"
	}
	return "put"
}

// Timestamp is a hybrid timestamp: the time plus the id of the session that issued it
type Timestamp struct {
	ID   ZID
	Time time.Time
}

// NewTimestamp creates a timestamp for the given session at the current time
func NewTimestamp(id ZID) *Timestamp {
	return &Timestamp{ID: id, Time: time.Now().UTC()}
}

// ParseTimestamp parses "<ZID>/<RFC3339>"
func ParseTimestamp(s string) (*Timestamp, error) {
	zid, rest, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	id, err := ParseZID(zid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	t, err := time.Parse(time.RFC3339Nano, rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return &Timestamp{ID: id, Time: t}, nil
}

// String renders the timestamp as "<ZID>/<RFC3339>"
func (t Timestamp) String() string {
	return fmt.Sprintf("%s/%s", t.ID, t.Time.UTC().Format(time.RFC3339Nano))
}

// Sample is one publication received on a key expression
type Sample struct {
	KeyExpr           string
	Payload           []byte
	Kind              SampleKind
	Encoding          string
	Timestamp         *Timestamp
	Priority          Priority
	CongestionControl CongestionControl
	Express           bool
	Attachment        []byte
}

// NewSample creates a put sample with default QoS
func NewSample(keyExpr string, payload []byte) Sample {
	return Sample{
		KeyExpr:           keyExpr,
		Payload:           payload,
		Kind:              KindPut,
		Encoding:          DefaultEncoding,
		Priority:          PriorityData,
		CongestionControl: CongestionDrop,
	}
}

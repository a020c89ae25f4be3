package messaging

import (
	"log/slog"
	"time"

	"github.com/glimte/nuze-go/contracts"
)

// PublisherOptions configures a publisher
type PublisherOptions struct {
	Encoding           string
	Priority           contracts.Priority
	CongestionControl  contracts.CongestionControl
	Reliability        contracts.Reliability
	Express            bool
	AllowedDestination contracts.Locality
}

// PutOptions configures one publication
type PutOptions struct {
	PublisherOptions
	Attachment []byte
	Timestamp  *contracts.Timestamp
}

// SubscriberOptions configures a subscriber
type SubscriberOptions struct {
	AllowedOrigin contracts.Locality
}

// QuerierOptions configures a querier
type QuerierOptions struct {
	Target             contracts.QueryTarget
	Consolidation      contracts.ConsolidationMode
	Timeout            time.Duration
	Priority           contracts.Priority
	CongestionControl  contracts.CongestionControl
	Express            bool
	AllowedDestination contracts.Locality
}

// GetOptions configures one query
type GetOptions struct {
	QuerierOptions
	Payload    []byte
	Encoding   string
	Attachment []byte
}

// QueryableOptions configures a queryable
type QueryableOptions struct {
	Complete      bool
	AllowedOrigin contracts.Locality
}

// LivelinessSubscriberOptions configures a liveliness subscriber
type LivelinessSubscriberOptions struct {
	History       bool
	AllowedOrigin contracts.Locality
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithZID sets the session id instead of a random one
func WithZID(zid contracts.ZID) SessionOption {
	return func(s *Session) {
		s.zid = zid
	}
}

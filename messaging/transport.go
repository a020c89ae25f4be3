package messaging

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/glimte/nuze-go/contracts"
)

// Mode is the role a session announces when scouted
type Mode string

const (
	ModePeer   Mode = "peer"
	ModeClient Mode = "client"
)

// DefaultQueryTimeout bounds queries issued without a timeout
const DefaultQueryTimeout = 10 * time.Second

// DefaultScoutInterval is the period between two scouting rounds
const DefaultScoutInterval = time.Second

// LivelinessPrefix is the key prefix carrying liveliness tokens
const LivelinessPrefix = "@liveliness"

// ScoutingConfig configures scouting rounds
type ScoutingConfig struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// Config describes how to open a session
type Config struct {
	Name         string         `json:"name"`
	Transport    string         `json:"transport"`
	URL          string         `json:"url,omitempty"`
	Mode         Mode           `json:"mode"`
	QueryTimeout time.Duration  `json:"query_timeout"`
	Scouting     ScoutingConfig `json:"scouting"`
}

// WithDefaults fills unset fields
func (c Config) WithDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModePeer
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.Scouting.Interval <= 0 {
		c.Scouting.Interval = DefaultScoutInterval
	}
	return c
}

// WhatAmI returns the scouting role for the configured mode
func (c Config) WhatAmI() contracts.WhatAmI {
	if c.Mode == ModeClient {
		return contracts.Client
	}
	return contracts.Peer
}

// Envelope is a sample as carried by a transport, with the id of the
// session that published it
type Envelope struct {
	Sample      contracts.Sample
	Source      contracts.ZID
	Destination contracts.Locality
}

// OutboundQuery is a query as issued by a session
type OutboundQuery struct {
	KeyExpr     string
	Parameters  string
	Payload     []byte
	Encoding    string
	Attachment  []byte
	Target      contracts.QueryTarget
	Source      contracts.ZID
	Destination contracts.Locality
	Timeout     time.Duration
}

// InboundQuery is a query as received by a queryable. Query answers through
// the transport that delivered it.
type InboundQuery struct {
	Query       *contracts.Query
	Target      contracts.QueryTarget
	Source      contracts.ZID
	Destination contracts.Locality
}

// ReplyHandler receives the replies of one outbound query. Done is called
// once, after the last Reply, when every queryable has finished answering.
type ReplyHandler struct {
	Reply func(contracts.Reply)
	Done  func()
}

// Transport moves samples and queries between sessions. Handlers are
// called on transport goroutines; closing a registration stops its handler.
type Transport interface {
	// Publish delivers an envelope to every subscription whose key
	// expression intersects the sample's key
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers handler for samples intersecting keyExpr
	Subscribe(keyExpr string, handler func(Envelope)) (io.Closer, error)

	// Query sends q to the matching queryables. Closing the returned
	// handle abandons the query; h.Done may then never be called.
	Query(ctx context.Context, q OutboundQuery, h ReplyHandler) (io.Closer, error)

	// Serve registers handler for queries intersecting keyExpr. The query
	// is finalized towards the querier when handler returns.
	Serve(keyExpr string, handler func(InboundQuery)) (io.Closer, error)

	// Locators returns the addresses this transport is reachable on
	Locators() []string

	// Close releases the transport
	Close() error
}

// Driver opens transports of one kind
type Driver interface {
	// Connect opens the transport for the session zid
	Connect(ctx context.Context, zid contracts.ZID, cfg Config, logger *slog.Logger) (Transport, error)

	// Scout reports the reachable nodes to cb until the returned handle is closed
	Scout(ctx context.Context, cfg Config, cb Callback[contracts.Hello], logger *slog.Logger) (io.Closer, error)
}

package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/keyexpr"
)

// Session is an open session on one transport. It is safe for concurrent use.
type Session struct {
	zid       contracts.ZID
	cfg       Config
	transport Transport
	logger    *slog.Logger

	mu       sync.Mutex
	closed   bool
	entities map[io.Closer]struct{}
}

func newSession(cfg Config, opts []SessionOption) *Session {
	s := &Session{
		zid:      contracts.NewZID(),
		cfg:      cfg.WithDefaults(),
		logger:   slog.Default(),
		entities: make(map[io.Closer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.cfg.Name, "zid", s.zid.String())
	return s
}

// ZID returns the session id
func (s *Session) ZID() contracts.ZID {
	return s.zid
}

// Config returns the configuration the session was opened with
func (s *Session) Config() Config {
	return s.cfg
}

// Locators returns the addresses the session is reachable on
func (s *Session) Locators() []string {
	return s.transport.Locators()
}

func (s *Session) track(c io.Closer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.entities[c] = struct{}{}
	return nil
}

func (s *Session) untrack(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, c)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) isLocal(source contracts.ZID) bool {
	return source == s.zid
}

// Put publishes payload on key
func (s *Session) Put(ctx context.Context, key string, payload []byte, opts PutOptions) error {
	return s.publish(ctx, "put", key, payload, contracts.KindPut, opts)
}

// Delete publishes a deletion of key
func (s *Session) Delete(ctx context.Context, key string, opts PutOptions) error {
	return s.publish(ctx, "delete", key, nil, contracts.KindDelete, opts)
}

func (s *Session) publish(ctx context.Context, op, key string, payload []byte, kind contracts.SampleKind, opts PutOptions) error {
	if s.isClosed() {
		return opError(op, key, ErrSessionClosed)
	}
	if err := keyexpr.ValidateConcrete(key); err != nil {
		return opError(op, key, err)
	}

	sample := contracts.NewSample(key, payload)
	sample.Kind = kind
	if opts.Encoding != "" {
		sample.Encoding = opts.Encoding
	}
	if opts.Priority.Valid() {
		sample.Priority = opts.Priority
	}
	sample.CongestionControl = opts.CongestionControl
	sample.Express = opts.Express
	sample.Attachment = opts.Attachment
	sample.Timestamp = opts.Timestamp

	env := Envelope{Sample: sample, Source: s.zid, Destination: opts.AllowedDestination}
	if err := s.transport.Publish(ctx, env); err != nil {
		return opError(op, key, err)
	}

	s.logger.Debug("published sample", "keyexpr", key, "kind", kind.String(), "bytes", len(payload))
	return nil
}

// Close undeclares every entity of the session and closes its transport.
// Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entities := make([]io.Closer, 0, len(s.entities))
	for e := range s.entities {
		entities = append(entities, e)
	}
	s.entities = make(map[io.Closer]struct{})
	s.mu.Unlock()

	var errs []error
	for _, e := range entities {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("session closed", "entities", len(entities))
	if err := errors.Join(errs...); err != nil {
		return opError("close", "", err)
	}
	return nil
}

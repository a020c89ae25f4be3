package nats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/reliability"
	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/messaging"
)

// Name is the transport name the driver is registered under
const Name = "nats"

const (
	// DefaultPrefix is the subject prefix of data messages
	DefaultPrefix = "nuze"
	// DefaultSettle is how long a query waits for new repliers once every
	// known replier has finished
	DefaultSettle = 100 * time.Millisecond

	querySubject = "_NUZE.Q"
	scoutSubject = "_NUZE.SCOUT"
)

func init() {
	messaging.Register(Name, NewDriver())
}

// Driver opens NATS transports
type Driver struct {
	prefix        string
	settle        time.Duration
	policy        reliability.RetryPolicy
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithPrefix sets the subject prefix of data messages
func WithPrefix(prefix string) Option {
	return func(d *Driver) {
		d.prefix = prefix
	}
}

// WithSettle sets the settle window of queries
func WithSettle(settle time.Duration) Option {
	return func(d *Driver) {
		if settle > 0 {
			d.settle = settle
		}
	}
}

// WithRetryPolicy sets the policy of the initial connection attempts
func WithRetryPolicy(policy reliability.RetryPolicy) Option {
	return func(d *Driver) {
		if policy != nil {
			d.policy = policy
		}
	}
}

// WithReconnect sets the reconnection behaviour of established connections
func WithReconnect(maxReconnects int, wait time.Duration) Option {
	return func(d *Driver) {
		d.maxReconnects = maxReconnects
		d.reconnectWait = wait
	}
}

// NewDriver creates a driver
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		prefix:        DefaultPrefix,
		settle:        DefaultSettle,
		policy:        reliability.NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2.0, 3),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  20 * time.Second,
		timeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) connectionOptions(name string, logger *slog.Logger) []nats.Option {
	return []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(d.maxReconnects),
		nats.ReconnectWait(d.reconnectWait),
		nats.PingInterval(d.pingInterval),
		nats.Timeout(d.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats error", "subject", subject, "error", err)
		}),
	}
}

// connect dials url under the retry policy, giving up when ctx ends
func (d *Driver) connect(ctx context.Context, url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	opts := d.connectionOptions(name, logger)

	var nc *nats.Conn
	err := reliability.Retry(ctx, d.policy, "nats connect", func(ctx context.Context) error {
		type result struct {
			nc  *nats.Conn
			err error
		}
		done := make(chan result, 1)
		go func() {
			c, err := nats.Connect(url, opts...)
			done <- result{c, err}
		}()

		select {
		case r := <-done:
			nc = r.nc
			return r.err
		case <-ctx.Done():
			go func() {
				if r := <-done; r.nc != nil {
					r.nc.Close()
				}
			}()
			return ctx.Err()
		}
	}, reliability.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	logger.Debug("connected to nats", "url", nc.ConnectedUrlRedacted())
	return nc, nil
}

// Connect opens a connection for the session zid
func (d *Driver) Connect(ctx context.Context, zid contracts.ZID, cfg messaging.Config, logger *slog.Logger) (messaging.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "nuze-" + zid.Short()
	}
	nc, err := d.connect(ctx, cfg.URL, name, logger)
	if err != nil {
		return nil, err
	}
	t, err := newTransport(nc, zid, cfg, d, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

// routerZID derives a stable session id from a NATS server id
func routerZID(serverID string) contracts.ZID {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("nats://"+serverID))
	return contracts.ZID(strings.ReplaceAll(id.String(), "-", ""))
}

// Scout reports the connected server as a router and answers from the
// sessions on it, probing every cfg.Scouting.Interval
func (d *Driver) Scout(ctx context.Context, cfg messaging.Config, cb messaging.Callback[contracts.Hello], logger *slog.Logger) (io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := d.connect(ctx, cfg.URL, "nuze-scout", logger)
	if err != nil {
		return nil, err
	}

	inbox := nats.NewInbox()
	sub, err := nc.Subscribe(inbox, func(msg *nats.Msg) {
		hello, err := wire.DecodeHello(msg.Data)
		if err != nil {
			logger.Warn("dropping malformed hello", "error", err)
			return
		}
		cb.Call(hello)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: scout: %w", err)
	}

	cb.Call(contracts.Hello{
		ZID:      routerZID(nc.ConnectedServerId()),
		WhatAmI:  contracts.Router,
		Locators: []string{nc.ConnectedUrlRedacted()},
	})

	probe, err := wire.EncodeScout(wire.Scout{What: []contracts.WhatAmI{contracts.Router, contracts.Peer}})
	if err != nil {
		nc.Close()
		return nil, err
	}
	s := &scout{nc: nc, sub: sub, inbox: inbox, probe: probe, stop: make(chan struct{}), logger: logger}
	interval := cfg.Scouting.Interval
	if interval <= 0 {
		interval = messaging.DefaultScoutInterval
	}
	s.wg.Add(1)
	go s.run(interval)
	return s, nil
}

type scout struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	inbox  string
	probe  []byte
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *slog.Logger
}

func (s *scout) run(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.nc.PublishRequest(scoutSubject, s.inbox, s.probe); err != nil {
			s.logger.Warn("scouting probe failed", "error", err)
		}
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *scout) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		_ = s.sub.Unsubscribe()
		s.nc.Close()
	})
	return nil
}

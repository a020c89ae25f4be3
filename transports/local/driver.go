package local

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/messaging"
)

// Name is the transport name the driver is registered under
const Name = "local"

func init() {
	messaging.Register(Name, NewDriver(DefaultHub))
}

// Driver opens local transports on one hub
type Driver struct {
	hub *Hub
}

// NewDriver creates a driver for hub
func NewDriver(hub *Hub) *Driver {
	return &Driver{hub: hub}
}

// Connect joins the hub as zid
func (d *Driver) Connect(ctx context.Context, zid contracts.ZID, cfg messaging.Config, logger *slog.Logger) (messaging.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &Transport{
		hub:    d.hub,
		zid:    zid,
		logger: logger,
	}
	d.hub.Join(contracts.Hello{ZID: zid, WhatAmI: cfg.WhatAmI(), Locators: t.Locators()})
	return t, nil
}

// Scout reports the sessions joined to the hub
func (d *Driver) Scout(ctx context.Context, cfg messaging.Config, cb messaging.Callback[contracts.Hello], logger *slog.Logger) (io.Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.hub.Scout(cb.Call), nil
}

// Transport is one session's view of the hub
type Transport struct {
	hub    *Hub
	zid    contracts.ZID
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	regs   []io.Closer
}

func (t *Transport) keep(c io.Closer) (io.Closer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = c.Close()
		return nil, messaging.ErrSessionClosed
	}
	t.regs = append(t.regs, c)
	return c, nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Publish implements messaging.Transport
func (t *Transport) Publish(ctx context.Context, env messaging.Envelope) error {
	if t.isClosed() {
		return messaging.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.hub.Publish(env)
	return nil
}

// Subscribe implements messaging.Transport
func (t *Transport) Subscribe(key string, handler func(messaging.Envelope)) (io.Closer, error) {
	return t.keep(t.hub.Subscribe(key, handler))
}

// Query implements messaging.Transport
func (t *Transport) Query(ctx context.Context, q messaging.OutboundQuery, h messaging.ReplyHandler) (io.Closer, error) {
	if t.isClosed() {
		return nil, messaging.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.hub.Query(q, h), nil
}

// Serve implements messaging.Transport
func (t *Transport) Serve(key string, handler func(messaging.InboundQuery)) (io.Closer, error) {
	return t.keep(t.hub.Serve(t.zid, key, handler))
}

// Locators implements messaging.Transport
func (t *Transport) Locators() []string {
	return []string{"inproc/" + t.zid.String()}
}

// Close leaves the hub and removes the remaining registrations
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	regs := t.regs
	t.regs = nil
	t.mu.Unlock()

	for _, r := range regs {
		_ = r.Close()
	}
	t.hub.Leave(t.zid)
	t.logger.Debug("left local hub")
	return nil
}

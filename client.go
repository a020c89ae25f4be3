// Copyright 2024 Nuze Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nuze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/nuze-go/config"
	"github.com/glimte/nuze-go/messaging"

	_ "github.com/glimte/nuze-go/transports/local"
	_ "github.com/glimte/nuze-go/transports/nats"
	_ "github.com/glimte/nuze-go/transports/rabbitmq"
)

// ErrClientClosed is returned by a closed client
var ErrClientClosed = errors.New("nuze: client closed")

// Client provides the main entry point for nuze-go. It opens the configured
// sessions on first use and keeps them until Close.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*messaging.Session
}

// NewClient creates a client loading the configuration from the default locations
func NewClient(options ...ClientOption) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewClientWithConfig(cfg, options...), nil
}

// NewClientWithConfig creates a client over an already loaded configuration
func NewClientWithConfig(cfg *config.Config, options ...ClientOption) *Client {
	c := &clientConfig{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return &Client{
		cfg:      cfg,
		logger:   c.logger,
		sessions: make(map[string]*messaging.Session),
	}
}

// Config returns the client configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Session returns the named session, opening it if needed. An empty name
// selects the default session.
func (c *Client) Session(ctx context.Context, name string) (*messaging.Session, error) {
	if name == "" {
		name = config.DefaultSession
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if s, ok := c.sessions[name]; ok {
		return s, nil
	}

	cfg, err := c.cfg.Session(name)
	if err != nil {
		return nil, err
	}
	s, err := messaging.Open(ctx, cfg, messaging.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open session %q: %w", name, err)
	}
	c.sessions[name] = s
	return s, nil
}

// WithSession opens the named session and runs fn with it
func (c *Client) WithSession(ctx context.Context, name string, fn func(*messaging.Session) error) error {
	s, err := c.Session(ctx, name)
	if err != nil {
		return err
	}
	return fn(s)
}

// Close closes every opened session
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for name, s := range c.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %q: %w", name, err))
		}
	}
	c.sessions = nil
	return errors.Join(errs...)
}

// clientConfig holds client configuration
type clientConfig struct {
	logger *slog.Logger
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all sessions
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

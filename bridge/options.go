package bridge

import (
	"io"
	"log/slog"
	"time"

	"github.com/glimte/nuze-go/interrupt"
)

// DefaultGranularity is the longest single wait between two cancellation checks
const DefaultGranularity = 50 * time.Millisecond

// Option configures a bridge or a correlator
type Option func(*options)

type options struct {
	granularity time.Duration
	signal      interrupt.Signal
	keepAlive   io.Closer
	logger      *slog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		granularity: DefaultGranularity,
		signal:      interrupt.Never(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithGranularity sets the poll granularity. Non-positive values are ignored.
func WithGranularity(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.granularity = d
		}
	}
}

// WithSignal sets the cancellation signal used by Collect and Aggregate
func WithSignal(s interrupt.Signal) Option {
	return func(o *options) {
		if s != nil {
			o.signal = s
		}
	}
}

// WithKeepAlive sets the resource a Correlator closes when its sequence ends
func WithKeepAlive(c io.Closer) Option {
	return func(o *options) {
		o.keepAlive = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// closeKeepAlive closes c if it is set and logs the failure
func closeKeepAlive(c io.Closer, logger *slog.Logger) error {
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to release bridge resource", "error", err)
		return err
	}
	return nil
}

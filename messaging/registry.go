package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/glimte/nuze-go/contracts"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name. It panics if the driver is
// nil or the name is taken.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("messaging: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("messaging: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns the registered driver names, sorted
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookup(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	return d, nil
}

// Open opens a session with the driver named by cfg.Transport
func Open(ctx context.Context, cfg Config, opts ...SessionOption) (*Session, error) {
	driver, err := lookup(cfg.Transport)
	if err != nil {
		return nil, opError("open", "", err)
	}

	s := newSession(cfg, opts)
	t, err := driver.Connect(ctx, s.zid, s.cfg, s.logger)
	if err != nil {
		return nil, opError("open", "", err)
	}
	s.transport = t

	s.logger.Info("session opened", "transport", cfg.Transport, "mode", string(s.cfg.Mode))
	return s, nil
}

// Scout reports the nodes reachable with cfg to cb until the returned handle
// is closed. Each node is reported once.
func Scout(ctx context.Context, cfg Config, cb Callback[contracts.Hello], logger *slog.Logger) (io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := lookup(cfg.Transport)
	if err != nil {
		return nil, opError("scout", "", err)
	}

	g := newGuard(cb)
	var mu sync.Mutex
	seen := make(map[contracts.ZID]struct{})
	dedup := Callback[contracts.Hello]{
		Call: func(h contracts.Hello) {
			mu.Lock()
			_, dup := seen[h.ZID]
			seen[h.ZID] = struct{}{}
			mu.Unlock()
			if !dup {
				g.call(h)
			}
		},
		Drop: g.drop,
	}

	reg, err := driver.Scout(ctx, cfg.WithDefaults(), dedup, logger)
	if err != nil {
		g.drop()
		return nil, opError("scout", "", err)
	}
	return &scout{reg: reg, guard: g}, nil
}

type scout struct {
	reg   io.Closer
	guard *guard[contracts.Hello]
	once  sync.Once
	err   error
}

func (s *scout) Close() error {
	s.once.Do(func() {
		s.err = s.reg.Close()
		s.guard.drop()
	})
	return s.err
}

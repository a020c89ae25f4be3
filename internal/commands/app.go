package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	nuze "github.com/glimte/nuze-go"
	"github.com/glimte/nuze-go/bridge"
	"github.com/glimte/nuze-go/config"
	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/internal/logging"
	"github.com/glimte/nuze-go/interrupt"
	"github.com/glimte/nuze-go/messaging"
	"github.com/glimte/nuze-go/serialization"
)

// App holds the state shared by the commands of one process
type App struct {
	configPath  string
	sessionName string
	inputFormat string
	format      string

	cfg      *config.Config
	client   *nuze.Client
	logs     *logging.Logs
	logDir   string
	logger   *slog.Logger
	signal   interrupt.Signal
	terminal *bool
}

// Option configures an App
type Option func(*App)

// WithConfig uses cfg instead of loading the configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.cfg = cfg
	}
}

// WithLogDir writes the process logs into dir
func WithLogDir(dir string) Option {
	return func(a *App) {
		a.logDir = dir
	}
}

// WithSignal adds a cancellation signal to the process interrupt
func WithSignal(s interrupt.Signal) Option {
	return func(a *App) {
		a.signal = s
	}
}

// WithTerminal overrides terminal detection of the output
func WithTerminal(terminal bool) Option {
	return func(a *App) {
		a.terminal = &terminal
	}
}

// New creates an App
func New(opts ...Option) *App {
	a := &App{signal: interrupt.Never()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line args and releases every resource
func (a *App) Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := a.Command()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close closes the opened sessions and the log files
func (a *App) Close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}

func (a *App) setup() error {
	if a.logs != nil {
		return nil
	}
	opts := logging.OptionsFromEnv()
	opts.Dir = a.logDir
	logs, err := logging.Setup(opts)
	if err != nil {
		return err
	}
	a.logs = logs
	a.logger = logs.Logger
	return nil
}

func (a *App) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	var opts []config.Option
	if a.configPath != "" {
		opts = append(opts, config.WithFile(a.configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *App) session(cmd *cobra.Command) (*messaging.Session, error) {
	if a.client == nil {
		cfg, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		a.client = nuze.NewClientWithConfig(cfg, nuze.WithLogger(a.logger))
	}
	return a.client.Session(cmd.Context(), a.sessionName)
}

// interruptSignal returns the signal streaming commands poll and a function
// releasing the signal handler
func (a *App) interruptSignal(cmd *cobra.Command) (interrupt.Signal, func()) {
	flag, stop := interrupt.Notify(cmd.Context())
	return interrupt.Any(flag, a.signal), stop
}

func (a *App) capacity() int {
	if a.cfg == nil {
		return config.DefaultCapacity
	}
	return a.cfg.Channel.Capacity
}

func (a *App) bridgeOptions(sig interrupt.Signal) []bridge.Option {
	granularity := config.DefaultGranularity
	if a.cfg != nil {
		granularity = a.cfg.Poll.Granularity
	}
	return []bridge.Option{
		bridge.WithGranularity(granularity),
		bridge.WithSignal(sig),
		bridge.WithLogger(a.logger),
	}
}

func (a *App) writer(cmd *cobra.Command) (*serialization.Writer, error) {
	format, err := serialization.ParseFormat(a.format)
	if err != nil {
		return nil, err
	}
	var opts []serialization.WriterOption
	if a.terminal != nil {
		opts = append(opts, serialization.WithTerminal(*a.terminal))
	}
	return serialization.NewWriter(cmd.OutOrStdout(), format, opts...), nil
}

func (a *App) reader(cmd *cobra.Command) (*serialization.LineReader, error) {
	format, err := serialization.ParseInputFormat(a.inputFormat)
	if err != nil {
		return nil, err
	}
	return serialization.NewLineReader(cmd.InOrStdin(), format, serialization.WithReaderLogger(a.logger)), nil
}

// writeScalar prints a plain line unless a structured format was asked for
func (a *App) writeScalar(cmd *cobra.Command, v string) error {
	format, err := serialization.ParseFormat(a.format)
	if err != nil {
		return err
	}
	if format == serialization.FormatAuto {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
		return err
	}
	w := serialization.NewWriter(cmd.OutOrStdout(), format)
	if err := w.Write(v); err != nil {
		return err
	}
	return w.Close()
}

func newChannel[T any](a *App) (*delivery.Sender[T], *delivery.Receiver[T]) {
	return delivery.New[T](a.capacity())
}

func deadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/glimte/nuze-go/messaging"
)

// DefaultSession is the session used when none is named
const DefaultSession = "default"

// EnvPrefix prefixes the environment variables read by Load
const EnvPrefix = "NUZE"

const (
	DefaultCapacity    = 256
	DefaultGranularity = 50 * time.Millisecond
)

var (
	ErrUnknownSession = errors.New("config: unknown session")
	ErrInvalid        = errors.New("config: invalid configuration")
)

// Scouting configures discovery rounds
type Scouting struct {
	Interval time.Duration `mapstructure:"interval" json:"interval" validate:"gte=0"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
}

// Session describes one named session
type Session struct {
	Transport    string        `mapstructure:"transport" json:"transport" validate:"required,oneof=local nats rabbitmq"`
	URL          string        `mapstructure:"url" json:"url" validate:"required_unless=Transport local"`
	Mode         string        `mapstructure:"mode" json:"mode" validate:"omitempty,oneof=peer client"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" json:"query_timeout" validate:"gte=0"`
	Scouting     Scouting      `mapstructure:"scouting" json:"scouting"`
}

// Messaging converts the session to the configuration messaging.Open takes
func (s Session) Messaging(name string) messaging.Config {
	return messaging.Config{
		Name:         name,
		Transport:    s.Transport,
		URL:          s.URL,
		Mode:         messaging.Mode(s.Mode),
		QueryTimeout: s.QueryTimeout,
		Scouting: messaging.ScoutingConfig{
			Interval: s.Scouting.Interval,
			Timeout:  s.Scouting.Timeout,
		},
	}.WithDefaults()
}

// Channel configures delivery channels
type Channel struct {
	Capacity int `mapstructure:"capacity" json:"capacity" validate:"gte=1"`
}

// Poll configures cancellation polling
type Poll struct {
	Granularity time.Duration `mapstructure:"granularity" json:"granularity" validate:"gt=0"`
}

// Config is the CLI configuration
type Config struct {
	Sessions map[string]Session `mapstructure:"sessions" json:"sessions" validate:"required,min=1,dive"`
	Channel  Channel            `mapstructure:"channel" json:"channel"`
	Poll     Poll               `mapstructure:"poll" json:"poll"`

	// File is the configuration file that was read, if any
	File string `mapstructure:"-" json:"-"`
}

// Session returns the messaging configuration of the named session
func (c *Config) Session(name string) (messaging.Config, error) {
	if name == "" {
		name = DefaultSession
	}
	s, ok := c.Sessions[name]
	if !ok {
		return messaging.Config{}, fmt.Errorf("%w: %q", ErrUnknownSession, name)
	}
	return s.Messaging(name), nil
}

// SessionNames returns the configured session names, sorted
func (c *Config) SessionNames() []string {
	names := make([]string, 0, len(c.Sessions))
	for name := range c.Sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Option configures Load
type Option func(*loader)

type loader struct {
	file   string
	search []string
}

// WithFile reads path instead of searching for a configuration file.
// A missing explicit file is an error.
func WithFile(path string) Option {
	return func(l *loader) {
		l.file = path
	}
}

// WithSearchPaths replaces the locations searched when no file is given
func WithSearchPaths(paths ...string) Option {
	return func(l *loader) {
		l.search = paths
	}
}

// SearchPaths returns the default configuration file locations
func SearchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "nuze", "config.yaml"))
	}
	return append(paths, "nuze.yaml")
}

// Load reads, merges and validates the configuration
func Load(opts ...Option) (*Config, error) {
	l := &loader{search: SearchPaths()}
	for _, opt := range opts {
		opt(l)
	}

	v := newViper()
	file := l.file
	if file == "" {
		file = l.find()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *loader) find() string {
	for _, p := range l.search {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	prefix := "sessions." + DefaultSession + "."
	v.SetDefault(prefix+"transport", "local")
	v.SetDefault(prefix+"url", "")
	v.SetDefault(prefix+"mode", string(messaging.ModePeer))
	v.SetDefault(prefix+"query_timeout", messaging.DefaultQueryTimeout)
	v.SetDefault(prefix+"scouting.interval", messaging.DefaultScoutInterval)
	v.SetDefault(prefix+"scouting.timeout", time.Duration(0))
	v.SetDefault("channel.capacity", DefaultCapacity)
	v.SetDefault("poll.granularity", DefaultGranularity)
	return v
}

// ParseSession decodes a single session from JSON, as given to scout
func ParseSession(data []byte) (Session, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("transport", "local")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Session{}, fmt.Errorf("config: parse session: %w", err)
	}
	var s Session
	if err := v.Unmarshal(&s); err != nil {
		return Session{}, fmt.Errorf("config: decode session: %w", err)
	}
	if err := validateStruct(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/messaging"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nuze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load(WithSearchPaths())
		require.NoError(t, err)

		assert.Empty(t, cfg.File)
		assert.Equal(t, []string{DefaultSession}, cfg.SessionNames())
		assert.Equal(t, DefaultCapacity, cfg.Channel.Capacity)
		assert.Equal(t, DefaultGranularity, cfg.Poll.Granularity)

		s, err := cfg.Session("")
		require.NoError(t, err)
		assert.Equal(t, "local", s.Transport)
		assert.Equal(t, messaging.ModePeer, s.Mode)
		assert.Equal(t, messaging.DefaultQueryTimeout, s.QueryTimeout)
	})

	t.Run("file sessions are merged with the default", func(t *testing.T) {
		path := writeFile(t, `
sessions:
  edge:
    transport: nats
    url: nats://localhost:4222
    mode: client
    query_timeout: 3s
    scouting:
      interval: 200ms
channel:
  capacity: 8
poll:
  granularity: 10ms
`)
		cfg, err := Load(WithFile(path))
		require.NoError(t, err)

		assert.Equal(t, path, cfg.File)
		assert.Equal(t, []string{"default", "edge"}, cfg.SessionNames())
		assert.Equal(t, 8, cfg.Channel.Capacity)
		assert.Equal(t, 10*time.Millisecond, cfg.Poll.Granularity)

		s, err := cfg.Session("edge")
		require.NoError(t, err)
		assert.Equal(t, messaging.Config{
			Name:         "edge",
			Transport:    "nats",
			URL:          "nats://localhost:4222",
			Mode:         messaging.ModeClient,
			QueryTimeout: 3 * time.Second,
			Scouting:     messaging.ScoutingConfig{Interval: 200 * time.Millisecond},
		}, s)
	})

	t.Run("search paths pick the first existing file", func(t *testing.T) {
		path := writeFile(t, "channel:\n  capacity: 4\n")
		cfg, err := Load(WithSearchPaths(filepath.Join(t.TempDir(), "missing.yaml"), path))
		require.NoError(t, err)
		assert.Equal(t, path, cfg.File)
		assert.Equal(t, 4, cfg.Channel.Capacity)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("NUZE_CHANNEL_CAPACITY", "16")
		path := writeFile(t, "channel:\n  capacity: 4\n")
		cfg, err := Load(WithFile(path))
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Channel.Capacity)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.Error(t, err)
	})

	t.Run("invalid transport", func(t *testing.T) {
		path := writeFile(t, "sessions:\n  bad:\n    transport: carrier-pigeon\n")
		_, err := Load(WithFile(path))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "sessions.bad.transport: must be one of: local, nats, rabbitmq")
	})

	t.Run("remote transport without url", func(t *testing.T) {
		path := writeFile(t, "sessions:\n  edge:\n    transport: rabbitmq\n")
		_, err := Load(WithFile(path))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "sessions.edge.url: is required")
	})

	t.Run("zero capacity", func(t *testing.T) {
		path := writeFile(t, "channel:\n  capacity: 0\n")
		_, err := Load(WithFile(path))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "channel.capacity: must be at least 1")
	})

	t.Run("bad mode", func(t *testing.T) {
		path := writeFile(t, "sessions:\n  default:\n    mode: router\n")
		_, err := Load(WithFile(path))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "mode: must be one of: peer, client")
	})
}

func TestSessionLookup(t *testing.T) {
	cfg, err := Load(WithSearchPaths())
	require.NoError(t, err)

	_, err = cfg.Session("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRecord(t *testing.T) {
	cfg, err := Load(WithSearchPaths())
	require.NoError(t, err)

	rec, err := cfg.Record(DefaultSession)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"session", "transport", "url", "mode", "query_timeout",
		"scouting_interval", "scouting_timeout", "channel_capacity", "poll_granularity", "file",
	}, rec.Keys())

	v, _ := rec.Get("transport")
	assert.Equal(t, "local", v)
	v, _ = rec.Get("file")
	assert.Equal(t, "(defaults)", v)

	_, err = cfg.Record("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestParseSession(t *testing.T) {
	t.Run("empty object is local", func(t *testing.T) {
		s, err := ParseSession([]byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, "local", s.Transport)
	})

	t.Run("nats with scouting", func(t *testing.T) {
		s, err := ParseSession([]byte(`{"transport":"nats","url":"nats://h:4222","scouting":{"interval":"250ms"}}`))
		require.NoError(t, err)
		assert.Equal(t, "nats://h:4222", s.URL)
		assert.Equal(t, 250*time.Millisecond, s.Scouting.Interval)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseSession([]byte(`{`))
		assert.Error(t, err)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := ParseSession([]byte(`{"transport":"nats"}`))
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "query_timeout", toSnakeCase("QueryTimeout"))
	assert.Equal(t, "url", toSnakeCase("url"))
}

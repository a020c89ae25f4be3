package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/config"
	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/internal/logging"
	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/interrupt"
	"github.com/glimte/nuze-go/messaging"
	_ "github.com/glimte/nuze-go/transports/local"
)

// syncBuffer is a bytes.Buffer safe for a command goroutine and the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.WithSearchPaths())
	require.NoError(t, err)
	cfg.Poll.Granularity = 10 * time.Millisecond
	s := cfg.Sessions[config.DefaultSession]
	s.QueryTimeout = 2 * time.Second
	cfg.Sessions[config.DefaultSession] = s
	return cfg
}

type run struct {
	out *syncBuffer
	err error
}

func execute(t *testing.T, stdin string, args []string, opts ...Option) run {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig(t)), WithLogDir(t.TempDir())}, opts...)
	out := &syncBuffer{}
	err := New(opts...).Execute(context.Background(), args, strings.NewReader(stdin), out, &syncBuffer{})
	return run{out: out, err: err}
}

// background runs a command until the returned function raises its signal
func background(t *testing.T, args []string) (*syncBuffer, func() error) {
	t.Helper()
	flag := interrupt.NewFlag()
	out := &syncBuffer{}
	done := make(chan error, 1)
	app := New(WithConfig(testConfig(t)), WithLogDir(t.TempDir()), WithSignal(flag))
	go func() {
		done <- app.Execute(context.Background(), args, strings.NewReader(""), out, &syncBuffer{})
	}()
	return out, func() error {
		flag.Set()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("command did not stop")
			return nil
		}
	}
}

func openSession(t *testing.T) *messaging.Session {
	t.Helper()
	s, err := messaging.Open(context.Background(), messaging.Config{Name: t.Name(), Transport: "local", QueryTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jsonLines(t *testing.T, out string) []any {
	t.Helper()
	var values []any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var v any
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
		values = append(values, v)
	}
	return values
}

func payloads(t *testing.T, batch any) []any {
	t.Helper()
	list, ok := batch.([]any)
	require.True(t, ok, "batch is %T", batch)
	out := make([]any, len(list))
	for i, rec := range list {
		out[i] = rec.(map[string]any)["payload"]
	}
	return out
}

func TestZID(t *testing.T) {
	r := execute(t, "", []string{"zid"})
	require.NoError(t, r.err)
	assert.Len(t, strings.TrimSpace(r.out.String()), 32)

	r = execute(t, "", []string{"zid", "--short"})
	require.NoError(t, r.err)
	assert.Len(t, strings.TrimSpace(r.out.String()), contracts.ShortZIDLength)

	r = execute(t, "", []string{"--format", "json", "zid", "--short"})
	require.NoError(t, r.err)
	assert.True(t, strings.HasPrefix(r.out.String(), `"`))
}

func TestUnknownSession(t *testing.T) {
	r := execute(t, "", []string{"-s", "missing", "zid"})
	assert.ErrorIs(t, r.err, config.ErrUnknownSession)
}

func TestConfigCommand(t *testing.T) {
	r := execute(t, "", []string{"--format", "json", "config"})
	require.NoError(t, r.err)

	values := jsonLines(t, r.out.String())
	require.Len(t, values, 1)
	rec := values[0].(map[string]any)
	assert.Equal(t, "default", rec["session"])
	assert.Equal(t, "local", rec["transport"])
	assert.Equal(t, "peer", rec["mode"])
	assert.Equal(t, float64(config.DefaultCapacity), rec["channel_capacity"])
}

func TestLogPath(t *testing.T) {
	dir := t.TempDir()
	out := &syncBuffer{}
	err := New(WithConfig(testConfig(t)), WithLogDir(dir)).Execute(context.Background(), []string{"log-path"}, strings.NewReader(""), out, out)
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(out.String()))
	assert.FileExists(t, filepath.Join(dir, logging.JSONFile))
}

func TestPub(t *testing.T) {
	s := openSession(t)
	received := make(chan string, 8)
	_, err := s.DeclareSubscriber("cmd/pub", messaging.Callback[contracts.Sample]{
		Call: func(smp contracts.Sample) { received <- string(smp.Payload) },
	}, messaging.SubscriberOptions{})
	require.NoError(t, err)

	r := execute(t, "a\nb\n\nc\n", []string{"pub", "cmd/pub", "--priority", "2"})
	require.NoError(t, r.err)

	var got []string
	for len(got) < 3 {
		select {
		case p := <-received:
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v", got)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPubRejectsNonStrings(t *testing.T) {
	r := execute(t, "\"a\"\n42\n", []string{"--input-format", "json", "pub", "cmd/pub-json"})
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "input item 2")
}

func TestPutFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"priority", []string{"put", "cmd/put", "v", "--priority", "9"}},
		{"congestion", []string{"put", "cmd/put", "v", "--congestion-control", "2"}},
		{"destination", []string{"put", "cmd/put", "v", "--allowed-destination", "mars"}},
		{"timestamp", []string{"put", "cmd/put", "v", "--timestamp", "nope"}},
		{"wildcard key", []string{"put", "cmd/*", "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, execute(t, "", tt.args).err)
		})
	}
}

func TestPutAndSub(t *testing.T) {
	s := openSession(t)
	out, stop := background(t, []string{"sub", "cmd/sub/**"})

	require.Eventually(t, func() bool {
		_ = s.Put(context.Background(), "cmd/sub/a", []byte("one"), messaging.PutOptions{})
		return strings.Contains(out.String(), `"one"`)
	}, 2*time.Second, 50*time.Millisecond)

	r := execute(t, "", []string{"put", "cmd/sub/b", "two", "--attachment", "meta"})
	require.NoError(t, r.err)
	r = execute(t, "", []string{"delete", "cmd/sub/b"})
	require.NoError(t, r.err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"kind":"delete"`)
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, stop())

	var kinds []any
	for _, v := range jsonLines(t, out.String()) {
		rec := v.(map[string]any)
		if rec["keyexpr"] == "cmd/sub/b" {
			kinds = append(kinds, rec["kind"])
			if rec["kind"] == "put" {
				assert.Equal(t, "two", rec["payload"])
				assert.Equal(t, "meta", rec["attachment"])
			}
		}
	}
	assert.Equal(t, []any{"put", "delete"}, kinds)
}

func TestSubTimeout(t *testing.T) {
	start := time.Now()
	r := execute(t, "", []string{"sub", "cmd/silent", "--timeout", "150ms"})
	require.NoError(t, r.err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, "[]", strings.TrimSpace(r.out.String()))
}

func declareEcho(t *testing.T, s *messaging.Session, key string) {
	t.Helper()
	_, err := s.DeclareQueryable(key, messaging.Callback[*contracts.Query]{
		Call: func(q *contracts.Query) {
			payload := string(q.Payload)
			if payload == "fail" {
				_ = q.ReplyErr(contracts.ReplyError{Payload: []byte("boom")})
				return
			}
			_ = q.Reply(contracts.NewSample(key, []byte(payload+"!")))
		},
	}, messaging.QueryableOptions{Complete: true})
	require.NoError(t, err)
}

func TestQuerier(t *testing.T) {
	s := openSession(t)
	declareEcho(t, s, "cmd/echo")

	r := execute(t, "\"a\"\n42\n\"fail\"\n\"b\"\n", []string{"--input-format", "json", "querier", "cmd/echo"})
	require.NoError(t, r.err)

	batches := jsonLines(t, r.out.String())
	require.Len(t, batches, 3)
	assert.Equal(t, []any{"a!"}, payloads(t, batches[0]))
	assert.Equal(t, "boom", batches[1].([]any)[0].(map[string]any)["error"])
	assert.Equal(t, []any{"b!"}, payloads(t, batches[2]))
}

func TestQuerierSkipsUndecodableLines(t *testing.T) {
	s := openSession(t)
	declareEcho(t, s, "cmd/echo-json")

	r := execute(t, "\"a\"\n{bad\n\"b\"\n", []string{"--input-format", "json", "querier", "cmd/echo-json"})
	require.NoError(t, r.err)

	batches := jsonLines(t, r.out.String())
	require.Len(t, batches, 2)
	assert.Equal(t, []any{"a!"}, payloads(t, batches[0]))
	assert.Equal(t, []any{"b!"}, payloads(t, batches[1]))
}

func TestQuerierWithoutQueryables(t *testing.T) {
	r := execute(t, "x\ny\n", []string{"querier", "cmd/nobody"})
	require.NoError(t, r.err)
	assert.Equal(t, []any{[]any{}, []any{}}, jsonLines(t, r.out.String()))
}

func TestGet(t *testing.T) {
	s := openSession(t)
	declareEcho(t, s, "cmd/get")

	r := execute(t, "", []string{"get", "cmd/get", "--payload", "ping", "--target", "all"})
	require.NoError(t, r.err)

	values := jsonLines(t, r.out.String())
	require.Len(t, values, 1)
	assert.Equal(t, []any{"ping!"}, payloads(t, values[0]))

	r = execute(t, "", []string{"get", "cmd/get", "--consolidation", "sometimes"})
	assert.Error(t, r.err)
}

func TestQueryable(t *testing.T) {
	s := openSession(t)
	out, stop := background(t, []string{"queryable", "cmd/qa", "--reply", "pong"})

	var replies []contracts.Reply
	require.Eventually(t, func() bool {
		tx, rx := delivery.New[contracts.Reply](8)
		if err := s.Get(context.Background(), "cmd/qa?x=1", messaging.ChannelCallback(tx), messaging.GetOptions{}); err != nil {
			return false
		}
		for {
			r, status := rx.RecvTimeout(time.Second)
			if status != delivery.Received {
				break
			}
			replies = append(replies, r)
		}
		return len(replies) > 0
	}, 3*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"cmd/qa?x=1"`)
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, stop())

	require.NotNil(t, replies[0].Sample)
	assert.Equal(t, "pong", string(replies[0].Sample.Payload))
	assert.Equal(t, "cmd/qa", replies[0].Sample.KeyExpr)

	values := jsonLines(t, out.String())
	require.NotEmpty(t, values)
	assert.Equal(t, "cmd/qa?x=1", values[0].(map[string]any)["selector"])
}

func TestLiveliness(t *testing.T) {
	s := openSession(t)
	_, stop := background(t, []string{"liveliness", "token", "cmd/alive"})

	require.Eventually(t, func() bool {
		r := execute(t, "", []string{"liveliness", "get", "cmd/**", "--timeout", "500ms"})
		return r.err == nil && strings.Contains(r.out.String(), `"cmd/alive"`)
	}, 3*time.Second, 50*time.Millisecond)

	gone := make(chan contracts.Sample, 1)
	_, err := s.Liveliness().DeclareSubscriber(context.Background(), "cmd/alive", messaging.Callback[contracts.Sample]{
		Call: func(smp contracts.Sample) {
			if smp.Kind == contracts.KindDelete {
				gone <- smp
			}
		},
	}, messaging.LivelinessSubscriberOptions{})
	require.NoError(t, err)

	require.NoError(t, stop())
	select {
	case smp := <-gone:
		assert.Equal(t, "cmd/alive", smp.KeyExpr)
	case <-time.After(2 * time.Second):
		t.Fatal("token was not withdrawn")
	}
}

func TestLivelinessSubHistory(t *testing.T) {
	s := openSession(t)
	token, err := s.Liveliness().DeclareToken(context.Background(), "cmd/history/one")
	require.NoError(t, err)
	defer token.Close()

	out, stop := background(t, []string{"liveliness", "sub", "cmd/history/**", "--history"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"cmd/history/one"`)
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, stop())
}

func TestScout(t *testing.T) {
	s := openSession(t)

	r := execute(t, "", []string{"scout", "--timeout", "100ms"})
	require.NoError(t, r.err)
	assert.Contains(t, r.out.String(), s.ZID().String())

	r = execute(t, "", []string{"scout", `{"transport":"local"}`, "--timeout", "100ms"})
	require.NoError(t, r.err)
	assert.Contains(t, r.out.String(), s.ZID().String())

	r = execute(t, "", []string{"scout", `{"transport":"nats"}`})
	assert.ErrorIs(t, r.err, config.ErrInvalid)
}

func TestDecodeScoutingMsg(t *testing.T) {
	hello, err := wire.EncodeHello(contracts.Hello{ZID: "a1b2", WhatAmI: contracts.Router, Locators: []string{"nats://h:4222"}})
	require.NoError(t, err)
	r := execute(t, string(hello), []string{"--format", "json", "decode", "scouting-msg"})
	require.NoError(t, r.err)
	values := jsonLines(t, r.out.String())
	require.Len(t, values, 1)
	rec := values[0].(map[string]any)
	assert.Equal(t, "hello", rec["type"])
	assert.Equal(t, "a1b2", rec["zid"])
	assert.Equal(t, "router", rec["whatami"])
	assert.Equal(t, []any{"nats://h:4222"}, rec["locators"])

	scout, err := wire.EncodeScout(wire.Scout{What: []contracts.WhatAmI{contracts.Peer}})
	require.NoError(t, err)
	r = execute(t, string(scout), []string{"--format", "json", "decode", "scouting-msg"})
	require.NoError(t, r.err)
	rec = jsonLines(t, r.out.String())[0].(map[string]any)
	assert.Equal(t, "scout", rec["type"])
	assert.Equal(t, "peer", rec["what"])
	assert.Nil(t, rec["zid"])

	r = execute(t, "\x00\x01", []string{"decode", "scouting-msg"})
	assert.ErrorIs(t, r.err, wire.ErrMalformed)
}

func TestTableOutput(t *testing.T) {
	r := execute(t, "", []string{"config"}, WithTerminal(true))
	require.NoError(t, r.err)
	assert.Contains(t, r.out.String(), "local")
	assert.False(t, strings.HasPrefix(r.out.String(), "{"))
}

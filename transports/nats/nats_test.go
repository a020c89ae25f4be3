package nats_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/reliability"
	"github.com/glimte/nuze-go/messaging"
	natstransport "github.com/glimte/nuze-go/transports/nats"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func open(t *testing.T, url string) *messaging.Session {
	t.Helper()
	s, err := messaging.Open(context.Background(), messaging.Config{
		Name:         t.Name(),
		Transport:    natstransport.Name,
		URL:          url,
		QueryTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type recorder[T any] struct {
	mu      sync.Mutex
	items   []T
	dropped chan struct{}
	once    sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{dropped: make(chan struct{})}
}

func (r *recorder[T]) callback() messaging.Callback[T] {
	return messaging.Callback[T]{
		Call: func(v T) {
			r.mu.Lock()
			r.items = append(r.items, v)
			r.mu.Unlock()
		},
		Drop: func() { r.once.Do(func() { close(r.dropped) }) },
	}
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func (r *recorder[T]) waitDropped(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-r.dropped:
	case <-time.After(within):
		t.Fatal("callback was not dropped")
	}
}

func TestPubSub(t *testing.T) {
	srv := runServer(t)
	pub := open(t, srv.ClientURL())
	sub := open(t, srv.ClientURL())

	r := newRecorder[contracts.Sample]()
	s, err := sub.DeclareSubscriber("demo/**", r.callback(), messaging.SubscriberOptions{})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	opts := messaging.PutOptions{PublisherOptions: messaging.PublisherOptions{
		Encoding:          "text/plain",
		Priority:          contracts.PriorityInteractiveHigh,
		CongestionControl: contracts.CongestionBlock,
	}}
	require.NoError(t, pub.Put(ctx, "demo", []byte("root"), opts))
	require.NoError(t, pub.Put(ctx, "demo/a/b", []byte("deep"), opts))
	require.NoError(t, pub.Put(ctx, "other/a", []byte("x"), opts))
	require.NoError(t, pub.Delete(ctx, "demo/a/b", opts))

	require.Eventually(t, func() bool { return len(r.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	got := r.snapshot()
	require.Len(t, got, 3)
	var deep []contracts.Sample
	for _, sample := range got {
		assert.Equal(t, "text/plain", sample.Encoding)
		assert.Equal(t, contracts.PriorityInteractiveHigh, sample.Priority)
		if sample.KeyExpr == "demo/a/b" {
			deep = append(deep, sample)
		}
	}
	require.Len(t, deep, 2)
	assert.Equal(t, "deep", string(deep[0].Payload))
	assert.Equal(t, contracts.KindDelete, deep[1].Kind)
}

func TestQueries(t *testing.T) {
	srv := runServer(t)
	client := open(t, srv.ClientURL())
	server := open(t, srv.ClientURL())
	ctx := context.Background()

	t.Run("no responders finalizes immediately", func(t *testing.T) {
		r := newRecorder[contracts.Reply]()
		start := time.Now()
		require.NoError(t, client.Get(ctx, "query/nobody", r.callback(), messaging.GetOptions{}))
		r.waitDropped(t, time.Second)
		assert.Empty(t, r.snapshot())
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("replies then finalization", func(t *testing.T) {
		qa, err := server.DeclareQueryable("query/basic/*", messaging.Callback[*contracts.Query]{
			Call: func(q *contracts.Query) {
				_ = q.Reply(contracts.NewSample("query/basic/a", []byte("1")))
				_ = q.ReplyErr(contracts.ReplyError{Payload: []byte("nope")})
			},
		}, messaging.QueryableOptions{})
		require.NoError(t, err)
		defer qa.Close()

		r := newRecorder[contracts.Reply]()
		start := time.Now()
		opts := messaging.GetOptions{QuerierOptions: messaging.QuerierOptions{Target: contracts.TargetAll, Consolidation: contracts.ConsolidationNone}}
		require.NoError(t, client.Get(ctx, "query/basic/a", r.callback(), opts))
		r.waitDropped(t, 3*time.Second)
		assert.Less(t, time.Since(start), time.Second)

		got := r.snapshot()
		require.Len(t, got, 2)
		assert.True(t, got[0].IsOK())
		assert.Equal(t, "1", string(got[0].Sample.Payload))
		assert.Equal(t, server.ZID(), got[0].ReplierID)
		assert.Equal(t, "nope", got[1].Err.Error())
	})

	t.Run("unrelated queryable does not hold the query", func(t *testing.T) {
		qa, err := server.DeclareQueryable("query/elsewhere", messaging.Callback[*contracts.Query]{
			Call: func(q *contracts.Query) {},
		}, messaging.QueryableOptions{})
		require.NoError(t, err)
		defer qa.Close()

		r := newRecorder[contracts.Reply]()
		start := time.Now()
		require.NoError(t, client.Get(ctx, "query/here", r.callback(), messaging.GetOptions{}))
		r.waitDropped(t, 3*time.Second)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestLiveliness(t *testing.T) {
	srv := runServer(t)
	owner := open(t, srv.ClientURL())
	watcher := open(t, srv.ClientURL())
	ctx := context.Background()

	token, err := owner.Liveliness().DeclareToken(ctx, "alive/node1")
	require.NoError(t, err)

	r := newRecorder[contracts.Reply]()
	require.NoError(t, watcher.Liveliness().Get(ctx, "alive/**", r.callback(), messaging.GetOptions{}))
	r.waitDropped(t, 3*time.Second)

	got := r.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "alive/node1", got[0].Sample.KeyExpr)

	require.NoError(t, token.Close())
}

func TestScout(t *testing.T) {
	srv := runServer(t)
	peer := open(t, srv.ClientURL())

	r := newRecorder[contracts.Hello]()
	scout, err := messaging.Scout(context.Background(), messaging.Config{
		Transport: natstransport.Name,
		URL:       srv.ClientURL(),
		Scouting:  messaging.ScoutingConfig{Interval: 50 * time.Millisecond},
	}, r.callback(), nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var router, found bool
		for _, h := range r.snapshot() {
			router = router || h.WhatAmI == contracts.Router
			found = found || h.ZID == peer.ZID()
		}
		return router && found
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, scout.Close())
	r.waitDropped(t, time.Second)
}

func TestConnectFailure(t *testing.T) {
	d := natstransport.NewDriver(natstransport.WithRetryPolicy(reliability.NoRetry))
	_, err := d.Connect(context.Background(), contracts.NewZID(), messaging.Config{URL: "nats://127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats: connect")
}

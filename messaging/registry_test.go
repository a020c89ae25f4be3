package messaging_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/messaging"
)

// MockDriver is a mock implementation of messaging.Driver
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Connect(ctx context.Context, zid contracts.ZID, cfg messaging.Config, logger *slog.Logger) (messaging.Transport, error) {
	args := m.Called(ctx, zid, cfg, logger)
	if t := args.Get(0); t != nil {
		return t.(messaging.Transport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Scout(ctx context.Context, cfg messaging.Config, cb messaging.Callback[contracts.Hello], logger *slog.Logger) (io.Closer, error) {
	args := m.Called(ctx, cfg, cb, logger)
	if c := args.Get(0); c != nil {
		return c.(io.Closer), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTransport is a mock implementation of messaging.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Publish(ctx context.Context, env messaging.Envelope) error {
	return m.Called(ctx, env).Error(0)
}

func (m *MockTransport) Subscribe(keyExpr string, handler func(messaging.Envelope)) (io.Closer, error) {
	args := m.Called(keyExpr, handler)
	return args.Get(0).(io.Closer), args.Error(1)
}

func (m *MockTransport) Query(ctx context.Context, q messaging.OutboundQuery, h messaging.ReplyHandler) (io.Closer, error) {
	args := m.Called(ctx, q, h)
	return args.Get(0).(io.Closer), args.Error(1)
}

func (m *MockTransport) Serve(keyExpr string, handler func(messaging.InboundQuery)) (io.Closer, error) {
	args := m.Called(keyExpr, handler)
	return args.Get(0).(io.Closer), args.Error(1)
}

func (m *MockTransport) Locators() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

// MockCloser is a mock io.Closer
type MockCloser struct {
	mock.Mock
}

func (m *MockCloser) Close() error {
	return m.Called().Error(0)
}

var mockDriver = &MockDriver{}

func init() {
	messaging.Register("mock", mockDriver)
}

func resetMockDriver(t *testing.T) {
	t.Helper()
	mockDriver.ExpectedCalls = nil
	mockDriver.Calls = nil
}

func TestRegister(t *testing.T) {
	assert.Contains(t, messaging.Drivers(), "mock")
	assert.Panics(t, func() { messaging.Register("mock", &MockDriver{}) })
	assert.Panics(t, func() { messaging.Register("nil-driver", nil) })
}

func TestOpenWithDriver(t *testing.T) {
	ctx := context.Background()

	t.Run("connect failure", func(t *testing.T) {
		resetMockDriver(t)
		connectErr := errors.New("refused")
		mockDriver.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, connectErr).Once()

		_, err := messaging.Open(ctx, messaging.Config{Name: "m", Transport: "mock"})
		assert.ErrorIs(t, err, connectErr)
		mockDriver.AssertExpectations(t)
	})

	t.Run("config defaults reach the driver", func(t *testing.T) {
		resetMockDriver(t)
		transport := &MockTransport{}
		transport.On("Close").Return(nil).Once()
		mockDriver.On("Connect", mock.Anything, mock.Anything, mock.MatchedBy(func(cfg messaging.Config) bool {
			return cfg.Mode == messaging.ModePeer && cfg.QueryTimeout == messaging.DefaultQueryTimeout
		}), mock.Anything).Return(transport, nil).Once()

		s, err := messaging.Open(ctx, messaging.Config{Name: "m", Transport: "mock"})
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		mockDriver.AssertExpectations(t)
		transport.AssertExpectations(t)
	})

	t.Run("publish failure is wrapped", func(t *testing.T) {
		resetMockDriver(t)
		transport := &MockTransport{}
		publishErr := errors.New("broker gone")
		transport.On("Publish", mock.Anything, mock.MatchedBy(func(env messaging.Envelope) bool {
			return env.Sample.KeyExpr == "mock/key" && string(env.Sample.Payload) == "v"
		})).Return(publishErr).Once()
		transport.On("Close").Return(nil)
		mockDriver.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(transport, nil).Once()

		s, err := messaging.Open(ctx, messaging.Config{Name: "m", Transport: "mock"})
		require.NoError(t, err)

		err = s.Put(ctx, "mock/key", []byte("v"), messaging.PutOptions{})
		assert.ErrorIs(t, err, publishErr)

		var sessErr *messaging.SessionError
		require.True(t, errors.As(err, &sessErr))
		assert.Equal(t, "put", sessErr.Op)
		assert.Equal(t, "mock/key", sessErr.KeyExpr)

		require.NoError(t, s.Close())
		transport.AssertExpectations(t)
	})

	t.Run("declarations are closed with the session", func(t *testing.T) {
		resetMockDriver(t)
		transport := &MockTransport{}
		reg := &MockCloser{}
		reg.On("Close").Return(nil).Once()
		transport.On("Subscribe", "mock/**", mock.Anything).Return(reg, nil).Once()
		transport.On("Close").Return(nil).Once()
		mockDriver.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(transport, nil).Once()

		s, err := messaging.Open(ctx, messaging.Config{Name: "m", Transport: "mock"})
		require.NoError(t, err)

		c := newCollector[contracts.Sample]()
		_, err = s.DeclareSubscriber("mock/**", c.callback(), messaging.SubscriberOptions{})
		require.NoError(t, err)

		require.NoError(t, s.Close())
		c.waitDropped(t)
		reg.AssertExpectations(t)
		transport.AssertExpectations(t)
	})
}

func TestScoutDeduplicates(t *testing.T) {
	resetMockDriver(t)
	reg := &MockCloser{}
	reg.On("Close").Return(nil).Once()

	hello := contracts.Hello{ZID: "aa", WhatAmI: contracts.Router}
	mockDriver.On("Scout", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			cb := args.Get(2).(messaging.Callback[contracts.Hello])
			cb.Call(hello)
			cb.Call(hello)
			cb.Call(contracts.Hello{ZID: "bb", WhatAmI: contracts.Peer})
		}).
		Return(reg, nil).Once()

	c := newCollector[contracts.Hello]()
	sc, err := messaging.Scout(context.Background(), messaging.Config{Transport: "mock"}, c.callback(), nil)
	require.NoError(t, err)

	got := c.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, contracts.ZID("aa"), got[0].ZID)
	assert.Equal(t, contracts.ZID("bb"), got[1].ZID)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	c.waitDropped(t)
	reg.AssertExpectations(t)
	mockDriver.AssertExpectations(t)
}

func TestScoutFailure(t *testing.T) {
	resetMockDriver(t)
	scoutErr := errors.New("no route")
	mockDriver.On("Scout", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, scoutErr).Once()

	c := newCollector[contracts.Hello]()
	_, err := messaging.Scout(context.Background(), messaging.Config{Transport: "mock"}, c.callback(), nil)
	assert.ErrorIs(t, err, scoutErr)
	c.waitDropped(t)
}

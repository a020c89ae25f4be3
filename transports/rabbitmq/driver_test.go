package rabbitmq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/internal/reliability"
	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/messaging"
)

func TestHeaderTables(t *testing.T) {
	h := wire.EncodeSample(contracts.NewSample("a/b", nil), "ab", contracts.LocalityRemote)
	table := toTable(h)
	assert.Equal(t, "a/b", table[wire.HeaderKeyExpr])

	table["x-foreign"] = int32(7)
	assert.Equal(t, h, fromTable(table))
}

func TestTopology(t *testing.T) {
	kinds := map[string]string{}
	for _, x := range topology().Exchanges {
		kinds[x.Name] = x.Type
	}
	assert.Equal(t, map[string]string{
		dataExchange:  amqp.ExchangeTopic,
		queryExchange: amqp.ExchangeFanout,
		scoutExchange: amqp.ExchangeFanout,
	}, kinds)
}

func TestRouterZID(t *testing.T) {
	a := routerZID("amqp://broker-a:5672/")
	_, err := contracts.ParseZID(string(a))
	require.NoError(t, err)
	assert.Equal(t, a, routerZID("amqp://broker-a:5672/"))
	assert.NotEqual(t, a, routerZID("amqp://broker-b:5672/"))
}

func TestConnectFailure(t *testing.T) {
	d := NewDriver(WithRetryPolicy(reliability.NoRetry))
	_, err := d.Connect(context.Background(), contracts.NewZID(), messaging.Config{URL: "amqp://127.0.0.1:1/"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq: connect")

	_, err = d.Scout(context.Background(), messaging.Config{URL: "amqp://127.0.0.1:1/"}, messaging.Callback[contracts.Hello]{}, nil)
	assert.Error(t, err)
}

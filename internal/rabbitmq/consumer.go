package rabbitmq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes incoming messages. Deliveries of one consumer
// are handled in order.
type MessageHandler func(delivery amqp.Delivery)

// Consumer consumes a queue on a dedicated channel with automatic
// acknowledgment. After a reconnection the queue is declared, bound and
// consumed again.
type Consumer struct {
	manager  *ConnectionManager
	queue    QueueDeclaration
	bindings []Binding
	handler  MessageHandler
	logger   *slog.Logger

	mu     sync.Mutex
	ch     *amqp.Channel
	name   string
	closed bool
}

// NewConsumer creates a consumer; Start begins consumption
func NewConsumer(manager *ConnectionManager, queue QueueDeclaration, bindings []Binding, handler MessageHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		manager:  manager,
		queue:    queue,
		bindings: bindings,
		handler:  handler,
		logger:   logger,
	}
}

// Start declares the queue and its bindings and starts consuming
func (c *Consumer) Start() error {
	if err := c.start(); err != nil {
		return err
	}
	c.manager.AddStateListener(c)
	return nil
}

func (c *Consumer) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConsumerClosed
	}

	conn, err := c.manager.GetConnection()
	if err != nil {
		return c.fail("open channel", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return c.fail("open channel", fmt.Errorf("%w: %v", ErrChannelCreationFailed, err))
	}

	q, err := declareQueue(ch, c.queue)
	if err != nil {
		_ = ch.Close()
		return c.fail("declare", err)
	}
	for _, b := range c.bindings {
		if b.Queue == "" {
			b.Queue = q.Name
		}
		if err := bindQueue(ch, b); err != nil {
			_ = ch.Close()
			return c.fail("bind", err)
		}
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return c.fail("consume", err)
	}

	c.ch = ch
	c.name = q.Name
	go func() {
		for d := range deliveries {
			c.handler(d)
		}
	}()

	c.logger.Debug("consuming queue", "queue", q.Name, "bindings", len(c.bindings))
	return nil
}

func (c *Consumer) fail(op string, err error) error {
	return &ConsumerError{Queue: c.queue.Name, Op: op, Err: err, Timestamp: time.Now()}
}

// Queue returns the name of the consumed queue
func (c *Consumer) Queue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Close stops consumption; exclusive or auto-delete queues go away with it
func (c *Consumer) Close() error {
	c.manager.RemoveStateListener(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ch == nil {
		return nil
	}
	if c.queue.Exclusive || c.queue.AutoDelete {
		_, _ = c.ch.QueueDelete(c.name, false, false, false)
	}
	err := c.ch.Close()
	c.ch = nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// OnConnected restarts consumption on the new connection
func (c *Consumer) OnConnected() {
	if err := c.start(); err != nil && !errors.Is(err, ErrConsumerClosed) {
		c.logger.Error("failed to restart consumer", "queue", c.queue.Name, "error", err)
	}
}

// OnDisconnected implements ConnectionStateListener
func (c *Consumer) OnDisconnected(err error) {
	c.logger.Warn("consumer disconnected", "queue", c.Queue(), "error", err)
}

// OnReconnecting implements ConnectionStateListener
func (c *Consumer) OnReconnecting(int) {}

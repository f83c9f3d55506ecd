package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second
	maxBackoff    = 30 * time.Second
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("rabbitmq not connected")

// Connection wraps an AMQP connection with a dedicated publishing channel
// and reconnects in the background when the broker drops it.
type Connection struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu          sync.RWMutex
	conn        *amqp.Connection
	pubChannel  *amqp.Channel
	isConnected bool
	notifyClose chan *amqp.Error
	done        chan struct{}
	closeOnce   sync.Once
}

// NewConnection dials the broker, declares the exchange and starts the
// reconnect loop.
func NewConnection(url, exchange string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:      url,
		exchange: exchange,
		logger:   logger,
		done:     make(chan struct{}),
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = c.connect(); err != nil {
			logger.Warn("rabbitmq_connect_retry",
				slog.Int("attempt", i+1),
				slog.Int("max_attempts", maxRetries),
				slog.Any("error", err),
			)
			time.Sleep(retryInterval)
			continue
		}
		logger.Info("rabbitmq_connected", slog.String("exchange", exchange))
		go c.reconnectLoop()
		return c, nil
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxRetries, err)
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open publisher channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}

	c.conn = conn
	c.pubChannel = ch
	c.isConnected = true
	c.notifyClose = make(chan *amqp.Error, 1)
	c.conn.NotifyClose(c.notifyClose)
	return nil
}

func (c *Connection) reconnectLoop() {
	for {
		c.mu.RLock()
		notify := c.notifyClose
		c.mu.RUnlock()

		select {
		case <-c.done:
			return
		case amqpErr, ok := <-notify:
			if !ok || amqpErr == nil {
				// Closed on purpose.
				return
			}
			c.logger.Error("rabbitmq_disconnected", slog.Any("error", amqpErr))

			c.mu.Lock()
			c.isConnected = false
			c.mu.Unlock()

			backoff := time.Second
			for {
				select {
				case <-c.done:
					return
				case <-time.After(backoff):
				}

				if err := c.connect(); err != nil {
					c.logger.Warn("rabbitmq_reconnect_failed", slog.Duration("backoff", backoff), slog.Any("error", err))
					backoff = min(time.Duration(float64(backoff)*1.5), maxBackoff)
					continue
				}
				c.logger.Info("rabbitmq_reconnected")
				break
			}
		}
	}
}

// Publish sends a persistent JSON message to the exchange. It is safe for
// concurrent use.
func (c *Connection) Publish(ctx context.Context, routingKey string, body []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isConnected {
		return ErrNotConnected
	}

	return c.pubChannel.PublishWithContext(ctx, c.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Close shuts down the reconnect loop and the connection.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return nil
	}
	c.isConnected = false
	_ = c.pubChannel.Close()
	return c.conn.Close()
}

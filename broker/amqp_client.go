package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishConfirmWait = 150 * time.Millisecond

// AMQPClient implements Client against a topic exchange, mirroring the
// teacher's rabbitmq Publisher: publisher confirms enabled, mandatory
// delivery so an unroutable message surfaces as a NotifyReturn instead of
// silently vanishing, and lazy reconnect on a dead connection/channel.
// topic (spec's Kafka-shaped naming) maps to the AMQP routing key
// published against a single topic exchange, so Tier 1 ("t1") and Tier 2
// ("t1.dlq") bind and route distinctly — the teacher's own "city.events"
// exchange generalized to an exchange name the caller configures. The
// caller's partition/ordering key (event id, or the outbox row's
// aggregate id) has no AMQP routing equivalent, so it travels as the
// "x-partition-key" header instead of displacing the routing key.
type AMQPClient struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

// NewAMQPClient dials url and declares exchange as a durable topic
// exchange, enabling publisher confirms before returning.
func NewAMQPClient(url, exchange string) (*AMQPClient, error) {
	if url == "" {
		return nil, errors.New("broker: amqp url must not be empty")
	}
	if exchange == "" {
		return nil, errors.New("broker: exchange must not be empty")
	}
	c := &AMQPClient{url: url, exchange: exchange}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AMQPClient) connectLocked() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("broker: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("broker: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("broker: declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("broker: enable confirms: %w", err)
	}

	c.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	c.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))
	c.conn = conn
	c.ch = ch
	return nil
}

func (c *AMQPClient) Publish(ctx context.Context, topic, key string, value []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.conn == nil || c.conn.IsClosed() {
		c.closeLocked()
		if err := c.connectLocked(); err != nil {
			return fmt.Errorf("broker: reconnect: %w", err)
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         value,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-partition-key": key},
	}

	// The routing key is topic itself, not the caller's partition key —
	// Tier 1 ("t1") and Tier 2 ("t1.dlq") must route to distinct bindings
	// on the shared topic exchange so a consumer can tell main-topic
	// traffic from DLQ traffic apart (§4.6's separate-topic model). The
	// partition/ordering key travels as a header instead, since AMQP's
	// topic exchange has no notion of a Kafka-style partition key
	// alongside the routing key that selects the binding.
	if err := c.ch.PublishWithContext(ctx, c.exchange, topic, true, false, pub); err != nil {
		return fmt.Errorf("broker: publish: %w", err)
	}

	timer := time.NewTimer(publishConfirmWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ret := <-c.returnCh:
			return fmt.Errorf("broker: message returned: %d %s", ret.ReplyCode, ret.ReplyText)
		case conf := <-c.confirmCh:
			if !conf.Ack {
				return errors.New("broker: publish not acknowledged")
			}
			return nil
		case <-timer.C:
			// No return and no confirm within the window: the teacher
			// treats this as best-effort success rather than stalling the
			// business flow on confirm timing.
			return nil
		}
	}
}

func (c *AMQPClient) DescribeCluster(ctx context.Context) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return "", 0, errors.New("broker: not connected")
	}
	return c.conn.LocalAddr().String(), 1, nil
}

func (c *AMQPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *AMQPClient) closeLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

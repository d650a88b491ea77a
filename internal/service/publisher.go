package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a domain event to a named queue.  Callers log failures
// and carry on; events never decide the outcome of a request.
type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// AMQPPublisher publishes persistent JSON messages to durable queues on the
// default exchange.  The connection is opened lazily and reopened after a
// failure.  mu only guards the cached state; no network call runs under it.
type AMQPPublisher struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	declared map[string]bool
}

// defaultDialTimeout bounds the broker handshake when ctx has no deadline.
const defaultDialTimeout = 3 * time.Second

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{url: url, declared: map[string]bool{}}
}

func (p *AMQPPublisher) Publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		p.drop(conn)
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	if !p.isDeclared(conn, queue) {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "declare %s", queue)
		}
		p.markDeclared(conn, queue)
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", queue)
}

// connection returns the cached connection or dials a new one, bounded by
// the deadline of ctx.
func (p *AMQPPublisher) connection(ctx context.Context) (*amqp.Connection, error) {
	p.mu.Lock()
	if p.conn != nil && !p.conn.IsClosed() {
		conn := p.conn
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}
	timeout := defaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, errors.Wrap(context.DeadlineExceeded, "dial broker")
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		// another publisher connected first
		_ = conn.Close()
		return p.conn, nil
	}
	p.conn = conn
	p.declared = map[string]bool{}
	return conn, nil
}

func (p *AMQPPublisher) drop(conn *amqp.Connection) {
	_ = conn.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.conn = nil
	}
}

func (p *AMQPPublisher) isDeclared(conn *amqp.Connection, queue string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn == conn && p.declared[queue]
}

func (p *AMQPPublisher) markDeclared(conn *amqp.Connection, queue string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.declared[queue] = true
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer drains both event queues and appends one line per event to a
// file under Dir: outbox.log for OTP mail, replies.log for recorded
// replies.
type Consumer struct {
	URL string
	Dir string
	Log zerolog.Logger
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the connection drops.  It
// returns nil once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.Log.With().Str("component", "consumer").Logger()
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set qos failed")
	}
	deliveries := make(chan amqp.Delivery)
	// stops the forwarders of this connection when consume returns
	done := make(chan struct{})
	defer close(done)
	for _, q := range []string{ReplyRecordedQueue, OTPMailQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "declare %s", q)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return errors.Wrapf(err, "consume %s", q)
		}
		go forward(done, msgs, deliveries)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return errors.Errorf("connection closed: %v", amqpErr)
		case d := <-deliveries:
			if err := HandleDelivery(c.Dir, d.RoutingKey, d.Body); err != nil {
				log.Error().Err(err).Str("queue", d.RoutingKey).Msg("handle message failed")
				_ = d.Nack(false, false) // do not requeue poison messages
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func forward(done <-chan struct{}, in <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for d := range in {
		select {
		case out <- d:
		case <-done:
			return
		}
	}
}

// HandleDelivery formats one event and appends it to its log file.
func HandleDelivery(dir, queue string, body []byte) error {
	var (
		line string
		file string
	)
	switch queue {
	case ReplyRecordedQueue:
		var ev ReplyRecordedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal reply event")
		}
		file = "replies.log"
		line = fmt.Sprintf("[%s] Reply recorded | conversation_id=%d | user_id=%d | message_id=%d | model=%q | latency_ms=%d\n",
			ev.RecordedAt.UTC().Format(time.RFC3339), ev.ConversationID, ev.UserID, ev.MessageID, ev.Model, ev.LatencyMS)
	case OTPMailQueue:
		var ev OTPMailEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal otp event")
		}
		file = "outbox.log"
		line = fmt.Sprintf("[%s] Login code | to=%s | code=%s | expires_at=%s\n",
			time.Now().UTC().Format(time.RFC3339), ev.Email, ev.Code, ev.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		return errors.Errorf("unknown queue %q", queue)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir logs")
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "write log")
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDeliveryReply(t *testing.T) {
	dir := t.TempDir()
	body, err := json.Marshal(ReplyRecordedEvent{
		ConversationID: 3, UserID: 7, MessageID: 11, Model: "llama3.2:3b", LatencyMS: 120,
		RecordedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, HandleDelivery(dir, ReplyRecordedQueue, body))
	require.NoError(t, HandleDelivery(dir, ReplyRecordedQueue, body))

	data, err := os.ReadFile(filepath.Join(dir, "replies.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[2026-01-01T10:00:00Z] Reply recorded | conversation_id=3 | user_id=7 | message_id=11")
	assert.Equal(t, 2, countLines(data))
}

func TestHandleDeliveryOTP(t *testing.T) {
	dir := t.TempDir()
	body, err := json.Marshal(OTPMailEvent{Email: "a@example.com", Code: "123456", ExpiresAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, HandleDelivery(dir, OTPMailQueue, body))
	data, err := os.ReadFile(filepath.Join(dir, "outbox.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to=a@example.com | code=123456")
}

func TestHandleDeliveryRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, HandleDelivery(dir, OTPMailQueue, []byte("{")))
	assert.Error(t, HandleDelivery(dir, "other", []byte("{}")))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestForwardStopsWhenConsumeReturns(t *testing.T) {
	in := make(chan amqp.Delivery, 1)
	out := make(chan amqp.Delivery) // nobody receives
	done := make(chan struct{})
	in <- amqp.Delivery{RoutingKey: OTPMailQueue}

	exited := make(chan struct{})
	go func() {
		forward(done, in, out)
		close(exited)
	}()
	close(done)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("forward still blocked on send after done closed")
	}
}

package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ollama-chat-backend/internal/queue"
)

// silentBroker accepts TCP connections and never speaks AMQP.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestAMQPPublishHonorsDeadline(t *testing.T) {
	pub := NewAMQPPublisher(silentBroker(t))
	defer pub.Close()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	start := time.Now()
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			errs[i] = pub.Publish(ctx, queue.ReplyRecordedQueue, queue.ReplyRecordedEvent{ConversationID: 1})
		}(i)
	}
	wg.Wait()

	// concurrent publishes do not queue behind one another's handshake
	assert.Less(t, time.Since(start), 2*time.Second)
	for _, err := range errs {
		assert.Error(t, err)
	}
}

func TestAMQPPublishExpiredContext(t *testing.T) {
	pub := NewAMQPPublisher(silentBroker(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Publish(ctx, queue.OTPMailQueue, queue.OTPMailEvent{Email: "a@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

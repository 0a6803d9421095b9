package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	imgtest "github.com/arloliu/imgpool/testing"
	"github.com/arloliu/imgpool/types"
)

func TestDialFailure(t *testing.T) {
	_, err := Dial("nats://127.0.0.1:1", DialOptions{ConnectTimeout: 200 * time.Millisecond})
	require.ErrorIs(t, err, ErrConnect)
}

func TestWrapNil(t *testing.T) {
	_, err := Wrap(nil, nil)
	require.ErrorIs(t, err, ErrNilConn)
}

func TestQueueGroupDeliversOnce(t *testing.T) {
	ns, nc := imgtest.StartEmbeddedNATS(t)

	const members, messages = 3, 30
	var received atomic.Int64

	for range members {
		c, err := Wrap(imgtest.Connect(t, ns), imgtest.NewTestLogger(t))
		require.NoError(t, err)
		_, err = c.Subscribe("img_gen", "workers", func(*nats.Msg) {
			received.Add(1)
		})
		require.NoError(t, err)
	}

	for range messages {
		require.NoError(t, nc.Publish("img_gen", []byte("{}")))
	}
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool { return received.Load() == messages }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(messages), received.Load(), "each message goes to exactly one member")
}

func TestPublishWithHeaders(t *testing.T) {
	ns, nc := imgtest.StartEmbeddedNATS(t)
	c, err := Wrap(imgtest.Connect(t, ns), nil)
	require.NoError(t, err)

	sub, err := nc.SubscribeSync("_INBOX.test")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	hdr := nats.Header{}
	hdr.Set("success", "true")
	require.NoError(t, c.Publish("_INBOX.test", []byte("payload"), hdr))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "payload", string(msg.Data))
	require.Equal(t, "true", msg.Header.Get("success"))

	require.ErrorIs(t, c.Publish("", nil, nil), ErrNoAddress)
}

func TestUnsubscribeHandlesBufferedMessages(t *testing.T) {
	ns, nc := imgtest.StartEmbeddedNATS(t)
	c, err := Wrap(imgtest.Connect(t, ns), nil)
	require.NoError(t, err)

	gate := make(chan struct{})
	var handled atomic.Int64
	sub, err := c.Subscribe("img_gen", "workers", func(*nats.Msg) {
		<-gate
		handled.Add(1)
	})
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, nc.Publish("img_gen", []byte("{}")))
	}
	require.NoError(t, nc.Flush())
	// Let the messages reach the client-side buffer.
	time.Sleep(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Unsubscribe(context.Background(), sub) }()

	select {
	case <-done:
		t.Fatal("Unsubscribe returned while messages were still buffered")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)

	// Interest is gone: a new publish is not delivered.
	require.NoError(t, nc.Publish("img_gen", []byte("{}")))
	require.NoError(t, nc.Flush())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(5), handled.Load())
}

func TestUnsubscribeTimeout(t *testing.T) {
	ns, nc := imgtest.StartEmbeddedNATS(t)
	c, err := Wrap(imgtest.Connect(t, ns), nil)
	require.NoError(t, err)

	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	started := make(chan struct{}, 1)
	sub, err := c.Subscribe("img_gen", "workers", func(*nats.Msg) {
		started <- struct{}{}
		<-gate
	})
	require.NoError(t, err)

	require.NoError(t, nc.Publish("img_gen", []byte("{}")))
	require.NoError(t, nc.Publish("img_gen", []byte("{}")))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Unsubscribe(ctx, sub), types.ErrDrainTimeout)
}

func TestDrainClosesConnection(t *testing.T) {
	ns, _ := imgtest.StartEmbeddedNATS(t)
	conn := imgtest.Connect(t, ns)
	c, err := Wrap(conn, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	got := 0
	_, err = c.Subscribe("img_gen", "workers", func(*nats.Msg) {
		mu.Lock()
		got++
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
	require.True(t, conn.IsClosed())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after Drain")
	}

	require.NoError(t, c.Drain(ctx), "draining a closed connection is a no-op")
}

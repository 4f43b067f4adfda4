package wsconn

import (
	"context"
	"testing"
	"time"

	"github.com/fleetsignal/wsconn/internal/config"
	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/transport/transporttest"
)

func testClientConfig() *config.ClientConfig {
	return &config.ClientConfig{
		MaxRetries: 5, InitialRetryDelay: 10 * time.Millisecond, MaxRetryDelay: 100 * time.Millisecond,
		RetryBackoffBase: 2.0, ConnectTimeout: time.Second, DisconnectTimeout: time.Second,
		StabilityTimeout: 50 * time.Millisecond, MaxPingInterval: time.Second, MaxPongDelay: time.Second,
		RateLimitWindow: time.Second, MaxMessagesPerWindow: 10, MaxBytesPerMessage: 65536,
		MaxQueueSize: 10, MaxBufferSize: 1 << 20, LogLevel: "info",
	}
}

func waitForState(t *testing.T, c *Client, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().State.String() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, c.Snapshot().State.String())
}

func TestClient_ConnectAndSendReachesConnected(t *testing.T) {
	dialer := &transporttest.FakeDialer{}
	c := New(testClientConfig(), dialer)

	if err := c.Connect("wss://example.test/ws", nil, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, c, "connected")

	if err := c.Send("", []byte("hello"), queue.Normal); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	waitForState(t, c, "terminated")
}

func TestClient_DialFailureReconnects(t *testing.T) {
	dialer := &transporttest.FakeDialer{FailNext: transporttest.ErrDialFailed}
	c := New(testClientConfig(), dialer)

	if err := c.Connect("wss://example.test/ws", nil, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, c, "reconnecting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}

func TestClient_EventsChannelDeliversTransitions(t *testing.T) {
	dialer := &transporttest.FakeDialer{}
	c := New(testClientConfig(), dialer)

	if err := c.Connect("wss://example.test/ws", nil, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.After(2 * time.Second)
	sawTransition := false
	for !sawTransition {
		select {
		case ev := <-c.Events():
			if ev.Kind == "transitioned" {
				sawTransition = true
			}
		case <-deadline:
			t.Fatal("never observed a transitioned event")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}

package guards

import (
	"testing"
	"time"

	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/ratelimit"
)

func TestHasValidURL(t *testing.T) {
	cases := map[string]bool{
		"wss://example.com/socket": true,
		"ws://example.com":         true,
		"http://example.com":       false,
		"":                         false,
		"not a url":                false,
	}
	for raw, want := range cases {
		if got := HasValidURL(raw); got != want {
			t.Errorf("HasValidURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestCanConnect(t *testing.T) {
	if !CanConnect(model.Disconnected, "wss://x/y") {
		t.Error("expected CONNECT admissible from disconnected")
	}
	if !CanConnect(model.Reconnecting, "wss://x/y") {
		t.Error("expected CONNECT admissible from reconnecting")
	}
	if CanConnect(model.Connected, "wss://x/y") {
		t.Error("expected CONNECT rejected from connected")
	}
	if CanConnect(model.Disconnected, "http://x/y") {
		t.Error("expected CONNECT rejected for invalid scheme")
	}
}

func TestCanRetry(t *testing.T) {
	lim := Limits{MaxRetries: 5}
	c := model.Context{Metrics: model.Metrics{ReconnectAttempts: 4}}
	if !CanRetry(c, lim) {
		t.Error("expected retry allowed below limit")
	}
	c.Metrics.ReconnectAttempts = 5
	if CanRetry(c, lim) {
		t.Error("expected retry denied at limit")
	}
}

func TestCanSend(t *testing.T) {
	lim := Limits{MaxBytesPerMessage: 1024}
	c := model.Context{State: model.Connected}
	if !CanSend(c, lim, 10) {
		t.Error("expected send allowed when connected and under cap")
	}
	if CanSend(c, lim, 2048) {
		t.Error("expected send denied over byte cap")
	}
	c.State = model.Connecting
	if CanSend(c, lim, 10) {
		t.Error("expected send denied unless connected")
	}
	c.State = model.Connected
	c.RateWindow = &ratelimit.Window{Count: 3, Limit: 3}
	if CanSend(c, lim, 10) {
		t.Error("expected send denied when rate window exhausted")
	}
}

func TestCanQueue(t *testing.T) {
	q := queue.New(2)
	c := model.Context{Queue: q}
	if !CanQueue(c, queue.Normal) {
		t.Error("expected room in an empty queue")
	}
	q.Push(queue.NewMessage("a", nil, queue.Normal, time.Now(), nil))
	q.Push(queue.NewMessage("b", nil, queue.Normal, time.Now(), nil))
	if CanQueue(c, queue.Normal) {
		t.Error("normal priority should not evict an equal-priority lane once full")
	}
	if !CanQueue(c, queue.High) {
		t.Error("expected high priority admissible by evicting a normal head")
	}
}

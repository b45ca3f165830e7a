package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBroadcaster(t *testing.T) *RedisBroadcaster {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBroadcaster(rdb)
}

func TestChannelNames(t *testing.T) {
	if got := SessionChannel(" abc "); got != "match:abc" {
		t.Fatalf("SessionChannel = %q", got)
	}
	if got := UserChannel("alice"); got != "user:alice" {
		t.Fatalf("UserChannel = %q", got)
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBroadcaster(t)
	ctx := context.Background()

	sub := b.Subscribe(ctx, SessionChannel("g1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirm: %v", err)
	}

	ev := Event{
		Type:      EventMoveApplied,
		SessionID: "g1",
		At:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Move:      &MovePayload{UCI: "e2e4", SAN: "e4", Turn: "black", MoveCount: 1, Color: "white"},
		Clock:     &ClockPayload{WhiteMs: 298000, BlackMs: 300000, Running: "black"},
	}
	if err := b.Publish(ctx, SessionChannel("g1"), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != EventMoveApplied || got.SessionID != "g1" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if got.Move == nil || got.Move.UCI != "e2e4" {
			t.Fatalf("move payload lost: %+v", got.Move)
		}
		if got.Clock == nil || got.Clock.WhiteMs != 298000 {
			t.Fatalf("clock payload lost: %+v", got.Clock)
		}
		if got.Request != nil || got.Finish != nil {
			t.Fatalf("irrelevant payloads must stay empty: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event never arrived")
	}
}

func TestSubscribeMultipleChannels(t *testing.T) {
	b := newTestBroadcaster(t)
	ctx := context.Background()

	sub := b.Subscribe(ctx, SessionChannel("g1"), UserChannel("bob"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirm: %v", err)
	}
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirm: %v", err)
	}

	if err := b.Publish(ctx, UserChannel("bob"), Event{Type: EventDrawOffered, SessionID: "g1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "user:bob" {
			t.Fatalf("channel = %q, want user:bob", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("user channel event never arrived")
	}
}

func TestNilBroadcasterPublish(t *testing.T) {
	var b *RedisBroadcaster
	if err := b.Publish(context.Background(), "c", Event{}); err != nil {
		t.Fatalf("nil broadcaster should no-op, got %v", err)
	}
}

func TestEventJSONOmitsEmptyPayloads(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventClockSync, SessionID: "g1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, field := range []string{"move", "request", "state", "finish"} {
		if strings.Contains(s, fmt.Sprintf("%q:", field)) {
			t.Fatalf("empty payload %s serialized: %s", field, s)
		}
	}
}

package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func expectEvent(t *testing.T, ch chan Event, typ string) Event {
	t.Helper()
	select {
	case got := <-ch:
		if got.Type != typ {
			t.Fatalf("got type %s, want %s", got.Type, typ)
		}
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", typ)
	}
	return Event{}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	other := b.Subscribe("t2")

	b.Publish("t1", Event{Type: EventBatchGroup, Data: map[string]any{"x": 1}})
	got := expectEvent(t, ch, EventBatchGroup)
	if got.Data.(map[string]any)["x"].(int) != 1 {
		t.Fatalf("bad payload: %+v", got.Data)
	}
	select {
	case e := <-other:
		t.Fatalf("tenant isolation broken: %+v", e)
	default:
	}

	b.Unsubscribe("t1", ch)
	b.Unsubscribe("t1", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish("t1", Event{Type: EventBatchGroup})
}

func TestRedisBrokerFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := NewRedisBroker(rdb)
	pub := NewRedisBroker(rdb)
	ch := sub.Subscribe("t1")
	pub.Publish("t1", Event{Type: EventBatchCompleted, Data: map[string]any{"batchId": "b1"}})

	got := expectEvent(t, ch, EventBatchCompleted)
	if got.Data.(map[string]any)["batchId"] != "b1" {
		t.Fatalf("bad payload: %+v", got.Data)
	}
	sub.Unsubscribe("t1", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

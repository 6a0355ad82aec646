package api

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API
// instance sees batches started on any other.
type RedisBroker struct {
    rdb *redis.Client
    mu  sync.Mutex
    ps  map[chan Event]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
    return &RedisBroker{rdb: rdb, ps: map[chan Event]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(tenantID string) chan Event {
    ch := make(chan Event, 32)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, channelName(tenantID))
    // wait for the subscription confirmation so no publish is missed
    if _, err := ps.Receive(ctx); err != nil { log.Printf("op=broker.subscribe tenant=%s err=%v", tenantID, err) }
    b.mu.Lock()
    b.ps[ch] = ps
    b.mu.Unlock()
    go func() {
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil { continue }
            b.mu.Lock()
            if _, ok := b.ps[ch]; ok {
                select { case ch <- evt: default: }
            }
            b.mu.Unlock()
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(_ string, ch chan Event) {
    b.mu.Lock()
    ps, ok := b.ps[ch]
    if ok {
        delete(b.ps, ch)
        close(ch)
    }
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(tenantID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil { return }
    if err := b.rdb.Publish(ctx, channelName(tenantID), data).Err(); err != nil {
        log.Printf("op=broker.publish tenant=%s err=%v", tenantID, err)
    }
}

func channelName(tenantID string) string { return "batch:" + tenantID }

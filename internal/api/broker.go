package api

import (
    "sync"
)

// Event is a batch progress message streamed to tenant subscribers.
type Event struct {
    Type string `json:"type"`
    Data any    `json:"data"`
}

const (
    EventBatchGroup     = "batch.group"
    EventBatchCompleted = "batch.completed"
)

// EventBroker fans events out to subscribers of one tenant.
type EventBroker interface {
    Subscribe(tenantID string) chan Event
    Unsubscribe(tenantID string, ch chan Event)
    Publish(tenantID string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers miss events rather
// than block publishers.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // tenantId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(tenantID string) chan Event {
    ch := make(chan Event, 32)
    b.mu.Lock()
    if b.subs[tenantID] == nil { b.subs[tenantID] = map[chan Event]struct{}{} }
    b.subs[tenantID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(tenantID string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[tenantID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, tenantID) }
    close(ch)
}

func (b *Broker) Publish(tenantID string, evt Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[tenantID] {
        select { case ch <- evt: default: }
    }
}

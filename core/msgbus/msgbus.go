package msgbus

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MESSAGE BUS - in-process pub/sub with exact-topic and prefix-wildcard routing
// ═══════════════════════════════════════════════════════════════════════════════

// Handler receives a published message. It must not panic; the bus does
// not recover from handler panics — the publisher is responsible for
// isolating a faulty handler (the event loop does this by design; see
// backtest.Engine).
type Handler func(message any)

// Subscription is the handle returned by Subscribe, usable to Unsubscribe.
type Subscription struct {
	Topic   string
	SubID   string
	handler Handler
}

// Bus is the central message bus for order/position/data event
// distribution. Subscriptions ending in ".*" are prefix wildcards; all
// others are exact-topic matches.
type Bus struct {
	mu     sync.RWMutex
	exact  map[string][]*Subscription
	prefix map[string][]*Subscription
	// prefixOrder preserves registration order across prefixes, since Go
	// map iteration order is randomized and spec requires deterministic
	// dispatch (testable property #10).
	prefixOrder []string
	sentCount   int64
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		exact:  make(map[string][]*Subscription),
		prefix: make(map[string][]*Subscription),
	}
}

// Subscribe registers handler against topic. A topic ending in ".*" is
// stripped to its prefix and matched against any published topic that
// starts with it.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	sub := &Subscription{Topic: topic, SubID: uuid.NewString(), handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.HasSuffix(topic, ".*") {
		p := strings.TrimSuffix(topic, ".*")
		if _, ok := b.prefix[p]; !ok {
			b.prefixOrder = append(b.prefixOrder, p)
		}
		b.prefix[p] = append(b.prefix[p], sub)
	} else {
		b.exact[topic] = append(b.exact[topic], sub)
	}
	return sub
}

// Unsubscribe removes a single subscription by handle.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.HasSuffix(sub.Topic, ".*") {
		p := strings.TrimSuffix(sub.Topic, ".*")
		b.prefix[p] = removeSub(b.prefix[p], sub.SubID)
	} else {
		b.exact[sub.Topic] = removeSub(b.exact[sub.Topic], sub.SubID)
	}
}

func removeSub(subs []*Subscription, subID string) []*Subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.SubID != subID {
			out = append(out, s)
		}
	}
	return out
}

// UnsubscribeTopic removes every subscription registered for topic.
func (b *Bus) UnsubscribeTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.HasSuffix(topic, ".*") {
		p := strings.TrimSuffix(topic, ".*")
		delete(b.prefix, p)
	} else {
		delete(b.exact, topic)
	}
}

// Publish delivers message to every handler subscribed to topic.
//
// Dispatch order: all exact-match handlers first (in subscription
// order), then for each registered prefix whose topic has that prefix,
// its handlers (in subscription order); prefixes are visited in
// registration order. Handlers are called against a snapshot of the
// subscriber lists so subscribing/unsubscribing during dispatch is safe.
func (b *Bus) Publish(topic string, message any) {
	b.mu.RLock()
	exactSubs := append([]*Subscription(nil), b.exact[topic]...)
	type prefixMatch struct {
		subs []*Subscription
	}
	var matches []prefixMatch
	for _, p := range b.prefixOrder {
		if strings.HasPrefix(topic, p) {
			matches = append(matches, prefixMatch{subs: append([]*Subscription(nil), b.prefix[p]...)})
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.sentCount++
	b.mu.Unlock()

	for _, sub := range exactSubs {
		sub.handler(message)
	}
	for _, m := range matches {
		for _, sub := range m.subs {
			sub.handler(message)
		}
	}
}

// HasSubscribers reports whether topic would currently reach any handler.
func (b *Bus) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.exact[topic]) > 0 {
		return true
	}
	for _, p := range b.prefixOrder {
		if strings.HasPrefix(topic, p) && len(b.prefix[p]) > 0 {
			return true
		}
	}
	return false
}

// SentCount returns the number of Publish calls made so far.
func (b *Bus) SentCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sentCount
}

// Reset clears all subscriptions and counters.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = make(map[string][]*Subscription)
	b.prefix = make(map[string][]*Subscription)
	b.prefixOrder = nil
	b.sentCount = 0
}

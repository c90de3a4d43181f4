package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/dxtrade-go/model"
)

// SubscriptionFilter scopes a subscription. Symbols applies to market-data
// subscriptions; AccountID overrides the connection's default account.
type SubscriptionFilter struct {
	Symbols   []string
	AccountID string
}

// Subscription is one registered interest. ID doubles as the wire
// requestId, so replays after reconnect repeat the original request
// exactly.
type Subscription struct {
	ID        string
	Type      model.EventType
	Filter    SubscriptionFilter
	Active    bool
	CreatedAt time.Time
}

// Registry tracks active subscriptions for one connection. Its contents
// survive reconnects and drive replay; a removed subscription cannot be
// resurrected by a later replay.
type Registry struct {
	mu    sync.Mutex
	subs  map[string]Subscription
	order []string
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

// Add registers a subscription and returns it with a fresh id.
func (r *Registry) Add(eventType model.EventType, filter SubscriptionFilter) Subscription {
	sub := Subscription{
		ID:        uuid.NewString(),
		Type:      eventType,
		Filter:    filter,
		Active:    true,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.order = append(r.order, sub.ID)
	r.mu.Unlock()
	return sub
}

// Remove purges a subscription. The second return is false when the id is
// unknown.
func (r *Registry) Remove(id string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return Subscription{}, false
	}
	delete(r.subs, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return sub, true
}

// Get looks up a subscription by id.
func (r *Registry) Get(id string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// Active returns the active subscriptions in registration order.
func (r *Registry) Active() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscription, 0, len(r.order))
	for _, id := range r.order {
		if sub, ok := r.subs[id]; ok && sub.Active {
			out = append(out, sub)
		}
	}
	return out
}

// Len reports the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

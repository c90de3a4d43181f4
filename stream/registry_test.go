package stream

import (
	"testing"

	"github.com/rickgao/dxtrade-go/model"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("fresh registry len = %d, want 0", r.Len())
	}

	sub := r.Add(model.EventTypePrice, SubscriptionFilter{Symbols: []string{"EUR/USD"}})
	if sub.ID == "" {
		t.Fatal("Add() returned empty id")
	}
	if !sub.Active {
		t.Error("new subscription not active")
	}
	got, ok := r.Get(sub.ID)
	if !ok || got.Type != model.EventTypePrice {
		t.Errorf("Get() = %+v, %v; want the price subscription", got, ok)
	}

	removed, ok := r.Remove(sub.ID)
	if !ok || removed.ID != sub.ID {
		t.Errorf("Remove() = %+v, %v", removed, ok)
	}
	if _, ok := r.Remove(sub.ID); ok {
		t.Error("second Remove() reported success")
	}
	if r.Len() != 0 {
		t.Errorf("len after remove = %d, want 0", r.Len())
	}
}

func TestRegistry_ActiveOrder(t *testing.T) {
	r := NewRegistry()
	a := r.Add(model.EventTypePrice, SubscriptionFilter{Symbols: []string{"EUR/USD"}})
	b := r.Add(model.EventTypeOrder, SubscriptionFilter{AccountID: "acc-1"})
	c := r.Add(model.EventTypePrice, SubscriptionFilter{Symbols: []string{"GBP/USD"}})

	active := r.Active()
	if len(active) != 3 {
		t.Fatalf("Active() len = %d, want 3", len(active))
	}
	for i, want := range []string{a.ID, b.ID, c.ID} {
		if active[i].ID != want {
			t.Errorf("Active()[%d].ID = %s, want %s (registration order)", i, active[i].ID, want)
		}
	}

	// A removed subscription must not reappear in replay.
	r.Remove(b.ID)
	active = r.Active()
	if len(active) != 2 {
		t.Fatalf("Active() len after remove = %d, want 2", len(active))
	}
	for _, sub := range active {
		if sub.ID == b.ID {
			t.Error("removed subscription still listed as active")
		}
	}
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sub := r.Add(model.EventTypePrice, SubscriptionFilter{})
		if seen[sub.ID] {
			t.Fatalf("duplicate subscription id %s", sub.ID)
		}
		seen[sub.ID] = true
	}
}

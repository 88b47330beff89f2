package fleetws

import (
	"sort"
	"sync"
)

// SubscriptionRegistry holds the caller's desired set of vehicle ids. Every
// Replace supersedes the previous set, it never merges with it.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	desired map[string]struct{}
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{desired: make(map[string]struct{})}
}

// Replace swaps the whole desired set for ids. Duplicates and empty ids are
// dropped.
func (r *SubscriptionRegistry) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		next[id] = struct{}{}
	}

	r.mu.Lock()
	r.desired = next
	r.mu.Unlock()
}

func (r *SubscriptionRegistry) Clear() {
	r.Replace(nil)
}

// Desired returns a sorted copy of the desired set.
func (r *SubscriptionRegistry) Desired() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.desired))
	for id := range r.desired {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.desired)
}

package discover

import (
	"sort"
	"sync"
)

// Registry is the concurrently-mutated set of discovered storefront hosts.
// Merges only ever grow the set; a crawl can never remove a previously
// discovered host.
type Registry struct {
	mu    sync.Mutex
	hosts map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]struct{})}
}

// Add records a host (normalized, case-insensitive) and reports whether it
// was new.
func (r *Registry) Add(host string) bool {
	key := NormalizeHost(host)
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[key]; ok {
		return false
	}
	r.hosts[key] = struct{}{}
	return true
}

// Merge unions previously known hosts into the registry.
func (r *Registry) Merge(hosts []string) {
	for _, h := range hosts {
		r.Add(h)
	}
}

// Hosts returns the sorted, deduplicated host list.
func (r *Registry) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.hosts))
	for h := range r.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}

// Package connectivity tracks the device's view of network reachability and
// notifies subscribers on transition edges. Consumers must tolerate missed
// edges: a successful remote call is proof of being online, a failed one is
// only a hint of being offline.
package connectivity

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Monitor observes online/offline transitions. Callbacks fire at most once
// per transition edge.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(initiallyOnline bool) *Monitor {
	return &Monitor{
		online: initiallyOnline,
		subs:   make(map[int]func(bool)),
	}
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a callback fired on every transition edge and returns an
// unsubscribe handle.
func (m *Monitor) OnChange(cb func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Set records the observed state and, on an edge, notifies subscribers.
// Callbacks run outside the lock so subscribers may re-enter the monitor.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	cbs := make([]func(bool), 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(online)
	}
}

// NoteSuccess records an implicit "online" confirmation from a successful
// remote call.
func (m *Monitor) NoteSuccess() {
	m.Set(true)
}

// NoteFailure records a hint of offline status from a failed remote call.
// Callers should only report transport-level failures, not rejections.
func (m *Monitor) NoteFailure() {
	m.Set(false)
}

// Probe polls the given URL with HEAD requests until ctx is done, feeding
// observed reachability into the monitor.
func (m *Monitor) Probe(ctx context.Context, url string, interval time.Duration) {
	client := &http.Client{Timeout: 3 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.probeOnce(ctx, client, url)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context, client *http.Client, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		log.Printf("connectivity: build probe request failed: %v", err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		m.Set(false)
		return
	}
	resp.Body.Close()
	m.Set(true)
}

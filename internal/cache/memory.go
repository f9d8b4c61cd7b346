package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ryanuber/go-glob"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend keeps entries in a map. Reads expire lazily and an optional
// sweeper drops dead entries in the background. Not shared between processes.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	clock clockwork.Clock

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewMemoryBackend starts a sweeper when sweepInterval > 0.
func NewMemoryBackend(clock clockwork.Clock, sweepInterval time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		items: make(map[string]memoryEntry),
		clock: clock,
		stop:  make(chan struct{}),
	}

	if sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop(sweepInterval)
	}
	return m
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := m.clock.Now()

	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expired(now) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *MemoryBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	now := m.clock.Now()

	m.mu.RLock()
	keys := make([]string, 0)
	for k, e := range m.items {
		if e.expired(now) {
			continue
		}
		if glob.Glob(pattern, k) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Len counts stored entries, including expired ones the sweeper has not reached yet.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Sweep drops every expired entry and returns how many were removed.
func (m *MemoryBackend) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
			removed++
		}
	}
	return removed
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
	return nil
}

func (m *MemoryBackend) sweepLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.Chan():
			m.Sweep()
		}
	}
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// defaultMaxSize bounds the in-memory cache when no size is configured.
const defaultMaxSize = 10000

// Stats are simple counters for cache behavior, exposed for diagnostics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// Memory is a process-local Cache. Entries are lost on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	maxSize int
	now     func() time.Time

	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an in-memory cache holding at most maxSize entries.
// A non-positive maxSize selects the default.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Set stores value under key until ttl elapses.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictLocked(now)
	}

	m.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	atomic.AddInt64(&m.sets, 1)
	return nil
}

// Get returns the value for key, or ErrNotFound if absent or expired.
// Expired entries are removed on read.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return "", ErrNotFound
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		atomic.AddInt64(&m.misses, 1)
		return "", ErrNotFound
	}

	atomic.AddInt64(&m.hits, 1)
	return entry.value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		delete(m.entries, key)
		atomic.AddInt64(&m.deletes, 1)
	}
	return nil
}

// Incr increments the integer stored under key.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		if !ok && len(m.entries) >= m.maxSize {
			m.evictLocked(now)
		}
		entry = memoryEntry{value: "0", expiresAt: now.Add(ttl)}
	}

	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: value under %q is not an integer", key)
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	m.entries[key] = entry
	atomic.AddInt64(&m.sets, 1)
	return n, nil
}

// evictLocked drops expired entries. When none have expired it drops the
// entry closest to expiry, which is the least useful one left. Caller
// holds m.mu.
func (m *Memory) evictLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			atomic.AddInt64(&m.evictions, 1)
		}
	}
	if len(m.entries) < m.maxSize {
		return
	}

	var (
		victim   string
		earliest time.Time
		found    bool
	)
	for k, e := range m.entries {
		if !found || e.expiresAt.Before(earliest) {
			victim, earliest, found = k, e.expiresAt, true
		}
	}
	delete(m.entries, victim)
	atomic.AddInt64(&m.evictions, 1)
}

// Len returns the number of stored entries, including not-yet-purged
// expired ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns a snapshot of the cache counters.
func (m *Memory) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&m.hits),
		Misses:    atomic.LoadInt64(&m.misses),
		Sets:      atomic.LoadInt64(&m.sets),
		Deletes:   atomic.LoadInt64(&m.deletes),
		Evictions: atomic.LoadInt64(&m.evictions),
		Size:      m.Len(),
	}
}

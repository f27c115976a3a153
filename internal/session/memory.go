// ABOUTME: In-memory session store for tests and local development
// ABOUTME: Honors TTL and history bounds and supports failure injection

package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte // nil while only history exists
	history   [][]byte
	expiresAt time.Time
}

// MemoryStore implements Store in process memory. Records are stored
// encoded so decoding rules match the persistent backends.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*memoryEntry
	opts  Options

	// Now is the clock used for expiry; tests may replace it.
	Now func() time.Time

	// Err, when set, fails every operation with ErrStorageUnavailable.
	Err error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*memoryEntry),
		opts:  opts.withDefaults(),
		Now:   time.Now,
	}
}

// SetErr injects (or clears, with nil) a backend failure.
func (m *MemoryStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// live returns the user's entry, dropping it if expired. Caller holds mu.
func (m *MemoryStore) live(userID string) *memoryEntry {
	e, ok := m.users[userID]
	if !ok {
		return nil
	}
	if !m.Now().Before(e.expiresAt) {
		delete(m.users, userID)
		return nil
	}
	return e
}

func (m *MemoryStore) failure(op string) error {
	if m.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, m.Err)
	}
	return nil
}

// Get returns the decoded session or nil.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("get session"); err != nil {
		return nil, err
	}

	e := m.live(userID)
	if e == nil || e.data == nil {
		return nil, nil
	}
	return Decode(e.data)
}

// Put overwrites the session and refreshes the shared expiry.
func (m *MemoryStore) Put(ctx context.Context, userID string, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("put session"); err != nil {
		return err
	}

	now := m.Now()
	data, err := Encode(&Session{State: sess.State, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	e := m.live(userID)
	if e == nil {
		e = &memoryEntry{}
		m.users[userID] = e
	}
	e.data = data
	e.expiresAt = now.Add(m.opts.TTL)
	return nil
}

// PutRaw stores an already-encoded record; used to exercise decode failures.
func (m *MemoryStore) PutRaw(userID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(userID)
	if e == nil {
		e = &memoryEntry{}
		m.users[userID] = e
	}
	e.data = data
	e.expiresAt = m.Now().Add(m.opts.TTL)
}

// AppendHistory pushes newest-first and trims.
func (m *MemoryStore) AppendHistory(ctx context.Context, userID string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("append history"); err != nil {
		return err
	}

	now := m.Now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	e := m.live(userID)
	if e == nil {
		e = &memoryEntry{}
		m.users[userID] = e
	}
	e.history = append([][]byte{data}, e.history...)
	if len(e.history) > m.opts.HistoryLimit {
		e.history = e.history[:m.opts.HistoryLimit]
	}
	e.expiresAt = now.Add(m.opts.TTL)
	return nil
}

// GetHistory returns up to limit entries, newest first.
func (m *MemoryStore) GetHistory(ctx context.Context, userID string, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("get history"); err != nil {
		return nil, err
	}

	limit = m.opts.clampLimit(limit)
	entries := []Entry{}
	e := m.live(userID)
	if e == nil {
		return entries, nil
	}
	for _, raw := range e.history {
		if len(entries) == limit {
			break
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes everything for the user.
func (m *MemoryStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("clear"); err != nil {
		return err
	}
	delete(m.users, userID)
	return nil
}

// CountActive counts live sessions with state.
func (m *MemoryStore) CountActive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("count sessions"); err != nil {
		return 0, err
	}

	n := 0
	for id := range m.users {
		if e := m.live(id); e != nil && e.data != nil {
			n++
		}
	}
	return n, nil
}

// Ping reports the injected failure, if any.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure("ping")
}

var _ Store = (*MemoryStore)(nil)

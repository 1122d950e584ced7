package storage

import "sync"

// MemoryStore is an in-memory Interface implementation for tests and the
// paper-trading mode. Save and Load are no-ops.
type MemoryStore struct {
	mu   sync.RWMutex
	data *storeData
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newStoreData()}
}

// Save is a no-op for the in-memory store.
func (s *MemoryStore) Save() error { return nil }

// Load is a no-op for the in-memory store.
func (s *MemoryStore) Load() error { return nil }

// Get returns the string value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Strings[key]
	return v, ok
}

// Set stores a string value.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Strings[key] = value
	return nil
}

// Delete removes key from every namespace.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Strings, key)
	delete(s.data.Hashes, key)
	delete(s.data.Lists, key)
	delete(s.data.Counters, key)
	return nil
}

// Incr increments a counter and returns the new value.
func (s *MemoryStore) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Counters[key]++
	return s.data.Counters[key], nil
}

// HSet merges fields into the hash at key.
func (s *MemoryStore) HSet(key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.data.Hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.data.Hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

// HGetAll returns a copy of the hash at key.
func (s *MemoryStore) HGetAll(key string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.data.Hashes[key]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(h))
	for f, v := range h {
		out[f] = v
	}
	return out, true
}

// LPush prepends values to the list at key.
func (s *MemoryStore) LPush(key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lists[key] = append(append([]string{}, reverse(values)...), s.data.Lists[key]...)
	return nil
}

// RPush appends values to the list at key.
func (s *MemoryStore) RPush(key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lists[key] = append(s.data.Lists[key], values...)
	return nil
}

// RPop removes and returns the last element of the list at key.
func (s *MemoryStore) RPop(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.data.Lists[key]
	if len(l) == 0 {
		return "", false
	}
	v := l[len(l)-1]
	s.data.Lists[key] = l[:len(l)-1]
	return v, true
}

// LRange returns elements [start, stop] of the list at key.
func (s *MemoryStore) LRange(key string, start, stop int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.data.Lists[key], start, stop)
}

// LRem removes all occurrences of value from the list at key.
func (s *MemoryStore) LRem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.data.Lists[key]
	out := l[:0]
	for _, v := range l {
		if v != value {
			out = append(out, v)
		}
	}
	s.data.Lists[key] = out
	return nil
}

// LLen returns the length of the list at key.
func (s *MemoryStore) LLen(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Lists[key])
}

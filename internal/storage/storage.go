package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// storeData is the on-disk shape of the whole store.
type storeData struct {
	Strings     map[string]string            `json:"strings"`
	Hashes      map[string]map[string]string `json:"hashes"`
	Lists       map[string][]string          `json:"lists"`
	Counters    map[string]int64             `json:"counters"`
	LastUpdated time.Time                    `json:"last_updated"`
}

func newStoreData() *storeData {
	return &storeData{
		Strings:  make(map[string]string),
		Hashes:   make(map[string]map[string]string),
		Lists:    make(map[string][]string),
		Counters: make(map[string]int64),
	}
}

// JSONStore is a file-backed key-value store. Every mutation is persisted
// with a write-to-temp-then-rename so a crash never leaves a torn file.
type JSONStore struct {
	mu       sync.RWMutex
	filepath string
	data     *storeData
}

// NewJSONStore opens (or creates) a JSON-backed store at filepath.
func NewJSONStore(filepath string) (*JSONStore, error) {
	s := &JSONStore{
		filepath: filepath,
		data:     newStoreData(),
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the store contents from disk.
func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	data := newStoreData()
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	// Guard against hand-edited files missing sections
	if data.Strings == nil {
		data.Strings = make(map[string]string)
	}
	if data.Hashes == nil {
		data.Hashes = make(map[string]map[string]string)
	}
	if data.Lists == nil {
		data.Lists = make(map[string][]string)
	}
	if data.Counters == nil {
		data.Counters = make(map[string]int64)
	}
	s.data = data
	return nil
}

// Save writes the store contents to disk atomically.
func (s *JSONStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStore) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// Get returns the string value for key.
func (s *JSONStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Strings[key]
	return v, ok
}

// Set stores a string value and persists.
func (s *JSONStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Strings[key] = value
	return s.saveLocked()
}

// Delete removes key from every namespace.
func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Strings, key)
	delete(s.data.Hashes, key)
	delete(s.data.Lists, key)
	delete(s.data.Counters, key)
	return s.saveLocked()
}

// Incr increments a counter and returns the new value.
func (s *JSONStore) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Counters[key]++
	v := s.data.Counters[key]
	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	return v, nil
}

// HSet merges fields into the hash at key.
func (s *JSONStore) HSet(key string, fields map[string]string) error {
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
	return s.saveLocked()
}

// HGetAll returns a copy of the hash at key.
func (s *JSONStore) HGetAll(key string) (map[string]string, bool) {
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
func (s *JSONStore) LPush(key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lists[key] = append(append([]string{}, reverse(values)...), s.data.Lists[key]...)
	return s.saveLocked()
}

// RPush appends values to the list at key.
func (s *JSONStore) RPush(key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lists[key] = append(s.data.Lists[key], values...)
	return s.saveLocked()
}

// RPop removes and returns the last element of the list at key.
func (s *JSONStore) RPop(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.data.Lists[key]
	if len(l) == 0 {
		return "", false
	}
	v := l[len(l)-1]
	s.data.Lists[key] = l[:len(l)-1]
	if err := s.saveLocked(); err != nil {
		// The pop already happened in memory; report it anyway.
		return v, true
	}
	return v, true
}

// LRange returns elements [start, stop] of the list at key.
// Negative indices count from the end, -1 being the last element.
func (s *JSONStore) LRange(key string, start, stop int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.data.Lists[key], start, stop)
}

// LRem removes all occurrences of value from the list at key.
func (s *JSONStore) LRem(key, value string) error {
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
	return s.saveLocked()
}

// LLen returns the length of the list at key.
func (s *JSONStore) LLen(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Lists[key])
}

func reverse(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func listRange(l []string, start, stop int) []string {
	n := len(l)
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out
}

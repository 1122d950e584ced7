// Package storage provides the key-value persistence layer used by the
// trade queue, the position lifecycle manager, and the dashboard.
package storage

// Interface defines the contract for durable key-value persistence with
// hash, list, and counter semantics.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe. The provided JSONStore implementation uses
// sync.RWMutex to serialize access for concurrent readers and writers.
type Interface interface {
	// Plain string values
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Incr(key string) (int64, error)

	// Hashes (field -> value maps)
	HSet(key string, fields map[string]string) error
	HGetAll(key string) (map[string]string, bool)

	// Ordered lists
	LPush(key string, values ...string) error
	RPush(key string, values ...string) error
	RPop(key string) (string, bool)
	LRange(key string, start, stop int) []string
	LRem(key, value string) error
	LLen(key string) int

	// Durability
	Save() error
	Load() error
}

// NewStorage creates the default storage implementation (JSON file backed).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStore(filepath)
}

// Ensure implementations satisfy Interface.
var (
	_ Interface = (*JSONStore)(nil)
	_ Interface = (*MemoryStore)(nil)
)

// Package queue implements the durable trade queue the daemon consumes:
// trade requests land on a list, their parameters in per-trade hashes, and
// entry/exit criteria on side lists, all over the KV storage layer.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/storage"
)

// Trade statuses written back for the submitter to poll.
const (
	StatusPlaced   = "placed"
	StatusDeferred = "deferred"
	StatusFailed   = "fail"
)

// Queue is a named trade queue. Multiple producers may push; the daemon is
// the single consumer.
type Queue struct {
	store storage.Interface
	name  string

	mu    sync.Mutex
	stage []string
}

// New creates a queue handle over the given store.
func New(store storage.Interface, name string) *Queue {
	return &Queue{store: store, name: name}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) dataKey(id string) string { return q.name + ":" + id }

// Len returns the number of queued trade identifiers.
func (q *Queue) Len() int { return q.store.LLen(q.name) }

// All returns every queued identifier, newest first.
func (q *Queue) All() []string { return q.store.LRange(q.name, 0, -1) }

// SetData stores a trade's parameters. Criteria travel on their own lists,
// so any criteria keys in the map are dropped here.
func (q *Queue) SetData(id string, data map[string]string) error {
	clean := make(map[string]string, len(data))
	for k, v := range data {
		if k == "open_criteria" || k == "close_criteria" {
			continue
		}
		clean[k] = v
	}
	if err := q.store.HSet(q.dataKey(id), clean); err != nil {
		return fmt.Errorf("queue %s: set data: %w", q.name, err)
	}
	return q.store.Save()
}

// Data returns a trade's stored parameters.
func (q *Queue) Data(id string) (map[string]string, bool) {
	return q.store.HGetAll(q.dataKey(id))
}

// Add pushes a trade onto the queue with its parameters.
func (q *Queue) Add(id string, data map[string]string) error {
	if err := q.store.LPush(q.name, id); err != nil {
		return fmt.Errorf("queue %s: push: %w", q.name, err)
	}
	return q.SetData(id, data)
}

// Pop dequeues the oldest trade and returns its identifier and parameters.
// ok is false when the queue is empty.
func (q *Queue) Pop() (string, map[string]string, bool) {
	id, ok := q.store.RPop(q.name)
	if !ok {
		return "", nil, false
	}
	data, _ := q.Data(id)
	return id, data, true
}

// SetStatus records a trade's outcome for the submitter to poll.
func (q *Queue) SetStatus(id, status string) error {
	if err := q.store.Set(q.name+":status:"+id, status); err != nil {
		return err
	}
	return q.store.Save()
}

// Status returns a trade's recorded outcome.
func (q *Queue) Status(id string) (string, bool) {
	return q.store.Get(q.name + ":status:" + id)
}

// AddFailed records a failed trade: the identifier goes onto the failure
// list and the error message becomes its status.
func (q *Queue) AddFailed(id, errMsg string) error {
	if err := q.store.LPush(q.name+"-failed", id); err != nil {
		return err
	}
	return q.SetStatus(id, errMsg)
}

// Failed returns the identifiers of failed trades, newest first.
func (q *Queue) Failed() []string {
	return q.store.LRange(q.name+"-failed", 0, -1)
}

// StageTrade holds an identifier locally so a batch can be released to the
// queue at once with StagedToQueue.
func (q *Queue) StageTrade(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stage = append(q.stage, id)
}

// StagedToQueue releases all staged identifiers onto the queue.
func (q *Queue) StagedToQueue() error {
	q.mu.Lock()
	staged := q.stage
	q.stage = nil
	q.mu.Unlock()
	for _, id := range staged {
		if err := q.store.LPush(q.name, id); err != nil {
			return err
		}
	}
	return q.store.Save()
}

// AddCriteria appends entry or exit criteria for a trade. openClose is
// "open" or "close".
func (q *Queue) AddCriteria(id, openClose string, list []criteria.Criterion) error {
	key := fmt.Sprintf("%s:%s_criteria", q.dataKey(id), openClose)
	for _, c := range list {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("queue %s: encode criteria: %w", q.name, err)
		}
		if err := q.store.RPush(key, string(raw)); err != nil {
			return err
		}
	}
	return q.store.Save()
}

// Criteria returns a trade's stored entry and exit criteria.
func (q *Queue) Criteria(id string) (open, cls []criteria.Criterion, err error) {
	open, err = q.criteriaList(id, "open")
	if err != nil {
		return nil, nil, err
	}
	cls, err = q.criteriaList(id, "close")
	if err != nil {
		return nil, nil, err
	}
	return open, cls, nil
}

func (q *Queue) criteriaList(id, openClose string) ([]criteria.Criterion, error) {
	key := fmt.Sprintf("%s:%s_criteria", q.dataKey(id), openClose)
	raw := q.store.LRange(key, 0, -1)
	list := make([]criteria.Criterion, 0, len(raw))
	for _, r := range raw {
		var c criteria.Criterion
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			return nil, fmt.Errorf("queue %s: trade %s has malformed %s criteria: %w",
				q.name, id, openClose, err)
		}
		list = append(list, c)
	}
	return list, nil
}

// Allocation returns the configured per-trade allocation percent, zero
// when unset or unparseable.
func (q *Queue) Allocation() int {
	return q.intAt(q.name + ":allocation")
}

// PopNewAllocation consumes a pending allocation override, zero when none
// is waiting.
func (q *Queue) PopNewAllocation() int {
	key := q.name + ":new_allocation"
	v := q.intAt(key)
	_ = q.store.Delete(key)
	_ = q.store.Save()
	return v
}

func (q *Queue) intAt(key string) int {
	raw, ok := q.store.Get(key)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// SetCurrentUsage publishes buying power over balance for dashboards.
func (q *Queue) SetCurrentUsage(buyingPower, balance float64) error {
	if err := q.store.Set(q.name+":current_usage",
		fmt.Sprintf("%.2f/%.2f", buyingPower, balance)); err != nil {
		return err
	}
	return q.store.Save()
}

// CurrentUsage returns the published "buying_power/balance" string.
func (q *Queue) CurrentUsage() (string, bool) {
	return q.store.Get(q.name + ":current_usage")
}

// DeleteCurrentUsage clears the published usage.
func (q *Queue) DeleteCurrentUsage() error {
	if err := q.store.Delete(q.name + ":current_usage"); err != nil {
		return err
	}
	return q.store.Save()
}

// Heartbeat records the daemon's liveness timestamp.
func (q *Queue) Heartbeat(now time.Time) error {
	if err := q.store.Set(q.name+":heartbeat",
		strconv.FormatInt(now.Unix(), 10)); err != nil {
		return err
	}
	return q.store.Save()
}

// LastHeartbeat returns the recorded liveness timestamp.
func (q *Queue) LastHeartbeat() (time.Time, bool) {
	raw, ok := q.store.Get(q.name + ":heartbeat")
	if !ok {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// RunMaintenance requests an out-of-band maintenance pass from the daemon.
func (q *Queue) RunMaintenance() error {
	if err := q.store.Set(q.name+":maintenance", "1"); err != nil {
		return err
	}
	return q.store.Save()
}

// ShouldRunMaintenance consumes a pending maintenance request.
func (q *Queue) ShouldRunMaintenance() bool {
	_, ok := q.store.Get(q.name + ":maintenance")
	if ok {
		_ = q.store.Delete(q.name + ":maintenance")
		_ = q.store.Save()
	}
	return ok
}

// SetLastMaintenance records when the daemon last completed maintenance.
func (q *Queue) SetLastMaintenance(when time.Time) error {
	if err := q.store.Set(q.name+":last_maintenance",
		strconv.FormatInt(when.Unix(), 10)); err != nil {
		return err
	}
	return q.store.Save()
}

// LastMaintenance returns when the daemon last completed maintenance.
func (q *Queue) LastMaintenance() (time.Time, bool) {
	raw, ok := q.store.Get(q.name + ":last_maintenance")
	if !ok {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// NewIdentifier derives a queue identifier from the trade's symbol plus a
// short random suffix, e.g. "SPY-3f2a1c9d".
func NewIdentifier(symbol string) string {
	return strings.ToUpper(symbol) + "-" + uuid.NewString()[:8]
}

// SendTrade enqueues a trade request: criteria split onto their lists, the
// rest of the parameters into the trade hash. Returns the assigned
// identifier.
func (q *Queue) SendTrade(data map[string]string, open, cls []criteria.Criterion) (string, error) {
	symbol, ok := data["symbol"]
	if !ok || symbol == "" {
		return "", fmt.Errorf("queue %s: trade has no symbol", q.name)
	}
	id := NewIdentifier(symbol)
	if len(open) > 0 {
		if err := q.AddCriteria(id, "open", open); err != nil {
			return "", err
		}
	}
	if len(cls) > 0 {
		if err := q.AddCriteria(id, "close", cls); err != nil {
			return "", err
		}
	}
	if err := q.Add(id, data); err != nil {
		return "", err
	}
	return id, nil
}

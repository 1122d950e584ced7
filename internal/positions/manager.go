// Package positions tracks opened trades through their lifecycle: persist
// on open, reconcile against broker holdings each maintenance pass, close
// on target or criteria, and clean up records the broker no longer backs.
package positions

import (
	"fmt"
	"log"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/models"
	"github.com/kmaguire/ironfly/internal/storage"
	"github.com/kmaguire/ironfly/internal/util"
)

// Manager persists and maintains the positions of one named strategy.
// One daemon per account is assumed; no cross-process locking.
type Manager struct {
	store  storage.Interface
	b      broker.Broker
	name   string
	logger *log.Logger
}

// Tracked is one live position with its persisted legs.
type Tracked struct {
	Position *models.Position
	Legs     []models.LegRecord
}

// CloseTarget resolves a position's profit target percent from its
// strategy table name.
type CloseTarget func(strategyName string) (float64, bool)

// NewManager creates a lifecycle manager writing under the given strategy
// name prefix.
func NewManager(store storage.Interface, b broker.Broker, name string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{store: store, b: b, name: name, logger: logger}
}

func (m *Manager) positionsKey() string     { return m.name + ":positions" }
func (m *Manager) archiveKey() string       { return m.name + ":all_positions" }
func (m *Manager) dataKey(id string) string { return m.name + ":" + id }
func (m *Manager) legsKey(id string) string { return m.name + ":" + id + ":legs" }

// Log appends a timestamped line to the strategy's activity log.
func (m *Manager) Log(msg string) {
	entry := fmt.Sprintf("%d %s", m.b.Now().Unix(), msg)
	if err := m.store.LPush(m.name+":log", entry); err != nil {
		m.logger.Printf("positions: log append failed: %v", err)
	}
	m.logger.Printf("[%s] %s", m.name, msg)
}

// SaveOrder persists a freshly opened position: the order id goes onto the
// live list and the all-time archive, the metadata into a hash, and each
// leg onto the position's leg list.
func (m *Manager) SaveOrder(order broker.OptionOrder, legs []broker.Leg, pos *models.Position) error {
	pos.ID = order.ID()
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = m.b.Now()
	}
	if err := m.store.LPush(m.positionsKey(), pos.ID); err != nil {
		return fmt.Errorf("save position list: %w", err)
	}
	if err := m.store.LPush(m.archiveKey(), pos.ID); err != nil {
		return fmt.Errorf("save archive list: %w", err)
	}
	if err := m.store.HSet(m.dataKey(pos.ID), pos.Fields()); err != nil {
		return fmt.Errorf("save position data: %w", err)
	}
	for _, l := range legs {
		record, err := models.EncodeLeg(models.LegRecord{
			OptionID: l.Option.ID(),
			Side:     string(l.Side),
			Ratio:    l.Ratio,
		})
		if err != nil {
			return err
		}
		if err := m.store.RPush(m.legsKey(pos.ID), record); err != nil {
			return fmt.Errorf("save legs: %w", err)
		}
	}
	return m.store.Save()
}

// DeletePosition removes a position's record, legs, and live-list entry.
// The archive entry is kept.
func (m *Manager) DeletePosition(id string) error {
	if err := m.store.LRem(m.positionsKey(), id); err != nil {
		return err
	}
	if err := m.store.Delete(m.dataKey(id)); err != nil {
		return err
	}
	if err := m.store.Delete(m.legsKey(id)); err != nil {
		return err
	}
	return m.store.Save()
}

// CurrentPositions returns every tracked position that is live at the
// broker. Positions opened today are skipped so unfilled orders are not
// processed; positions with a leg missing from broker holdings are
// orphans, deleted and logged.
func (m *Manager) CurrentPositions() ([]Tracked, error) {
	held, err := m.b.OptionsPositions()
	if err != nil {
		return nil, err
	}
	now := m.b.Now()

	var out []Tracked
	for _, id := range m.store.LRange(m.positionsKey(), 0, -1) {
		fields, ok := m.store.HGetAll(m.dataKey(id))
		if !ok {
			m.Log(fmt.Sprintf("[%s]: no stored data, removing.", id))
			if err := m.DeletePosition(id); err != nil {
				return nil, err
			}
			continue
		}
		pos := models.PositionFromFields(id, fields)
		if pos.OpenedToday(now) {
			continue
		}

		legs, err := m.legsFor(id)
		if err != nil {
			return nil, err
		}
		orphaned := len(legs) == 0
		for _, l := range legs {
			if _, ok := held[l.OptionID]; !ok {
				orphaned = true
				break
			}
		}
		if orphaned {
			m.Log(fmt.Sprintf("[%s]: leg no longer held at broker, deleting orphan %s-%s.",
				id, pos.Symbol, pos.Strategy))
			if err := m.DeletePosition(id); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, Tracked{Position: pos, Legs: legs})
	}
	return out, nil
}

func (m *Manager) legsFor(id string) ([]models.LegRecord, error) {
	raw := m.store.LRange(m.legsKey(id), 0, -1)
	legs := make([]models.LegRecord, 0, len(raw))
	for _, r := range raw {
		l, err := models.DecodeLeg(r)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", id, err)
		}
		legs = append(legs, l)
	}
	return legs, nil
}

// legRef is a minimal Option carrying only the contract id, used to ask
// the broker for fresh market data on persisted legs.
type legRef struct{ id string }

var _ broker.Option = legRef{}

func (r legRef) ID() string                    { return r.id }
func (r legRef) OptionType() broker.OptionType { return "" }
func (r legRef) Strike() float64               { return 0 }
func (r legRef) MarkPrice() float64            { return 0 }
func (r legRef) ProbabilityOTM() float64       { return 0 }
func (r legRef) Delta() float64                { return 0 }
func (r legRef) ExpirationDate() string        { return "" }

// refreshLegs rebuilds broker legs with current market data for the
// persisted leg records, preserving sides and ratios.
func (m *Manager) refreshLegs(records []models.LegRecord) ([]broker.Leg, error) {
	refs := make([]broker.Option, len(records))
	for i, r := range records {
		refs[i] = legRef{id: r.OptionID}
	}
	fresh, err := m.b.OptionsPositionsData(refs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]broker.Option, len(fresh))
	for _, o := range fresh {
		byID[o.ID()] = o
	}

	legs := make([]broker.Leg, 0, len(records))
	for _, r := range records {
		o, ok := byID[r.OptionID]
		if !ok {
			return nil, fmt.Errorf("no market data for leg %s", r.OptionID)
		}
		legs = append(legs, broker.Leg{Option: o, Side: broker.Side(r.Side), Ratio: r.Ratio})
	}
	return legs, nil
}

// ClosePosition submits the closing debit order for a position by
// inverting each leg's side, then deletes the record unless keep is set
// (used for immediate closing orders placed alongside the open).
func (m *Manager) ClosePosition(pos *models.Position, legs []broker.Leg, closePrice float64, keep bool) (broker.OptionOrder, error) {
	if closePrice <= 0 {
		closePrice = broker.NetPrice(legs)
	}
	order, err := m.b.OptionsTransact(broker.InvertLegs(legs), broker.DirectionDebit,
		closePrice, pos.Quantity, broker.EffectClose)
	if err != nil {
		return nil, err
	}
	if !keep && pos.ID != "" {
		if err := m.DeletePosition(pos.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Maintenance runs one pass over all tracked positions: refresh leg
// market data, persist current value and change, and close any position
// whose close criteria fire or whose credit has decayed past the
// strategy's target. Returns the closing orders submitted.
func (m *Manager) Maintenance(target CloseTarget) ([]broker.OptionOrder, error) {
	tracked, err := m.CurrentPositions()
	if err != nil {
		return nil, err
	}

	var orders []broker.OptionOrder
	for _, tp := range tracked {
		order, err := m.maintainOne(tp, target)
		if err != nil {
			return orders, err
		}
		if order != nil {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *Manager) maintainOne(tp Tracked, target CloseTarget) (broker.OptionOrder, error) {
	pos := tp.Position
	legs, err := m.refreshLegs(tp.Legs)
	if err != nil {
		return nil, err
	}

	value := broker.NetPrice(legs)
	if value <= 0 {
		// data anomaly; do not let one broken position block the pass
		m.Log(fmt.Sprintf("Calculated negative credit (%.2f) during maintenance on %s-%s, skipping...",
			value, pos.Symbol, pos.Strategy))
		return nil, nil
	}

	change := util.PercentageChange(pos.Price, value)
	pos.LastPrice = value
	pos.LastChange = -change
	if err := m.store.HSet(m.dataKey(pos.ID), pos.Fields()); err != nil {
		return nil, err
	}

	shouldClose := pos.CloseRequested
	if shouldClose {
		m.Log(fmt.Sprintf("[%s]: Close requested for %s-%s.", pos.ID, pos.Symbol, pos.Strategy))
	}
	if !shouldClose {
		shouldClose, err = m.closeCriteriaMet(pos, value)
		if err != nil {
			return nil, err
		}
	}
	if !shouldClose {
		targetPct, ok := target(pos.Strategy)
		if !ok {
			m.Log(fmt.Sprintf("[%s]: unknown strategy %q, skipping.", pos.ID, pos.Strategy))
			return nil, nil
		}
		shouldClose = -change >= targetPct
	}
	if !shouldClose {
		return nil, nil
	}

	m.Log(fmt.Sprintf("[%s]: Closing %s-%s due to change of %.2f%%. Was %.2f, now %.2f.",
		pos.ID, pos.Symbol, pos.Strategy, change, pos.Price, value))
	order, err := m.ClosePosition(pos, legs, value, false)
	if err != nil {
		return nil, err
	}
	m.Log(fmt.Sprintf("[%s]: Closed %s-%s with quantity %d and price %.2f.",
		pos.ID, pos.Symbol, pos.Strategy, pos.Quantity, value))
	return order, nil
}

// closeCriteriaMet evaluates the position's stored close criteria against
// the current quote, value, change, and date.
func (m *Manager) closeCriteriaMet(pos *models.Position, value float64) (bool, error) {
	criteriaList, err := criteria.ParseList(pos.CloseCriteria)
	if err != nil {
		return false, err
	}
	if len(criteriaList) == 0 {
		return false, nil
	}
	quote, err := m.b.GetQuote(pos.Symbol)
	if err != nil {
		return false, err
	}
	now := m.b.Now()
	return criteria.Evaluate(criteriaList, map[string]interface{}{
		"price":  quote,
		"value":  value,
		"change": -util.PercentageChange(pos.Price, value),
		"date":   float64(now.Unix()),
	})
}

// RequestClose flags a tracked position to be closed on the next
// maintenance pass, regardless of target or criteria.
func RequestClose(store storage.Interface, strategyName, id string) error {
	key := strategyName + ":" + id
	if _, ok := store.HGetAll(key); !ok {
		return fmt.Errorf("no tracked position %s", id)
	}
	if err := store.HSet(key, map[string]string{"close": "true"}); err != nil {
		return err
	}
	return store.Save()
}

// BalanceSnapshot appends the account's current value to the balance
// history time series under the account id.
func BalanceSnapshot(store storage.Interface, b broker.Broker) error {
	value, err := b.GetValue()
	if err != nil {
		return err
	}
	account := b.AccountID()
	if err := store.RPush(account+":dates", util.FormatDate(b.Now())); err != nil {
		return err
	}
	if err := store.RPush(account+":values", fmt.Sprintf("%.2f", value)); err != nil {
		return err
	}
	return store.Save()
}

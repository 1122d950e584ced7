// Package models defines the persisted records for tracked positions.
// Records round-trip through the storage layer's hashes and lists as plain
// strings, so nothing here imports the broker package.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateFormat is the canonical date layout used in persisted records and
// expiration strings.
const DateFormat = "2006-01-02"

// LegRecord is one persisted leg of a position: the broker contract
// reference plus the side it was opened with.
type LegRecord struct {
	OptionID string `json:"option"`
	Side     string `json:"side"`
	Ratio    int    `json:"ratio"`
}

// EncodeLeg serializes a leg record for storage in a position's leg list.
func EncodeLeg(l LegRecord) (string, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode leg: %w", err)
	}
	return string(b), nil
}

// DecodeLeg parses a leg record from its stored form.
func DecodeLeg(s string) (LegRecord, error) {
	var l LegRecord
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return LegRecord{}, fmt.Errorf("decode leg: %w", err)
	}
	if l.Ratio == 0 {
		l.Ratio = 1
	}
	return l, nil
}

// Position is the persisted record of an opened trade, keyed by the
// broker-assigned order id.
type Position struct {
	ID             string
	Symbol         string
	Strategy       string
	Quantity       int
	Price          float64 // entry net credit/debit per contract
	Expires        string
	OpenedAt       time.Time
	CloseCriteria  string // serialized criteria list, may be empty
	CloseRequested bool   // operator asked for a close on the next pass
	LastPrice      float64
	LastChange     float64
}

// Fields flattens the position into a storage hash.
func (p *Position) Fields() map[string]string {
	return map[string]string{
		"symbol":         p.Symbol,
		"strategy":       p.Strategy,
		"quantity":       strconv.Itoa(p.Quantity),
		"price":          strconv.FormatFloat(p.Price, 'f', -1, 64),
		"expires":        p.Expires,
		"time":           strconv.FormatInt(p.OpenedAt.Unix(), 10),
		"close_criteria": p.CloseCriteria,
		"close":          strconv.FormatBool(p.CloseRequested),
		"last_price":     strconv.FormatFloat(p.LastPrice, 'f', -1, 64),
		"last_change":    strconv.FormatFloat(p.LastChange, 'f', -1, 64),
	}
}

// PositionFromFields rebuilds a position from a storage hash. Numeric
// fields that fail to parse are left at zero; selection and maintenance
// code validates the values it depends on.
func PositionFromFields(id string, fields map[string]string) *Position {
	p := &Position{
		ID:            id,
		Symbol:        fields["symbol"],
		Strategy:      fields["strategy"],
		Expires:       fields["expires"],
		CloseCriteria: fields["close_criteria"],
	}
	p.CloseRequested = fields["close"] == "true" || fields["close"] == "1"
	p.Quantity, _ = strconv.Atoi(fields["quantity"])
	p.Price, _ = strconv.ParseFloat(fields["price"], 64)
	p.LastPrice, _ = strconv.ParseFloat(fields["last_price"], 64)
	p.LastChange, _ = strconv.ParseFloat(fields["last_change"], 64)
	if ts, err := strconv.ParseInt(fields["time"], 10, 64); err == nil {
		p.OpenedAt = time.Unix(ts, 0)
	}
	return p
}

// OpenedToday reports whether the position was created on the same
// calendar day as now. Same-day positions are skipped by maintenance so an
// order is not processed before it has filled.
func (p *Position) OpenedToday(now time.Time) bool {
	y1, m1, d1 := p.OpenedAt.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

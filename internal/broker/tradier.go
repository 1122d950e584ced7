package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierBroker implements Broker over the Tradier REST API.
type TradierBroker struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	accountID string
	sandbox   bool
}

var _ Broker = (*TradierBroker)(nil)

// NewTradierBroker creates a Tradier client. Sandbox mode points at the
// sandbox host, which serves delayed data but the same API surface.
func NewTradierBroker(apiKey, accountID string, sandbox bool) *TradierBroker {
	baseURL := "https://api.tradier.com/v1"
	if sandbox {
		baseURL = "https://sandbox.tradier.com/v1"
	}
	return &TradierBroker{
		client:    &http.Client{Timeout: 10 * time.Second},
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		sandbox:   sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierBroker) WithHTTPClient(c *http.Client) *TradierBroker {
	if c != nil {
		t.client = c
	}
	return t
}

// WithBaseURL points the client at a custom host, for tests.
func (t *TradierBroker) WithBaseURL(u string) *TradierBroker {
	if u != "" {
		t.baseURL = strings.TrimRight(u, "/")
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`"null"`)) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// tradierGreeks contains the Greeks block from a chain entry.
type tradierGreeks struct {
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	MidIV  float64 `json:"mid_iv"`
	SmvVol float64 `json:"smv_vol"`
}

// TradierOption adapts a Tradier chain entry to the Option interface.
type TradierOption struct {
	Greeks     *tradierGreeks `json:"greeks,omitempty"`
	Symbol     string         `json:"symbol"`
	Type       string         `json:"option_type"`
	Expiration string         `json:"expiration_date"`
	Underlying string         `json:"underlying"`
	Bid        float64        `json:"bid"`
	Ask        float64        `json:"ask"`
	Last       float64        `json:"last"`
	StrikeVal  float64        `json:"strike"`
}

var _ Option = (*TradierOption)(nil)

func (o *TradierOption) ID() string { return o.Symbol }

func (o *TradierOption) OptionType() OptionType {
	t, err := ParseOptionType(o.Type)
	if err != nil {
		return ""
	}
	return t
}

func (o *TradierOption) Strike() float64 { return o.StrikeVal }

// MarkPrice returns the bid/ask midpoint, falling back to the last trade
// when the book is empty.
func (o *TradierOption) MarkPrice() float64 {
	if o.Bid > 0 || o.Ask > 0 {
		return (o.Bid + o.Ask) / 2
	}
	return o.Last
}

// ProbabilityOTM estimates the probability of expiring out of the money
// from delta: 1 minus the absolute delta.
func (o *TradierOption) ProbabilityOTM() float64 {
	if o.Greeks == nil {
		return 0
	}
	return 1 - math.Abs(o.Greeks.Delta)
}

func (o *TradierOption) Delta() float64 {
	if o.Greeks == nil {
		return 0
	}
	return o.Greeks.Delta
}

func (o *TradierOption) ExpirationDate() string { return o.Expiration }

type chainResponse struct {
	Options struct {
		Option singleOrArray[*TradierOption] `json:"option"`
	} `json:"options"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[struct {
			Symbol string  `json:"symbol"`
			Type   string  `json:"type"`
			Last   float64 `json:"last"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
		}] `json:"quote"`
	} `json:"quotes"`
}

type balancesResponse struct {
	Balances struct {
		TotalEquity float64 `json:"total_equity"`
		TotalCash   float64 `json:"total_cash"`
		AccountType string  `json:"account_type"`
		Margin      *struct {
			OptionBuyingPower float64 `json:"option_buying_power"`
			StockBuyingPower  float64 `json:"stock_buying_power"`
		} `json:"margin"`
		Cash *struct {
			CashAvailable float64 `json:"cash_available"`
		} `json:"cash"`
	} `json:"balances"`
}

type positionsResponse struct {
	Positions positionsWrapper `json:"positions"`
}

// positionsWrapper handles positions being "null" string or an object
type positionsWrapper struct {
	Position singleOrArray[positionItem] `json:"position"`
}

func (pw *positionsWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*pw = positionsWrapper{}
		return nil
	}
	type normalWrapper positionsWrapper
	return json.Unmarshal(b, (*normalWrapper)(pw))
}

type positionItem struct {
	Symbol    string  `json:"symbol"`
	CostBasis float64 `json:"cost_basis"`
	Quantity  float64 `json:"quantity"`
}

type orderResponse struct {
	Order struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
}

// tradierOrder is the OptionOrder view over a Tradier order acknowledgment.
type tradierOrder struct {
	id   string
	legs []Leg
}

var _ OptionOrder = (*tradierOrder)(nil)

func (o *tradierOrder) ID() string  { return o.id }
func (o *tradierOrder) Legs() []Leg { return o.legs }

// ============ Broker Interface ============

func (t *TradierBroker) AccountID() string { return t.accountID }

func (t *TradierBroker) Now() time.Time { return time.Now() }

func (t *TradierBroker) Balance() (float64, error) {
	var resp balancesResponse
	endpoint := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, t.accountID)
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balances.TotalCash, nil
}

func (t *TradierBroker) BuyingPower() (float64, error) {
	var resp balancesResponse
	endpoint := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, t.accountID)
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return 0, err
	}
	b := resp.Balances
	switch b.AccountType {
	case "margin":
		if b.Margin != nil {
			return b.Margin.OptionBuyingPower, nil
		}
	case "cash":
		if b.Cash != nil {
			return b.Cash.CashAvailable, nil
		}
	}
	return b.TotalCash, nil
}

func (t *TradierBroker) GetValue() (float64, error) {
	var resp balancesResponse
	endpoint := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, t.accountID)
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balances.TotalEquity, nil
}

func (t *TradierBroker) GetQuote(symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var resp quotesResponse
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return 0, err
	}
	quotes := resp.Quotes.Quote
	if len(quotes) == 0 {
		return 0, fmt.Errorf("%w: no quote for %s", ErrNonexistentAsset, symbol)
	}
	return quotes[0].Last, nil
}

// GetOptions fetches the listed expirations for the symbol. Contracts are
// fetched per-date on demand via OptionsForDate; Tradier serves chains one
// expiration at a time.
func (t *TradierBroker) GetOptions(symbol string) (*Chain, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var resp expirationsResponse
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &Chain{
		Symbol:          symbol,
		ExpirationDates: resp.Expirations.Date,
		Options:         make(map[string][]Option),
	}, nil
}

// OptionsForDate returns the contracts for one expiration, fetching and
// caching them on the chain on first use.
func (t *TradierBroker) OptionsForDate(chain *Chain, date string) ([]Option, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: nil chain", ErrNonexistentAsset)
	}
	if cached, ok := chain.Options[date]; ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("symbol", chain.Symbol)
	params.Set("expiration", date)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var resp chainResponse
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return nil, err
	}
	options := make([]Option, 0, len(resp.Options.Option))
	for _, o := range resp.Options.Option {
		options = append(options, o)
	}
	chain.Options[date] = options
	return options, nil
}

func (t *TradierBroker) getPositions() ([]positionItem, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/positions", t.baseURL, t.accountID)
	var resp positionsResponse
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return []positionItem(resp.Positions.Position), nil
}

// OptionsPositions returns held option contracts keyed by OCC symbol.
// Equity positions are filtered out by symbol shape.
func (t *TradierBroker) OptionsPositions() (map[string]HeldOption, error) {
	positions, err := t.getPositions()
	if err != nil {
		return nil, err
	}
	out := make(map[string]HeldOption)
	for _, p := range positions {
		if occOptionType(p.Symbol) == "" {
			continue
		}
		out[p.Symbol] = HeldOption{ID: p.Symbol, Quantity: p.Quantity}
	}
	return out, nil
}

// OptionsPositionsData refreshes marks and greeks for held contracts by
// re-fetching their quotes in one batch.
func (t *TradierBroker) OptionsPositionsData(options []Option) ([]Option, error) {
	if len(options) == 0 {
		return nil, nil
	}
	symbols := make([]string, len(options))
	for i, o := range options {
		symbols[i] = o.ID()
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var resp struct {
		Quotes struct {
			Quote singleOrArray[*TradierOption] `json:"quote"`
		} `json:"quotes"`
	}
	if err := t.makeRequest("GET", endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(resp.Quotes.Quote))
	for _, o := range resp.Quotes.Quote {
		out = append(out, o)
	}
	return out, nil
}

func (t *TradierBroker) StockPositions() ([]StockPosition, error) {
	positions, err := t.getPositions()
	if err != nil {
		return nil, err
	}
	out := make([]StockPosition, 0, len(positions))
	for _, p := range positions {
		if occOptionType(p.Symbol) != "" {
			continue
		}
		out = append(out, StockPosition{
			Symbol:    p.Symbol,
			Quantity:  int(p.Quantity),
			CostBasis: p.CostBasis,
		})
	}
	return out, nil
}

// tradierSide maps a normalized leg side and effect to the Tradier
// multileg side parameter.
func tradierSide(side Side, effect Effect) string {
	switch {
	case side == SideBuy && effect == EffectOpen:
		return "buy_to_open"
	case side == SideSell && effect == EffectOpen:
		return "sell_to_open"
	case side == SideBuy && effect == EffectClose:
		return "buy_to_close"
	default:
		return "sell_to_close"
	}
}

// OptionsTransact submits a multileg limit order at the given net price.
// All legs must share an underlying.
func (t *TradierBroker) OptionsTransact(legs []Leg, direction Direction,
	price float64, quantity int, effect Effect) (OptionOrder, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: no legs", ErrInvalidOption)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOption, quantity)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price %.2f", ErrInvalidOption, price)
	}
	if direction != DirectionCredit && direction != DirectionDebit {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidOption, direction)
	}

	underlying := occUnderlying(legs[0].Option.ID())
	if underlying == "" {
		return nil, fmt.Errorf("%w: cannot derive underlying from %s", ErrInvalidOption, legs[0].Option.ID())
	}

	params := url.Values{}
	params.Add("class", "multileg")
	params.Add("symbol", underlying)
	params.Add("duration", "day")
	params.Add("type", string(direction))
	params.Add("price", fmt.Sprintf("%.2f", price))
	for i, l := range legs {
		ratio := l.Ratio
		if ratio < 1 {
			ratio = 1
		}
		params.Add(fmt.Sprintf("option_symbol[%d]", i), l.Option.ID())
		params.Add(fmt.Sprintf("side[%d]", i), tradierSide(l.Side, effect))
		params.Add(fmt.Sprintf("quantity[%d]", i), strconv.Itoa(quantity*ratio))
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)
	var resp orderResponse
	if err := t.makeRequest("POST", endpoint, params, &resp); err != nil {
		return nil, err
	}
	return &tradierOrder{id: strconv.Itoa(resp.Order.ID), legs: legs}, nil
}

func (t *TradierBroker) equityOrder(symbol, side string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity %d", ErrInvalidOption, quantity)
	}
	params := url.Values{}
	params.Add("class", "equity")
	params.Add("symbol", symbol)
	params.Add("side", side)
	params.Add("quantity", strconv.Itoa(quantity))
	params.Add("type", "market")
	params.Add("duration", "day")

	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)
	var resp orderResponse
	if err := t.makeRequest("POST", endpoint, params, &resp); err != nil {
		return "", err
	}
	return strconv.Itoa(resp.Order.ID), nil
}

func (t *TradierBroker) Buy(symbol string, quantity int) (string, error) {
	return t.equityOrder(symbol, "buy", quantity)
}

func (t *TradierBroker) Sell(symbol string, quantity int) (string, error) {
	return t.equityOrder(symbol, "sell", quantity)
}

// ============ HTTP plumbing ============

func (t *TradierBroker) makeRequest(method, endpoint string, params url.Values, response interface{}) error {
	return t.makeRequestCtx(context.Background(), method, endpoint, params, response)
}

func (t *TradierBroker) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == "POST" && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "ironfly/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // cap error bodies
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ============ OCC symbol helpers ============

// occUnderlying extracts the underlying from an OCC option symbol,
// e.g. "MU190621P00039500" -> "MU". Returns "" for non-option symbols.
func occUnderlying(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 16 {
		return ""
	}
	for i := 0; i <= len(s)-15; i++ {
		if !isDigits(s[i : i+6]) {
			continue
		}
		if i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
			continue
		}
		typeChar := s[i+6]
		if typeChar != 'P' && typeChar != 'C' {
			continue
		}
		strikeEnd := i + 7 + 8
		if strikeEnd != len(s) || !isDigits(s[i+7:strikeEnd]) {
			continue
		}
		return s[:i]
	}
	return ""
}

// occOptionType returns the option type encoded in an OCC symbol, or ""
// when the symbol is not option-shaped.
func occOptionType(s string) OptionType {
	if occUnderlying(s) == "" {
		return ""
	}
	typeChar := s[len(s)-9]
	if typeChar == 'P' {
		return OptionTypePut
	}
	return OptionTypeCall
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

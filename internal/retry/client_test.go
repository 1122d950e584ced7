package retry

import (
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kmaguire/ironfly/internal/broker"
)

// fakeBroker scripts OptionsTransact failures before succeeding.
type fakeBroker struct {
	*broker.PaperBroker
	calls         int32
	successAfterN int
	err           error
}

func (f *fakeBroker) OptionsTransact(legs []broker.Leg, direction broker.Direction,
	price float64, quantity int, effect broker.Effect) (broker.OptionOrder, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if int(n) < f.successAfterN {
		return nil, f.err
	}
	if f.successAfterN == 0 && f.err != nil {
		return nil, f.err
	}
	return &broker.PaperOrder{OrderID: "filled"}, nil
}

func testLegs() []broker.Leg {
	o := &broker.PaperOption{Symbol: "MU", Type: broker.OptionTypeCall,
		StrikeVal: 40, Mark: 0.78, Expiration: "2019-06-21"}
	return []broker.Leg{broker.NewLeg(o, broker.SideSell)}
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func newWrapped(f *fakeBroker) *Broker {
	return Wrap(f, log.New(io.Discard, "", 0), fastConfig())
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	f := &fakeBroker{successAfterN: 3, err: errors.New("connection reset by peer")}
	b := newWrapped(f)

	order, err := b.OptionsTransact(testLegs(), broker.DirectionCredit, 0.78, 1, broker.EffectOpen)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if order.ID() != "filled" {
		t.Errorf("order id = %q, want filled", order.ID())
	}
	if got := atomic.LoadInt32(&f.calls); got != 3 {
		t.Errorf("call count = %d, want 3", got)
	}
}

func TestPermanentErrorFailsFast(t *testing.T) {
	f := &fakeBroker{err: broker.ErrInsufficientFunds}
	b := newWrapped(f)

	_, err := b.OptionsTransact(testLegs(), broker.DirectionDebit, 0.78, 1, broker.EffectOpen)
	if !errors.Is(err, broker.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := atomic.LoadInt32(&f.calls); got != 1 {
		t.Errorf("call count = %d, want 1 (no retries)", got)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	f := &fakeBroker{err: errors.New("504 gateway timeout")}
	b := newWrapped(f)

	_, err := b.OptionsTransact(testLegs(), broker.DirectionCredit, 0.78, 1, broker.EffectOpen)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if got := atomic.LoadInt32(&f.calls); got != 4 {
		t.Errorf("call count = %d, want 4 (initial + 3 retries)", got)
	}
}

func TestReadsPassThrough(t *testing.T) {
	pb := broker.NewPaperBroker(1000, "test")
	pb.SetQuote("MU", 39.5)
	b := Wrap(&fakeBroker{PaperBroker: pb}, log.New(io.Discard, "", 0), fastConfig())

	quote, err := b.GetQuote("MU")
	if err != nil {
		t.Fatal(err)
	}
	if quote != 39.5 {
		t.Errorf("quote = %v, want 39.5", quote)
	}
}

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("timeout exceeded"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("dns lookup failed"), true},
		{errors.New("invalid option symbol"), false},
		{broker.ErrNonexistentAsset, false},
	}
	for _, tc := range cases {
		if got := isTransientError(tc.err); got != tc.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	maxBackoff := 10 * time.Millisecond
	b := nextBackoff(8*time.Millisecond, maxBackoff)
	// 1.5x growth capped, plus up to 25% jitter
	if b < 10*time.Millisecond || b > 12500*time.Microsecond {
		t.Errorf("backoff = %v, want within [10ms, 12.5ms]", b)
	}
}

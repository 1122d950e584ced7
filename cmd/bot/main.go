// Command bot runs the trading daemon: it consumes the durable trade
// queue, runs position maintenance on a randomized interval during market
// hours, and serves the read-only dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/config"
	"github.com/kmaguire/ironfly/internal/dashboard"
	"github.com/kmaguire/ironfly/internal/positions"
	"github.com/kmaguire/ironfly/internal/queue"
	"github.com/kmaguire/ironfly/internal/retry"
	"github.com/kmaguire/ironfly/internal/storage"
	"github.com/kmaguire/ironfly/internal/strategy"
)

type Bot struct {
	config   *config.Config
	broker   broker.Broker
	strategy strategy.Strategy
	queue    *queue.Queue
	store    storage.Interface
	logger   *log.Logger

	rng             *rand.Rand
	nextMaintenance time.Time
	lastSnapshot    string // date of the last balance history append
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)
	logger.Printf("Starting trading daemon in %s mode with strategy %q", cfg.Environment.Mode, cfg.Strategy.Name)
	if !cfg.IsPaperTrading() {
		logger.Println("LIVE TRADING MODE - real money at risk. Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := newBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Addr:         cfg.Dashboard.Addr,
			StrategyName: cfg.Strategy.Name,
			AccountID:    bot.broker.AccountID(),
		}, bot.store, bot.queue, newLogrus(cfg))
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Daemon error: %v", err)
	}
	logger.Println("Daemon stopped")
}

func newBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	base, err := broker.New(cfg.Broker.Provider, broker.Settings{
		APIKey:    cfg.Broker.APIKey,
		AccountID: cfg.Broker.AccountID,
		Sandbox:   cfg.Broker.Sandbox,
		Balance:   cfg.Broker.Balance,
	})
	if err != nil {
		return nil, fmt.Errorf("creating broker: %w", err)
	}
	b := base
	if cfg.Broker.Provider == "tradier" {
		b = retry.Wrap(broker.NewCircuitBreakerBroker(base), logger)
	}

	strat, err := strategy.New(cfg.Strategy.Name, strategy.Deps{
		Broker: b,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Bot{
		config:   cfg,
		broker:   b,
		strategy: strat,
		queue:    queue.New(store, cfg.QueueName()),
		store:    store,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- scheduling jitter, not crypto
	}, nil
}

func newLogrus(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		l.SetLevel(level)
	}
	return l
}

// Run drives the daemon loop: one tick per poll interval.
func (b *Bot) Run(ctx context.Context) error {
	balance, err := b.broker.Balance()
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.logger.Printf("Connected to account %s with balance $%.2f", b.broker.AccountID(), balance)

	ticker := time.NewTicker(b.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick()
		}
	}
}

// tick runs one pass: heartbeat, maintenance when due, and at most one
// dequeued trade.
func (b *Bot) tick() {
	now := b.broker.Now()
	if err := b.queue.Heartbeat(now); err != nil {
		b.logger.Printf("Heartbeat failed: %v", err)
	}

	if !b.config.IsWithinTradingHours(now) {
		// force a maintenance pass as soon as the market reopens
		b.nextMaintenance = time.Time{}
		return
	}

	if b.nextMaintenance.IsZero() || !now.Before(b.nextMaintenance) || b.queue.ShouldRunMaintenance() {
		b.runMaintenance(now)
	}

	b.snapshotBalance(now)

	id, data, ok := b.queue.Pop()
	if !ok {
		return
	}
	b.processTrade(id, data)
}

func (b *Bot) runMaintenance(now time.Time) {
	b.logger.Println("Running maintenance...")
	orders, err := b.strategy.Maintenance()
	if err != nil {
		b.logger.Printf("Maintenance error: %v", err)
	}
	b.logger.Printf("Completed %d maintenance tasks.", len(orders))

	if err := b.queue.SetLastMaintenance(now); err != nil {
		b.logger.Printf("Recording maintenance time failed: %v", err)
	}
	if power, perr := b.broker.BuyingPower(); perr == nil {
		if balance, berr := b.broker.Balance(); berr == nil {
			if err := b.queue.SetCurrentUsage(power, balance); err != nil {
				b.logger.Printf("Recording usage failed: %v", err)
			}
		}
	}

	minM, maxM := b.config.MaintenanceInterval()
	pause := minM
	if maxM > minM {
		pause += time.Duration(b.rng.Int63n(int64(maxM - minM)))
	}
	b.nextMaintenance = now.Add(pause)
	b.logger.Printf("Next maintenance in %s", pause.Round(time.Second))
}

// snapshotBalance appends to the balance history once per trading day.
func (b *Bot) snapshotBalance(now time.Time) {
	day := now.Format("2006-01-02")
	if day == b.lastSnapshot {
		return
	}
	if err := positions.BalanceSnapshot(b.store, b.broker); err != nil {
		b.logger.Printf("Balance snapshot failed: %v", err)
		return
	}
	b.lastSnapshot = day
}

func (b *Bot) processTrade(id string, data map[string]string) {
	b.logger.Printf("[%s] Ingested trade: %v", shortID(id), data)

	params, err := normalizeTrade(data)
	if err != nil {
		b.fail(id, err)
		return
	}
	if params.Allocation == 0 {
		params.Allocation = b.defaultAllocation()
	}
	params.OpenCriteria, params.CloseCriteria, err = b.queue.Criteria(id)
	if err != nil {
		b.fail(id, err)
		return
	}

	result, err := b.strategy.MakeTrade(params)
	if err != nil {
		var noTrade *strategy.NoTradeError
		if errors.As(err, &noTrade) {
			// benign: nothing tradeable right now
			b.logger.Printf("[%s] No trade: %v", shortID(id), err)
			if serr := b.queue.SetStatus(id, err.Error()); serr != nil {
				b.logger.Printf("[%s] Status write failed: %v", shortID(id), serr)
			}
			return
		}
		b.fail(id, err)
		return
	}

	b.logger.Printf("[%s] Completed with status %s", shortID(id), result.Status)
	if err := b.queue.SetStatus(id, result.Status); err != nil {
		b.logger.Printf("[%s] Status write failed: %v", shortID(id), err)
	}
}

func (b *Bot) fail(id string, err error) {
	b.logger.Printf("[%s] Trade failed: %v", shortID(id), err)
	if qerr := b.queue.AddFailed(id, err.Error()); qerr != nil {
		b.logger.Printf("[%s] Failure write failed: %v", shortID(id), qerr)
	}
}

// defaultAllocation resolves the percent allocation for trades that carry
// none: a pending override from the queue wins, then the queue's stored
// value, then the config default.
func (b *Bot) defaultAllocation() float64 {
	if alloc := b.queue.PopNewAllocation(); alloc > 0 {
		return float64(alloc)
	}
	if alloc := b.queue.Allocation(); alloc > 0 {
		return float64(alloc)
	}
	return b.config.Strategy.AllocationPct
}

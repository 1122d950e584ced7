// Command trade enqueues a trade request for the daemon, or checks the
// status of a previously queued one.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/kmaguire/ironfly/internal/config"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/positions"
	"github.com/kmaguire/ironfly/internal/queue"
	"github.com/kmaguire/ironfly/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		status     = flag.String("status", "", "Check the status of a queued trade id and exit")
		closeID    = flag.String("close", "", "Request a close of the tracked position id on the next maintenance pass")

		symbol            = flag.String("symbol", "", "Underlying symbol (required)")
		direction         = flag.String("direction", "", "neutral | bullish | bearish")
		ivRank            = flag.Int("iv-rank", 0, "Current IV rank, 0-100")
		allocation        = flag.Float64("allocation", 0, "Percent of balance to allocate")
		allocationDollars = flag.Float64("allocation-dollars", 0, "Dollar allocation for single-leg strategies")
		timeline          = flag.Int("timeline", 0, "Percent through the expiration window")
		daysOut           = flag.Int("days-out", 0, "Exact days to expiration, overrides timeline")
		spreadWidth       = flag.Float64("spread-width", 0, "Requested spread width in strike points")
		maxSpreadWidth    = flag.Float64("max-spread-width", 0, "Upper bound for width growth")
		monthly           = flag.Bool("monthly", false, "Pin to the monthly expiration")
		expDate           = flag.String("exp-date", "", "Pin to an exact expiration date (YYYY-MM-DD)")
		optionType        = flag.String("option-type", "", "call | put, for single-leg strategies")
		immediateClose    = flag.Bool("immediate-closing-order", false, "Place the profit-target close right after open")
		openCriteria      = flag.String("open-criteria", "", "JSON array of entry criteria")
		closeCriteria     = flag.String("close-criteria", "", "JSON array of exit criteria")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	q := queue.New(store, cfg.QueueName())

	if *closeID != "" {
		if err := positions.RequestClose(store, cfg.Strategy.Name, *closeID); err != nil {
			log.Fatalf("Failed to request close: %v", err)
		}
		fmt.Printf("%s: close requested\n", *closeID)
		return
	}

	if *status != "" {
		s, ok := q.Status(*status)
		if !ok {
			fmt.Printf("%s: pending\n", *status)
			return
		}
		fmt.Printf("%s: %s\n", *status, s)
		return
	}

	if *symbol == "" {
		log.Fatal("-symbol is required")
	}

	open, err := parseCriteria(*openCriteria)
	if err != nil {
		log.Fatalf("Invalid open criteria: %v", err)
	}
	cls, err := parseCriteria(*closeCriteria)
	if err != nil {
		log.Fatalf("Invalid close criteria: %v", err)
	}

	data := map[string]string{
		"symbol":    *symbol,
		"direction": *direction,
	}
	setInt(data, "iv_rank", *ivRank)
	setFloat(data, "allocation", *allocation)
	setFloat(data, "allocation_dollars", *allocationDollars)
	setInt(data, "timeline", *timeline)
	setInt(data, "days_out", *daysOut)
	setFloat(data, "spread_width", *spreadWidth)
	setFloat(data, "max_spread_width", *maxSpreadWidth)
	if *monthly {
		data["monthly"] = "true"
	}
	if *expDate != "" {
		data["exp_date"] = *expDate
	}
	if *optionType != "" {
		data["option_type"] = *optionType
	}
	if *immediateClose {
		data["immediate_closing_order"] = "true"
	}

	id, err := q.SendTrade(data, open, cls)
	if err != nil {
		log.Fatalf("Failed to enqueue trade: %v", err)
	}
	fmt.Println(id)
}

func parseCriteria(raw string) ([]criteria.Criterion, error) {
	if raw == "" {
		return nil, nil
	}
	var list []criteria.Criterion
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func setInt(data map[string]string, key string, v int) {
	if v != 0 {
		data[key] = strconv.Itoa(v)
	}
}

func setFloat(data map[string]string, key string, v float64) {
	if v != 0 {
		data[key] = strconv.FormatFloat(v, 'f', -1, 64)
	}
}

package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"stocksim/internal/ports"
)

// Mode selects how NextPrice walks the historical series.
type Mode string

const (
	// ModeRandom samples a uniformly random historical close on every call.
	// This mirrors the simulator's original behavior: "next" is not the next
	// tick in sequence. It is a policy choice, not an accident; tests that
	// need reproducibility use ModeWalk or inject their own oracle.
	ModeRandom Mode = "random"
	// ModeWalk advances a deterministic per-ticker cursor through the series,
	// sticking at the final price once the history is exhausted.
	ModeWalk Mode = "walk"
)

// ParseMode converts a config string into a Mode, defaulting to ModeRandom.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, string(ModeWalk)) {
		return ModeWalk
	}
	return ModeRandom
}

// Oracle implements ports.PriceOracle over per-ticker CSV files of historical
// closing prices. Files live under a data directory as <TICKER>.csv with a
// header containing a "close" column; the whole history is loaded up front so
// lookups never block on I/O.
type Oracle struct {
	logger ports.Logger
	mode   Mode

	mu     sync.Mutex
	series map[string][]decimal.Decimal
	cursor map[string]int // Next index per ticker, ModeWalk only
	rng    *rand.Rand
}

// Config holds configuration for the history oracle.
type Config struct {
	DataDir string
	Mode    Mode
	Logger  ports.Logger
	Seed    int64 // RNG seed for ModeRandom; 0 means a fixed default
}

// NewOracle loads every <TICKER>.csv found in the data directory. A missing
// directory is not an error; the oracle simply knows no tickers and reports
// every price as unavailable.
func NewOracle(cfg Config) (*Oracle, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for history oracle")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeRandom
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}

	o := &Oracle{
		logger: cfg.Logger,
		mode:   mode,
		series: make(map[string][]decimal.Decimal),
		cursor: make(map[string]int),
		rng:    rand.New(rand.NewSource(seed)),
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Logger.Warn(context.Background(), "Price history directory missing, oracle has no data", map[string]interface{}{"dir": cfg.DataDir})
			return o, nil
		}
		return nil, fmt.Errorf("failed to read price history directory '%s': %w", cfg.DataDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSuffix(entry.Name(), ".csv"))
		closes, err := loadCloses(filepath.Join(cfg.DataDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load history for %s: %w", ticker, err)
		}
		if len(closes) == 0 {
			continue
		}
		o.series[ticker] = closes
	}
	cfg.Logger.Info(context.Background(), "Price history loaded", map[string]interface{}{
		"dir": cfg.DataDir, "tickers": len(o.series), "mode": string(mode),
	})
	return o, nil
}

// LatestPrice returns the last close of the ticker's history.
func (o *Oracle) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	closes, ok := o.series[strings.ToUpper(ticker)]
	if !ok {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", ticker, ports.ErrPriceUnavailable)
	}
	return closes[len(closes)-1], nil
}

// NextPrice returns the price for the next simulated step per the configured
// mode.
func (o *Oracle) NextPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	key := strings.ToUpper(ticker)
	closes, ok := o.series[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", ticker, ports.ErrPriceUnavailable)
	}

	switch o.mode {
	case ModeWalk:
		i := o.cursor[key]
		if i >= len(closes) {
			i = len(closes) - 1
		} else {
			o.cursor[key] = i + 1
		}
		return closes[i], nil
	default:
		return closes[o.rng.Intn(len(closes))], nil
	}
}

// Tickers returns the tickers with loaded history, sorted for deterministic
// iteration.
func (o *Oracle) Tickers() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	tickers := make([]string, 0, len(o.series))
	for t := range o.series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Closes returns a copy of the ticker's close series for trend analysis.
func (o *Oracle) Closes(ticker string) ([]decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	closes, ok := o.series[strings.ToUpper(ticker)]
	if !ok {
		return nil, false
	}
	out := make([]decimal.Decimal, len(closes))
	copy(out, closes)
	return out, true
}

// loadCloses reads the "close" column from a CSV history file.
func loadCloses(path string) ([]decimal.Decimal, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, nil // Header only or empty
	}

	closeIdx := -1
	for i, name := range records[0] {
		if strings.EqualFold(strings.TrimSpace(name), "close") {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, fmt.Errorf("no close column in header %v", records[0])
	}

	closes := make([]decimal.Decimal, 0, len(records)-1)
	for _, record := range records[1:] {
		if closeIdx >= len(record) {
			return nil, fmt.Errorf("row has %d columns, close column is %d", len(record), closeIdx)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[closeIdx]))
		if err != nil {
			return nil, fmt.Errorf("bad close value %q: %w", record[closeIdx], err)
		}
		closes = append(closes, price)
	}
	return closes, nil
}

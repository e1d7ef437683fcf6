package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrRateUnknown means no rate is available for the requested pair. Callers
// treat this as advisory and skip conversion.
var ErrRateUnknown = fmt.Errorf("exchange rate unknown")

// Cache holds the last good rates table per base currency and refreshes it
// on a cron schedule. A refresh failure keeps the previous table; a cold
// cache falls through to a single on-demand fetch.
type Cache struct {
	client *Client
	cron   *cron.Cron

	mu     sync.RWMutex
	tables map[string]map[string]float64
}

// NewCache creates a rate cache over the given client.
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
		cron:   cron.New(),
		tables: make(map[string]map[string]float64),
	}
}

// Start schedules a periodic refresh of every base currency seen so far.
// Cron expressions use the standard 5-field format: minute hour day-of-month
// month day-of-week (e.g. "0 * * * *" for hourly).
func (c *Cache) Start(cronSpec string) error {
	_, err := c.cron.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		c.refreshAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("registering rate refresh cron %q: %w", cronSpec, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts the refresher and waits for a running refresh to finish.
func (c *Cache) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *Cache) refreshAll(ctx context.Context) {
	c.mu.RLock()
	bases := make([]string, 0, len(c.tables))
	for base := range c.tables {
		bases = append(bases, base)
	}
	c.mu.RUnlock()

	for _, base := range bases {
		table, err := c.client.Latest(ctx, base)
		if err != nil {
			log.Warn().Err(err).Str("base", base).Msg("rate_refresh_failed")
			continue
		}
		c.mu.Lock()
		c.tables[base] = table
		c.mu.Unlock()
		log.Debug().Str("base", base).Int("rates", len(table)).Msg("rate_refresh_ok")
	}
}

// Rate returns the multiplier from one currency to another. Same-currency
// pairs are always 1.0 and never touch the service.
func (c *Cache) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return 1.0, nil
	}

	c.mu.RLock()
	table, ok := c.tables[from]
	c.mu.RUnlock()

	if !ok {
		fetched, err := c.client.Latest(ctx, from)
		if err != nil {
			return 0, fmt.Errorf("%w: %s to %s: %v", ErrRateUnknown, from, to, err)
		}
		c.mu.Lock()
		c.tables[from] = fetched
		c.mu.Unlock()
		table = fetched
	}

	rate, ok := table[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: %s to %s", ErrRateUnknown, from, to)
	}
	return rate, nil
}

package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DeafMist/diet-digest/backend/internal/repository"
)

// Warmer refreshes cached headline pages on a cron schedule.
type Warmer struct {
	cron    *cron.Cron
	cache   *Cache
	pages   []repository.HeadlineParams
	timeout time.Duration
	log     *slog.Logger
}

// NewWarmer schedules c.Warm for pages. schedule uses the standard five field
// cron syntax or a descriptor such as "@every 5m".
func NewWarmer(c *Cache, schedule string, timeout time.Duration, pages ...repository.HeadlineParams) (*Warmer, error) {
	if len(pages) == 0 {
		pages = []repository.HeadlineParams{{}}
	}
	w := &Warmer{cron: cron.New(), cache: c, pages: pages, timeout: timeout, log: c.log}
	if _, err := w.cron.AddFunc(schedule, w.Run); err != nil {
		return nil, fmt.Errorf("schedule cache warm %q: %w", schedule, err)
	}
	return w, nil
}

// Run warms the cache once.
func (w *Warmer) Run() {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if err := w.cache.Warm(ctx, w.pages...); err != nil {
		w.log.Warn("cache warm failed", slog.Any("err", err))
		return
	}
	w.log.Debug("cache warmed", slog.Int("pages", len(w.pages)))
}

// Start runs the schedule in the background.
func (w *Warmer) Start() {
	w.cron.Start()
}

// Stop halts the schedule and waits for a running warm to finish.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
}

// Package monitor runs one polling loop per active tenant and reconciles
// the set of running loops against the tenant store.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"listing-notifier/metrics"
	"listing-notifier/pkg/watch"
)

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Extractor pulls the newest listing out of page content. A nil listing
// means the page had nothing to extract this cycle.
type Extractor interface {
	Extract(content []byte) (*watch.Listing, error)
}

// Notifier delivers one message to a tenant.
type Notifier interface {
	Notify(ctx context.Context, tenantID, text string) error
}

// Store is the single source of truth for tenant configuration. Loops never
// cache tenant state across cycles; they re-read it here.
type Store interface {
	Load(ctx context.Context) (map[string]*watch.Tenant, error)
	Update(ctx context.Context, id string, mutate func(*watch.Tenant)) error
}

// Config holds monitor dependencies and policy.
type Config struct {
	Fetcher   Fetcher
	Extractor Extractor
	Notifier  Notifier
	Store     Store
	Logger    *slog.Logger

	// ReconcileTick is how often the running set is compared against the
	// store's active tenants. Defaults to one minute.
	ReconcileTick time.Duration

	// NotifyOnFirst notifies on a tenant's first observed listing instead
	// of silently priming last_title. On confirms the pipeline end-to-end
	// during onboarding; off avoids greeting a new tenant with an old
	// listing.
	NotifyOnFirst bool
}

// Monitor owns the running per-tenant polling loops.
type Monitor struct {
	fetcher   Fetcher
	extractor Extractor
	notifier  Notifier
	store     Store
	logger    *slog.Logger

	reconcileTick time.Duration
	notifyOnFirst bool
	intervalUnit  time.Duration // scales tenant intervals; shrunk in tests

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	tick := cfg.ReconcileTick
	if tick <= 0 {
		tick = time.Minute
	}
	return &Monitor{
		fetcher:       cfg.Fetcher,
		extractor:     cfg.Extractor,
		notifier:      cfg.Notifier,
		store:         cfg.Store,
		logger:        cfg.Logger,
		reconcileTick: tick,
		notifyOnFirst: cfg.NotifyOnFirst,
		intervalUnit:  time.Minute,
		running:       make(map[string]struct{}),
	}
}

// Run reconciles once immediately, then on every tick, until ctx is
// cancelled. It returns after all tenant loops have exited.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.reconcileTick), func() {
		m.reconcile(ctx)
	}); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}

	m.reconcile(ctx)
	c.Start()
	m.logger.Info("Monitor started", "reconcile_tick", m.reconcileTick.String())

	<-ctx.Done()
	<-c.Stop().Done()
	m.wg.Wait()
	m.logger.Info("Monitor stopped")
	return nil
}

// reconcile compares the store's active tenants against the running set and
// starts loops for newly activated tenants. Deactivated tenants are not
// signalled here; their own loops observe the flag and exit. Comparing
// desired vs. running sets makes repeated ticks idempotent.
func (m *Monitor) reconcile(ctx context.Context) {
	tenants, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("Reconcile skipped, store load failed", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range tenants {
		if !t.Active {
			continue
		}
		if _, ok := m.running[id]; ok {
			continue
		}
		m.running[id] = struct{}{}
		metrics.TenantsRunning.Inc()
		m.wg.Add(1)
		go m.runTenant(ctx, id)
		m.logger.Info("Polling loop started", "tenant", id, "url", t.URL, "interval_min", t.Interval)
	}
}

// runTenant is one tenant's polling loop. Both active and interval are
// re-read from the store at the top of every cycle, so configuration
// commands take effect without a restart.
func (m *Monitor) runTenant(ctx context.Context, id string) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
		metrics.TenantsRunning.Dec()
		m.logger.Info("Polling loop stopped", "tenant", id)
	}()

	for {
		tenants, err := m.store.Load(ctx)
		if err != nil {
			m.logger.Warn("Cycle skipped, store load failed", "tenant", id, "error", err)
			if !m.sleep(ctx, m.reconcileTick) {
				return
			}
			continue
		}

		t, ok := tenants[id]
		if !ok || !t.Active {
			return
		}

		m.cycle(ctx, id, t)

		if !m.sleep(ctx, m.interval(t)) {
			return
		}
	}
}

// cycle performs one fetch → extract → detect → notify → persist pass.
// Every failure leaves last_title untouched, so the same change is retried
// on the next cycle and a detected change is never silently dropped.
func (m *Monitor) cycle(ctx context.Context, id string, t *watch.Tenant) {
	if t.URL == "" {
		m.logger.Debug("Tenant has no URL configured", "tenant", id)
		metrics.Cycles.WithLabelValues("no_url").Inc()
		return
	}

	content, err := m.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		m.logger.Warn("Fetch failed", "tenant", id, "url", t.URL, "error", err)
		metrics.FetchErrors.Inc()
		metrics.Cycles.WithLabelValues("fetch_error").Inc()
		return
	}

	listing, err := m.extractor.Extract(content)
	if err != nil {
		m.logger.Warn("Extraction failed", "tenant", id, "url", t.URL, "error", err)
		metrics.Cycles.WithLabelValues("extract_error").Inc()
		return
	}

	switch watch.Detect(listing, t.LastTitle) {
	case watch.Indeterminate:
		m.logger.Info("No listing found on page", "tenant", id, "url", t.URL)
		metrics.Cycles.WithLabelValues("indeterminate").Inc()
		return
	case watch.Unchanged:
		metrics.Cycles.WithLabelValues("unchanged").Inc()
		return
	case watch.Changed:
	}

	// First observation: optionally prime last_title without notifying, so
	// a newly activated tenant isn't greeted with an old listing.
	if t.LastTitle == "" && !m.notifyOnFirst {
		if err := m.persistTitle(ctx, id, listing.Title); err != nil {
			m.logger.Warn("Priming last title failed", "tenant", id, "error", err)
		}
		metrics.Cycles.WithLabelValues("primed").Inc()
		return
	}

	if err := m.notifier.Notify(ctx, id, listingMessage(listing)); err != nil {
		// Not persisting keeps the change pending for the next cycle.
		m.logger.Warn("Notification failed, will retry next cycle", "tenant", id, "error", err)
		metrics.Notifications.WithLabelValues("error").Inc()
		metrics.Cycles.WithLabelValues("notify_error").Inc()
		return
	}
	metrics.Notifications.WithLabelValues("ok").Inc()

	if err := m.persistTitle(ctx, id, listing.Title); err != nil {
		// The notification went out but the title didn't stick; the next
		// cycle re-notifies the same listing.
		m.logger.Error("Persisting last title failed", "tenant", id, "error", err)
		metrics.Cycles.WithLabelValues("persist_error").Inc()
		return
	}

	m.logger.Info("Change notified", "tenant", id, "title", listing.Title, "link", listing.Link)
	metrics.Cycles.WithLabelValues("notified").Inc()
}

func (m *Monitor) persistTitle(ctx context.Context, id, title string) error {
	return m.store.Update(ctx, id, func(t *watch.Tenant) {
		t.LastTitle = title
	})
}

// interval returns the current sleep duration for a tenant. Invalid
// intervals are rejected at the command boundary; anything that slips
// through falls back to the default rather than spinning.
func (m *Monitor) interval(t *watch.Tenant) time.Duration {
	n := t.Interval
	if n < 1 {
		n = watch.DefaultInterval
	}
	return time.Duration(n) * m.intervalUnit
}

// sleep waits for d or until ctx is cancelled; it reports whether the loop
// should continue.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// listingMessage formats the push message for a newly detected listing.
func listingMessage(l *watch.Listing) string {
	return fmt.Sprintf("🆕新着投稿：%s\n👉 %s", l.Title, l.Link)
}

package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Poller drives reconciliation continuously: a periodic full sweep, plus
// filesystem notifications for local targets so an exit marker landing on
// disk is picked up without waiting out the interval. Remote targets have
// no notification channel and rely on the sweep alone.
type Poller struct {
	recon    *Reconciler
	ledger   core.Ledger
	interval time.Duration
	logger   *logging.Logger

	watched map[string]core.RunID
}

// NewPoller creates a poller sweeping at the given interval.
func NewPoller(recon *Reconciler, ledger core.Ledger, interval time.Duration, logger *logging.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		recon:    recon,
		ledger:   ledger,
		interval: interval,
		logger:   logger,
		watched:  map[string]core.RunID{},
	}
}

// Run blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Notifications are an optimization; polling alone still converges.
		p.logger.Warn("filesystem watcher unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
	}

	p.sweep(ctx, watcher)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		var events chan fsnotify.Event
		var errors chan error
		if watcher != nil {
			events = watcher.Events
			errors = watcher.Errors
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx, watcher)
		case ev, ok := <-events:
			if !ok {
				watcher = nil
				continue
			}
			p.handleEvent(ctx, ev)
		case err, ok := <-errors:
			if !ok {
				watcher = nil
				continue
			}
			p.logger.Warn("watcher error", "error", err)
		}
	}
}

// sweep reconciles everything and refreshes the set of watched control dirs.
func (p *Poller) sweep(ctx context.Context, watcher *fsnotify.Watcher) {
	summary, err := p.recon.ReconcileAll(ctx, core.Filter{})
	if err != nil {
		p.logger.Error("sweep failed", "error", err)
		return
	}
	p.logger.Debug("sweep complete",
		"total", summary.Total,
		"changed", summary.ChangedCount,
		"no_evidence", summary.NoEvidenceCount,
		"errors", len(summary.Errors))

	if watcher == nil {
		return
	}
	p.refreshWatches(ctx, watcher)
}

func (p *Poller) refreshWatches(ctx context.Context, watcher *fsnotify.Watcher) {
	records, err := p.ledger.List(ctx, core.Filter{})
	if err != nil {
		p.logger.Warn("listing runs for watch refresh", "error", err)
		return
	}

	want := map[string]core.RunID{}
	for _, rec := range records {
		if rec.Target.IsLocal() && !rec.Status.IsTerminal() {
			want[filepath.Clean(rec.Target.ControlDir)] = rec.ID
		}
	}

	for dir := range p.watched {
		if _, ok := want[dir]; !ok {
			_ = watcher.Remove(dir)
			delete(p.watched, dir)
		}
	}
	for dir, id := range want {
		if _, ok := p.watched[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			p.logger.Warn("watching control dir", "dir", dir, "error", err)
			continue
		}
		p.watched[dir] = id
	}
}

// handleEvent reconciles the run owning a control dir when one of its
// control files changes. Only writes matter; the exit marker arriving is
// the event this exists for.
func (p *Poller) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	id, ok := p.watched[filepath.Clean(filepath.Dir(ev.Name))]
	if !ok {
		return
	}
	if _, err := p.recon.Reconcile(ctx, id); err != nil {
		p.logger.WithRun(string(id)).Warn("event-driven reconcile failed", "error", err)
	}
}

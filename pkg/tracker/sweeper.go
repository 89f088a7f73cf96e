package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// sweepWorkers bounds concurrent project syncs during a sweep.
const sweepWorkers = 4

// SweepResult counts what one SyncAll pass did.
type SweepResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SyncAll runs SyncProjectStatus for every project. A failure on one
// project is logged and counted; only failing to list projects is an error.
func (t *Tracker) SyncAll(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	projects, err := t.repo.projects(ctx)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepWorkers)
	for _, p := range projects {
		id := p.ID
		g.Go(func() error {
			r, err := t.SyncProjectStatus(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			res.Checked++
			switch {
			case err != nil:
				res.Failed++
				t.log.Warn().Err(err).Str("project_id", id).Msg("sweep: sync failed")
			case r.Skipped:
				res.Skipped++
			case r.Changed:
				res.Changed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return res, ctx.Err()
}

// RunSweeper calls SyncAll at once and then every interval until ctx is
// cancelled.
func (t *Tracker) RunSweeper(ctx context.Context, interval time.Duration) {
	t.log.Info().Dur("interval", interval).Msg("sweeper: running")
	t.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("sweeper: shutting down")
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *Tracker) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Str("panic", fmt.Sprint(r)).Msg("sweeper: panic in sweep")
		}
	}()
	res, err := t.SyncAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Error().Err(err).Msg("sweeper: sweep failed")
		}
		return
	}
	t.log.Debug().Int("checked", res.Checked).Int("changed", res.Changed).
		Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("sweeper: pass complete")
}

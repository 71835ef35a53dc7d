// Package pipeline composes loading, centroid resolution, arc expansion and
// demographic estimation into the runs behind the tazflow commands.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/config"
	"github.com/sells-group/tazflow/internal/spatial"
	"github.com/sells-group/tazflow/internal/store"
)

// Pipeline runs arc and census jobs. The store is optional; a nil store
// disables run persistence.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	crs   spatial.Reprojector
}

// New creates a Pipeline. A nil reprojector selects the built-in CRS registry.
func New(cfg *config.Config, st store.Store, rp spatial.Reprojector) *Pipeline {
	if rp == nil {
		rp = spatial.NewCRSRegistry()
	}
	return &Pipeline{cfg: cfg, store: st, crs: rp}
}

// runTracker records run lifecycle in the store when one is configured.
type runTracker struct {
	st  store.Store
	id  string
	log *zap.Logger
}

func (p *Pipeline) startRun(ctx context.Context, kind store.RunKind, focus string, params any, log *zap.Logger) (*runTracker, error) {
	t := &runTracker{st: p.store, log: log}
	if p.store == nil {
		return t, nil
	}
	run, err := p.store.CreateRun(ctx, kind, focus, params)
	if err != nil {
		return nil, err
	}
	t.id = run.ID
	log.Info("pipeline: run created", zap.String("run_id", run.ID))
	return t, nil
}

// RunID returns the stored run id, or "" without a store.
func (t *runTracker) RunID() string { return t.id }

func (t *runTracker) enabled() bool { return t.st != nil && t.id != "" }

func (t *runTracker) complete(ctx context.Context, summary any) {
	if !t.enabled() {
		return
	}
	if err := t.st.CompleteRun(ctx, t.id, summary); err != nil {
		t.log.Warn("pipeline: failed to complete run", zap.String("run_id", t.id), zap.Error(err))
	}
}

func (t *runTracker) fail(ctx context.Context, cause error) {
	if !t.enabled() {
		return
	}
	if err := t.st.FailRun(ctx, t.id, cause); err != nil {
		t.log.Warn("pipeline: failed to mark run failed", zap.String("run_id", t.id), zap.Error(err))
	}
}

// Package store persists runs and their outputs (arc records, census
// estimates and zone centroids) in SQLite.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/zone"
)

// RunKind names the pipeline a run executed.
type RunKind string

const (
	RunArcs   RunKind = "arcs"
	RunCensus RunKind = "census"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Focus     string          `json:"focus,omitempty"`
	Status    RunStatus       `json:"status"`
	Params    json.RawMessage `json:"params,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   RunKind   `json:"kind,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Focus  string    `json:"focus,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind RunKind, focus string, params any) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary any) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Outputs
	SaveArcs(ctx context.Context, runID string, arcs []flow.ArcRecord) error
	ListArcs(ctx context.Context, runID string) ([]flow.ArcRecord, error)
	SaveEstimates(ctx context.Context, runID string, estimates []census.Estimate) error
	ListEstimates(ctx context.Context, runID string) ([]census.Estimate, error)
	SaveZones(ctx context.Context, runID string, zones []zone.Zone, centroids zone.CentroidTable) error
	LoadCentroids(ctx context.Context, runID string, res zone.Resolution) (zone.CentroidTable, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

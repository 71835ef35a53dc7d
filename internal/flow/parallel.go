package flow

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tazflow/internal/zone"
)

// ExpandAll expands the matrix across workers goroutines, each handling a
// contiguous chunk of rows, and returns the arcs in (row, bucket) order. The
// first resolver failure cancels the remaining chunks.
func ExpandAll(ctx context.Context, m *Matrix, focus zone.ID, opts Options, r Resolver, workers int) ([]ArcRecord, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, eris.New("flow: nil matrix")
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (len(m.Rows) + workers - 1) / workers
	if chunk == 0 {
		return nil, nil
	}

	var parts [][]ArcRecord
	for start := 0; start < len(m.Rows); start += chunk {
		parts = append(parts, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		start := i * chunk
		end := min(start+chunk, len(m.Rows))
		sub := &Matrix{Buckets: m.Buckets, Rows: m.Rows[start:end]}
		g.Go(func() error {
			for arc, err := range Expand(sub, focus, opts, r) {
				if err != nil {
					return err
				}
				if gctx.Err() != nil {
					return eris.Wrap(gctx.Err(), "flow: expansion cancelled")
				}
				parts[i] = append(parts[i], arc)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var arcs []ArcRecord
	for _, p := range parts {
		arcs = append(arcs, p...)
	}
	sort.SliceStable(arcs, func(a, b int) bool {
		if arcs[a].Row != arcs[b].Row {
			return arcs[a].Row < arcs[b].Row
		}
		return arcs[a].Bucket < arcs[b].Bucket
	})
	return arcs, nil
}

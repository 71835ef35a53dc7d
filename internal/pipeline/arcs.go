package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/loader"
	"github.com/sells-group/tazflow/internal/spatial"
	"github.com/sells-group/tazflow/internal/store"
	"github.com/sells-group/tazflow/internal/zone"
)

// ArcParams is the parameter set recorded with an arc run.
type ArcParams struct {
	Focus      string   `json:"focus"`
	Mode       string   `json:"mode"`
	Directions []string `json:"directions"`
	Schedule   string   `json:"schedule"`
	MinTrips   float64  `json:"min_trips"`
	Scale      float64  `json:"scale"`
	Offset     float64  `json:"offset"`
	SelfLoops  string   `json:"self_loops"`
	Day        string   `json:"day"`
}

// ArcResult is the outcome of an arc run.
type ArcResult struct {
	RunID   string
	Focus   zone.ID
	Arcs    []flow.ArcRecord // directions concatenated, "to" first
	Summary flow.Summary
	Files   []string
}

// geometry is the resolved zone data for one run.
type geometry struct {
	fine        []zone.Zone
	coarse      []zone.Zone
	fineTable   zone.CentroidTable
	coarseTable zone.CentroidTable
}

// RunArcs expands the OD matrix around focus and writes the arc files.
func (p *Pipeline) RunArcs(ctx context.Context, focus string) (*ArcResult, error) {
	fc := p.cfg.Flow
	focusID := zone.ParseID(focus)
	if focusID == "" {
		return nil, eris.New("pipeline: focus zone is required")
	}
	log := zap.L().With(zap.String("component", "pipeline.arcs"), zap.String("focus", focusID.String()))

	directions, err := flow.ParseDirections(fc.Direction)
	if err != nil {
		return nil, err
	}
	day, err := fc.Day()
	if err != nil {
		return nil, err
	}
	schedule, err := flow.ParseSchedule(fc.Schedule, fc.HalfHourFrom, fc.HalfHourTo)
	if err != nil {
		return nil, err
	}

	params := ArcParams{
		Focus:     focusID.String(),
		Mode:      fc.Mode,
		Schedule:  schedule.Name(),
		MinTrips:  fc.MinTrips,
		Scale:     fc.Scale,
		Offset:    fc.Offset,
		SelfLoops: fc.SelfLoops,
		Day:       fc.RepresentativeDay,
	}
	for _, d := range directions {
		params.Directions = append(params.Directions, string(d))
	}

	run, err := p.startRun(ctx, store.RunArcs, focusID.String(), params, log)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	result, err := p.runArcs(ctx, focusID, directions, schedule, day, run, log)
	if err != nil {
		run.fail(ctx, err)
		return nil, err
	}
	result.RunID = run.RunID()
	run.complete(ctx, result.Summary)
	return result, nil
}

func (p *Pipeline) runArcs(
	ctx context.Context,
	focus zone.ID,
	directions []flow.Direction,
	schedule flow.Schedule,
	day time.Time,
	run *runTracker,
	log *zap.Logger,
) (*ArcResult, error) {
	fc := p.cfg.Flow

	geo, err := p.loadGeometry()
	if err != nil {
		return nil, err
	}
	resolver, err := p.resolver(geo, focus)
	if err != nil {
		return nil, err
	}

	// Matrices are shared between directions when they come from one file.
	matrices := make(map[string]*flow.Matrix)
	result := &ArcResult{Focus: focus}
	perDirection := make(map[flow.Direction][]flow.ArcRecord, len(directions))

	for _, d := range directions {
		path := fc.MatrixPath
		if d == flow.From && fc.ArrivalMatrixPath != "" {
			path = fc.ArrivalMatrixPath
		}
		m, ok := matrices[path]
		if !ok {
			m, err = loader.LoadMatrix(ctx, loader.MatrixSpec{
				Path:              path,
				OriginColumn:      fc.OriginColumn,
				DestinationColumn: fc.DestinationColumn,
				Schedule:          schedule,
			})
			if err != nil {
				return nil, err
			}
			matrices[path] = m
		}

		opts := flow.Options{
			Direction: d,
			MinTrips:  fc.MinTrips,
			Scale:     fc.Scale,
			Offset:    fc.Offset,
			Day:       day,
			SelfLoops: flow.SelfLoopPolicy(fc.SelfLoops),
		}
		arcs, err := flow.ExpandAll(ctx, m, focus, opts, resolver, fc.Workers)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: expand %s", d)
		}
		log.Info("pipeline: direction expanded", zap.String("direction", string(d)), zap.Int("arcs", len(arcs)))
		perDirection[d] = arcs
		result.Arcs = append(result.Arcs, arcs...)
	}

	files, err := p.writeArcFiles(focus, schedule, directions, perDirection, result.Arcs)
	if err != nil {
		return nil, err
	}
	result.Files = files
	result.Summary = flow.Summarize(result.Arcs)
	logArcSummary(log, result.Summary)

	if run.enabled() {
		if err := p.store.SaveZones(ctx, run.RunID(), geo.fine, geo.fineTable); err != nil {
			return nil, eris.Wrap(err, "pipeline: save fine zones")
		}
		if len(geo.coarse) > 0 {
			if err := p.store.SaveZones(ctx, run.RunID(), geo.coarse, geo.coarseTable); err != nil {
				return nil, eris.Wrap(err, "pipeline: save coarse zones")
			}
		}
		if err := p.store.SaveArcs(ctx, run.RunID(), result.Arcs); err != nil {
			return nil, eris.Wrap(err, "pipeline: save arcs")
		}
	}

	return result, nil
}

// loadGeometry reads the zone shapefiles and resolves centroids. Coarse zones
// are only read in mixed mode.
func (p *Pipeline) loadGeometry() (*geometry, error) {
	gc := p.cfg.Geometry
	mixed := p.cfg.Flow.Mode != "flat"

	fineSpec := loader.ZoneSpec{
		Path:     gc.FinePath,
		IDField:  gc.FineIDField,
		CRS:      gc.SourceCRS,
		Encoding: gc.Encoding,
	}
	if mixed {
		fineSpec.ParentField = gc.ParentField
	}
	fine, err := loader.LoadZones(fineSpec)
	if err != nil {
		return nil, err
	}
	geo := &geometry{fine: fine}
	geo.fineTable, err = spatial.ResolveCentroids(fine, zone.Fine, gc.PlanarCRS, p.crs)
	if err != nil {
		return nil, err
	}
	if !mixed {
		return geo, nil
	}

	geo.coarse, err = loader.LoadZones(loader.ZoneSpec{
		Path:     gc.CoarsePath,
		IDField:  gc.CoarseIDField,
		CRS:      gc.SourceCRS,
		Encoding: gc.Encoding,
	})
	if err != nil {
		return nil, err
	}
	geo.coarseTable, err = spatial.ResolveCentroids(geo.coarse, zone.Coarse, gc.PlanarCRS, p.crs)
	if err != nil {
		return nil, err
	}
	return geo, nil
}

// resolver builds the endpoint resolver for the configured mode.
func (p *Pipeline) resolver(geo *geometry, focus zone.ID) (flow.Resolver, error) {
	if p.cfg.Flow.Mode == "flat" {
		fr, err := zone.NewFlatResolver(geo.fineTable, focus)
		if err != nil {
			return nil, err
		}
		return fr, nil
	}

	adj, err := spatial.NewAdjacencyIndex(geo.coarse)
	if err != nil {
		return nil, err
	}
	h, err := zone.NewHierarchy(geo.fine, geo.fineTable, geo.coarseTable, adj)
	if err != nil {
		return nil, err
	}
	fr, err := h.Focus(focus)
	if err != nil {
		return nil, err
	}
	nearby := fr.Nearby()
	zap.L().Debug("pipeline: nearby set resolved",
		zap.String("focus", focus.String()),
		zap.Int("fine_zones", nearby.Len()),
		zap.Int("coarse_zones", len(nearby.CoarseZones())),
	)
	return fr, nil
}

// writeArcFiles writes one combined file or one file per direction.
func (p *Pipeline) writeArcFiles(
	focus zone.ID,
	schedule flow.Schedule,
	directions []flow.Direction,
	perDirection map[flow.Direction][]flow.ArcRecord,
	all []flow.ArcRecord,
) ([]string, error) {
	dir := p.cfg.Output.Dir
	if p.cfg.Flow.Combined {
		name := fmt.Sprintf("focus_%s_kepler_arc_map.csv", focus)
		if p.cfg.Flow.Mode != "flat" {
			name = fmt.Sprintf("focus_%s_kepler_animated_mixed.csv", focus)
		}
		path := filepath.Join(dir, name)
		if err := ExportArcsCSV(all, path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var files []string
	for _, d := range directions {
		path := filepath.Join(dir, fmt.Sprintf("focus_%s_%s_%s.csv", focus, d, schedule.Name()))
		if err := ExportArcsCSV(perDirection[d], path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func logArcSummary(log *zap.Logger, s flow.Summary) {
	hours := make([]string, 0, len(s.TripsByHour))
	for h := range s.TripsByHour {
		hours = append(hours, h)
	}
	sort.Strings(hours)
	log.Info("pipeline: arc summary",
		zap.Int("arcs", s.Arcs),
		zap.Int64("trips", s.Trips),
		zap.Int("unique_origins", s.UniqueOrigins),
		zap.Int("unique_destinations", s.UniqueDestinations),
	)
	for _, h := range hours {
		log.Debug("pipeline: trips per bucket", zap.String("hour", h), zap.Int64("trips", s.TripsByHour[h]))
	}
}

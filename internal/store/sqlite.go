package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/flow"
	"github.com/sells-group/tazflow/internal/zone"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	focus      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT,
	summary    TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS arcs (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	from_lat  REAL NOT NULL,
	from_lon  REAL NOT NULL,
	to_lat    REAL NOT NULL,
	to_lon    REAL NOT NULL,
	time      TEXT NOT NULL,
	trips     INTEGER NOT NULL,
	hour      TEXT NOT NULL,
	direction TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	bucket    INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS estimates (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	taz        TEXT NOT NULL,
	locality   TEXT NOT NULL,
	stat_zones TEXT NOT NULL,
	raw        TEXT NOT NULL,
	source     TEXT NOT NULL,
	vals       TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS zones (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	resolution TEXT NOT NULL,
	id         TEXT NOT NULL,
	parent     TEXT NOT NULL DEFAULT '',
	source_crs TEXT NOT NULL DEFAULT '',
	lat        REAL,
	lon        REAL,
	geometry   BLOB,
	PRIMARY KEY (run_id, resolution, id)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_estimates_taz ON estimates(run_id, taz);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind RunKind, focus string, params any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, focus, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(kind), focus, string(RunStatusRunning), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Kind:      kind,
		Focus:     focus,
		Status:    RunStatusRunning,
		Params:    paramsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		msg, string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, focus, status, params, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, kind, focus, status, params, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Focus != "" {
		query += ` AND focus = ?`
		args = append(args, filter.Focus)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveArcs appends arcs to a run in one transaction.
func (s *SQLiteStore) SaveArcs(ctx context.Context, runID string, arcs []flow.ArcRecord) error {
	return s.inTx(ctx, "save arcs", func(tx *sql.Tx) error {
		var base int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM arcs WHERE run_id = ?`, runID).Scan(&base); err != nil {
			return eris.Wrap(err, "count arcs")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO arcs (run_id, seq, from_lat, from_lon, to_lat, to_lon, time, trips, hour, direction, row_index, bucket)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "prepare")
		}
		defer stmt.Close() //nolint:errcheck

		for i, a := range arcs {
			if _, err := stmt.ExecContext(ctx, runID, base+i,
				a.FromLat, a.FromLon, a.ToLat, a.ToLon, a.Timestamp(), a.Trips, a.Hour, string(a.Direction), a.Row, a.Bucket,
			); err != nil {
				return eris.Wrapf(err, "insert arc %d", i)
			}
		}
		return nil
	})
}

// ListArcs returns a run's arcs in insertion order.
func (s *SQLiteStore) ListArcs(ctx context.Context, runID string) ([]flow.ArcRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_lat, from_lon, to_lat, to_lon, time, trips, hour, direction, row_index, bucket
		 FROM arcs WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list arcs")
	}
	defer rows.Close() //nolint:errcheck

	var arcs []flow.ArcRecord
	for rows.Next() {
		var a flow.ArcRecord
		var ts, dir string
		if err := rows.Scan(&a.FromLat, &a.FromLon, &a.ToLat, &a.ToLon, &ts, &a.Trips, &a.Hour, &dir, &a.Row, &a.Bucket); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan arc")
		}
		a.Time, err = time.Parse(flow.TimeLayout, ts)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse arc time %q", ts)
		}
		a.Direction = flow.Direction(dir)
		arcs = append(arcs, a)
	}
	return arcs, eris.Wrap(rows.Err(), "sqlite: list arcs iterate")
}

// SaveEstimates appends census estimates to a run in one transaction.
func (s *SQLiteStore) SaveEstimates(ctx context.Context, runID string, estimates []census.Estimate) error {
	return s.inTx(ctx, "save estimates", func(tx *sql.Tx) error {
		var base int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM estimates WHERE run_id = ?`, runID).Scan(&base); err != nil {
			return eris.Wrap(err, "count estimates")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO estimates (run_id, seq, taz, locality, stat_zones, raw, source, vals) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "prepare")
		}
		defer stmt.Close() //nolint:errcheck

		for i, e := range estimates {
			vals, err := json.Marshal(e.Values)
			if err != nil {
				return eris.Wrapf(err, "marshal estimate %s", string(e.TAZ))
			}
			if _, err := stmt.ExecContext(ctx, runID, base+i,
				string(e.TAZ), e.Locality, census.FormatStatZones(e.StatZones), e.Raw, string(e.Source), string(vals),
			); err != nil {
				return eris.Wrapf(err, "insert estimate %s", string(e.TAZ))
			}
		}
		return nil
	})
}

// ListEstimates returns a run's estimates in insertion order.
func (s *SQLiteStore) ListEstimates(ctx context.Context, runID string) ([]census.Estimate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT taz, locality, stat_zones, raw, source, vals FROM estimates WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list estimates")
	}
	defer rows.Close() //nolint:errcheck

	var out []census.Estimate
	for rows.Next() {
		var e census.Estimate
		var taz, zones, source, vals string
		if err := rows.Scan(&taz, &e.Locality, &zones, &e.Raw, &source, &vals); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan estimate")
		}
		e.TAZ = zone.ID(taz)
		e.StatZones = parseStatZoneList(zones)
		e.Source = census.Source(source)
		e.Values = map[string]float64{}
		if err := json.Unmarshal([]byte(vals), &e.Values); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal estimate %s", taz)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list estimates iterate")
}

// SaveZones stores zone geometries as WKB alongside their centroids. Zones
// without a centroid are stored with a NULL coordinate.
func (s *SQLiteStore) SaveZones(ctx context.Context, runID string, zones []zone.Zone, centroids zone.CentroidTable) error {
	return s.inTx(ctx, "save zones", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO zones (run_id, resolution, id, parent, source_crs, lat, lon, geometry) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "prepare")
		}
		defer stmt.Close() //nolint:errcheck

		for _, z := range zones {
			var geometry []byte
			if z.Geometry != nil {
				if geometry, err = wkb.Marshal(z.Geometry, wkb.NDR); err != nil {
					return eris.Wrapf(err, "encode zone %s", string(z.ID))
				}
			}
			var lat, lon sql.NullFloat64
			if c, ok := centroids.Lookup(z.ID); ok {
				lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
				lon = sql.NullFloat64{Float64: c.Lon, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, string(centroids.Resolution()), string(z.ID), string(z.Parent), z.SourceCRS, lat, lon, geometry); err != nil {
				return eris.Wrapf(err, "insert zone %s", string(z.ID))
			}
		}
		return nil
	})
}

// LoadCentroids rebuilds a centroid table from stored zones.
func (s *SQLiteStore) LoadCentroids(ctx context.Context, runID string, res zone.Resolution) (zone.CentroidTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lon FROM zones WHERE run_id = ? AND resolution = ? AND lat IS NOT NULL`, runID, string(res))
	if err != nil {
		return zone.CentroidTable{}, eris.Wrap(err, "sqlite: load centroids")
	}
	defer rows.Close() //nolint:errcheck

	coords := make(map[zone.ID]zone.Coord)
	for rows.Next() {
		var id string
		var c zone.Coord
		if err := rows.Scan(&id, &c.Lat, &c.Lon); err != nil {
			return zone.CentroidTable{}, eris.Wrap(err, "sqlite: scan centroid")
		}
		coords[zone.ID(id)] = c
	}
	if err := rows.Err(); err != nil {
		return zone.CentroidTable{}, eris.Wrap(err, "sqlite: load centroids iterate")
	}
	return zone.NewCentroidTable(res, coords), nil
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, action string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin", action)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return eris.Wrapf(err, "sqlite: %s", action)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", action)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var kind, status string
	var params, summary sql.NullString

	err := row.Scan(&r.ID, &kind, &r.Focus, &status, &params, &summary, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Kind = RunKind(kind)
	r.Status = RunStatus(status)
	if params.Valid {
		r.Params = json.RawMessage(params.String)
	}
	if summary.Valid {
		r.Summary = json.RawMessage(summary.String)
	}
	return &r, nil
}

func parseStatZoneList(s string) []census.StatZone {
	if s == "" {
		return nil
	}
	return census.SplitStatZones(s)
}

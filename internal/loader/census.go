package loader

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tazflow/internal/census"
	"github.com/sells-group/tazflow/internal/fetcher"
)

// MembershipSpec describes the zone membership table.
type MembershipSpec struct {
	Path           string
	TAZColumn      string
	LocalityColumn string
	StatZoneColumn string
}

// LoadMemberships reads the zone membership table. Repeated rows are dropped
// and rows with a blank zone id are skipped.
func LoadMemberships(ctx context.Context, spec MembershipSpec) ([]census.Membership, error) {
	tbl, err := fetcher.ReadTable(ctx, spec.Path, fetcher.TableOptions{})
	if err != nil {
		return nil, err
	}
	idx, err := columns(tbl, spec.TAZColumn, spec.LocalityColumn, spec.StatZoneColumn)
	if err != nil {
		return nil, eris.Wrap(err, "loader: membership")
	}

	var ms []census.Membership
	var skipped int
	for _, rec := range tbl.Rows {
		m := census.NewMembership(fetcher.Cell(rec, idx[0]), fetcher.Cell(rec, idx[1]), fetcher.Cell(rec, idx[2]))
		if m.TAZ == "" {
			skipped++
			continue
		}
		ms = append(ms, m)
	}
	ms = census.DedupMemberships(ms)

	log := zap.L().With(zap.String("component", "loader.membership"))
	if skipped > 0 {
		log.Warn("loader: skipped membership rows without a zone id", zap.Int("skipped", skipped))
	}
	log.Info("loader: memberships loaded", zap.String("path", spec.Path), zap.Int("zones", len(ms)))
	return ms, nil
}

// CensusSpec describes the demographic table.
type CensusSpec struct {
	Path           string
	LocalityColumn string
	StatZoneColumn string
	Fields         []string // numeric columns to keep, reference field included
}

// LoadCensusTable reads the demographic table. Field columns absent from the
// file are logged and left undefined, as are blank or non-numeric cells.
func LoadCensusTable(ctx context.Context, spec CensusSpec) (*census.Table, error) {
	tbl, err := fetcher.ReadTable(ctx, spec.Path, fetcher.TableOptions{})
	if err != nil {
		return nil, err
	}
	idx, err := columns(tbl, spec.LocalityColumn, spec.StatZoneColumn)
	if err != nil {
		return nil, eris.Wrap(err, "loader: census table")
	}

	log := zap.L().With(zap.String("component", "loader.census"))
	fieldIdx := make(map[string]int, len(spec.Fields))
	var absent []string
	for _, f := range spec.Fields {
		if i, err := tbl.Index(f); err == nil {
			fieldIdx[f] = i
		} else {
			absent = append(absent, f)
		}
	}
	if len(absent) > 0 {
		log.Warn("loader: census fields missing from table", zap.Strings("fields", absent))
	}

	records := make([]census.Record, 0, len(tbl.Rows))
	for _, rec := range tbl.Rows {
		r := census.Record{
			Locality: census.ParseLocality(fetcher.Cell(rec, idx[0])),
			StatZone: census.ParseStatZone(fetcher.Cell(rec, idx[1])),
			Values:   make(map[string]float64, len(fieldIdx)),
		}
		if r.Locality == "" {
			continue
		}
		for f, i := range fieldIdx {
			if v, ok := parseNumber(fetcher.Cell(rec, i)); ok {
				r.Values[f] = v
			}
		}
		records = append(records, r)
	}

	t := census.NewTable(records)
	log.Info("loader: census table loaded",
		zap.String("path", spec.Path),
		zap.Int("records", t.Len()),
		zap.Int("localities", len(t.Localities())),
	)
	return t, nil
}

func columns(tbl *fetcher.Table, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j, err := tbl.Index(n)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}
	return idx, nil
}

// parseNumber accepts plain and thousands-separated numbers.
func parseNumber(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

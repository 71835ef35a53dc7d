// Package loader reads the source tables of a run (zone shapefiles, OD
// matrices, zone membership and demographic tables) into domain types.
package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/tazflow/internal/zone"
)

// ZoneSpec describes one zone shapefile.
type ZoneSpec struct {
	Path        string
	IDField     string
	ParentField string // empty for coarse zones
	CRS         string // empty: read the .prj sidecar
	Encoding    string // DBF code page, e.g. "windows-1255"; empty leaves bytes as-is
}

// LoadZones reads polygons and their id (and parent id) attributes. Records
// with a blank id or no polygon geometry are skipped; a repeated id is an
// error.
func LoadZones(spec ZoneSpec) ([]zone.Zone, error) {
	log := zap.L().With(zap.String("component", "loader.zones"), zap.String("path", spec.Path))

	crs := spec.CRS
	if crs == "" {
		prj, err := readPrj(spec.Path)
		if err != nil {
			return nil, err
		}
		crs = prj
	}

	dec, err := decoder(spec.Encoding)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(spec.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", spec.Path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := fieldIdx[strings.ToLower(spec.IDField)]
	if !ok {
		return nil, eris.Errorf("loader: %s: id field %q not found", spec.Path, spec.IDField)
	}
	parentIdx := -1
	if spec.ParentField != "" {
		if parentIdx, ok = fieldIdx[strings.ToLower(spec.ParentField)]; !ok {
			return nil, eris.Errorf("loader: %s: parent field %q not found", spec.Path, spec.ParentField)
		}
	}

	var zones []zone.Zone
	seen := make(map[zone.ID]int)
	var skipped int

	for reader.Next() {
		n, shape := reader.Shape()

		id := zone.ParseID(attribute(reader, idIdx, dec))
		if id == "" {
			skipped++
			continue
		}
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		if prev, dup := seen[id]; dup {
			return nil, eris.Errorf("loader: %s: zone %s appears in records %d and %d", spec.Path, string(id), prev, n)
		}
		seen[id] = n

		z := zone.Zone{ID: id, Geometry: mp, SourceCRS: crs}
		if parentIdx >= 0 {
			z.Parent = zone.ParseID(attribute(reader, parentIdx, dec))
		}
		zones = append(zones, z)
	}

	if skipped > 0 {
		log.Warn("loader: skipped shapefile records", zap.Int("skipped", skipped))
	}
	log.Info("loader: zones loaded", zap.Int("zones", len(zones)), zap.String("crs", abbreviate(crs)))
	return zones, nil
}

func attribute(reader *shp.Reader, idx int, dec *encoding.Decoder) string {
	val := strings.TrimRight(reader.Attribute(idx), "\x00")
	if dec != nil {
		if s, err := dec.String(val); err == nil {
			val = s
		}
	}
	return strings.TrimSpace(val)
}

func decoder(name string) (*encoding.Decoder, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unknown DBF encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// readPrj returns the contents of the .prj file next to a shapefile, or ""
// when there is none.
func readPrj(shpPath string) (string, error) {
	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "loader: read %s", prj)
	}
	return strings.TrimSpace(string(data)), nil
}

func abbreviate(s string) string {
	if len(s) > 48 {
		return s[:48] + "…"
	}
	return s
}

// Package spatial derives zone centroids and coarse-zone adjacency from
// polygon geometry.
package spatial

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
)

// WGS84 is the geographic frame centroids are reported in.
const WGS84 = "EPSG:4326"

// epsgDefinitions holds PROJ.4 definitions for the EPSG codes the zone
// sources are published in.
var epsgDefinitions = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	2039:  "+proj=tmerc +lat_0=31.7343936111111 +lon_0=35.2045169444444 +k=1.0000067 +x_0=219529.584 +y_0=626907.39 +ellps=GRS80 +towgs84=-24.0024,-17.1032,-17.8444,-0.33077,-1.85269,1.66969,5.4248 +units=m +no_defs",
	32636: "+proj=utm +zone=36 +datum=WGS84 +units=m +no_defs",
}

// UnknownCRSError reports a coordinate reference system identifier that is
// empty or cannot be parsed.
type UnknownCRSError struct {
	CRS string
	Err error
}

func (e *UnknownCRSError) Error() string {
	if e.CRS == "" {
		return "unknown CRS: no source CRS declared"
	}
	if e.Err != nil {
		return fmt.Sprintf("unknown CRS %q: %v", e.CRS, e.Err)
	}
	return fmt.Sprintf("unknown CRS %q", e.CRS)
}

func (e *UnknownCRSError) Unwrap() error { return e.Err }

// Transformer maps a coordinate from one frame to another. Geographic frames
// take and return (lon, lat) in degrees.
type Transformer func(x, y float64) (float64, float64, error)

// Reprojector builds transforms between CRS identifiers.
type Reprojector interface {
	Transform(src, dst string) (Transformer, error)
}

// CRSRegistry resolves "EPSG:<code>" identifiers, PROJ.4 strings and ESRI WKT
// (as found in .prj sidecars). Parsed definitions are cached.
type CRSRegistry struct {
	mu    sync.Mutex
	cache map[string]*proj.SR
}

// NewCRSRegistry returns an empty registry.
func NewCRSRegistry() *CRSRegistry {
	return &CRSRegistry{cache: make(map[string]*proj.SR)}
}

// Parse resolves crs into a spatial reference.
func (r *CRSRegistry) Parse(crs string) (*proj.SR, error) {
	key := strings.TrimSpace(crs)
	if key == "" {
		return nil, &UnknownCRSError{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sr, ok := r.cache[key]; ok {
		return sr, nil
	}

	def := key
	if code, ok := epsgCode(key); ok {
		d, known := epsgDefinitions[code]
		if !known {
			return nil, &UnknownCRSError{CRS: crs}
		}
		def = d
	} else if !strings.HasPrefix(def, "+") && !looksLikeWKT(def) {
		return nil, &UnknownCRSError{CRS: crs}
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, &UnknownCRSError{CRS: crs, Err: err}
	}
	r.cache[key] = sr
	return sr, nil
}

// Transform returns a transform from src to dst.
func (r *CRSRegistry) Transform(src, dst string) (Transformer, error) {
	srcSR, err := r.Parse(src)
	if err != nil {
		return nil, err
	}
	dstSR, err := r.Parse(dst)
	if err != nil {
		return nil, err
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, &UnknownCRSError{CRS: src + " -> " + dst, Err: err}
	}
	return Transformer(t), nil
}

// epsgCode extracts the numeric code from "EPSG:2039" style identifiers.
func epsgCode(s string) (int, bool) {
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "EPSG:") {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(s[len("EPSG:"):]))
	if err != nil {
		return 0, false
	}
	return code, true
}

func looksLikeWKT(s string) bool {
	for _, p := range []string{"PROJCS[", "GEOGCS[", "PROJCRS[", "GEOGCRS["} {
		if strings.HasPrefix(strings.ToUpper(s), p) {
			return true
		}
	}
	return false
}

package census

import (
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Range is an inclusive value range.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Bounds maps field names to their expected ranges.
type Bounds map[string]Range

// DefaultBounds bounds every percentage field (suffix "_pcnt") to [0, 100].
func DefaultBounds(fields []string) Bounds {
	b := make(Bounds)
	for _, f := range fields {
		if strings.HasSuffix(f, "_pcnt") {
			b[f] = Range{Min: 0, Max: 100}
		}
	}
	return b
}

// boundsFile is the YAML layout of a bounds override file:
//
//	fields:
//	  sexRatio: {min: 0, max: 2000}
//	  pop_density: {min: 0}
//	  inst_pcnt: null   # drop the default bound
type boundsFile struct {
	Fields map[string]*struct {
		Min *float64 `yaml:"min"`
		Max *float64 `yaml:"max"`
	} `yaml:"fields"`
}

// LoadBounds overlays the YAML file at path on DefaultBounds(fields). An empty
// path returns the defaults.
func LoadBounds(path string, fields []string) (Bounds, error) {
	b := DefaultBounds(fields)
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "census: read bounds %s", path)
	}
	var f boundsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "census: parse bounds %s", path)
	}
	for name, spec := range f.Fields {
		if spec == nil {
			delete(b, name)
			continue
		}
		r := Range{Min: math.Inf(-1), Max: math.Inf(1)}
		if spec.Min != nil {
			r.Min = *spec.Min
		}
		if spec.Max != nil {
			r.Max = *spec.Max
		}
		if r.Min > r.Max {
			return nil, eris.Errorf("census: bounds for %s: min %v exceeds max %v", name, r.Min, r.Max)
		}
		b[name] = r
	}
	return b, nil
}

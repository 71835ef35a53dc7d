// Package config loads tazflow configuration from config.yaml and TAZFLOW_*
// environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geometry GeometryConfig `yaml:"geometry" mapstructure:"geometry"`
	Flow     FlowConfig     `yaml:"flow" mapstructure:"flow"`
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeometryConfig locates the fine and coarse zone shapefiles.
type GeometryConfig struct {
	FinePath      string `yaml:"fine_path" mapstructure:"fine_path"`
	CoarsePath    string `yaml:"coarse_path" mapstructure:"coarse_path"`
	FineIDField   string `yaml:"fine_id_field" mapstructure:"fine_id_field"`
	ParentField   string `yaml:"parent_field" mapstructure:"parent_field"`
	CoarseIDField string `yaml:"coarse_id_field" mapstructure:"coarse_id_field"`
	SourceCRS     string `yaml:"source_crs" mapstructure:"source_crs"` // empty: read .prj sidecars
	PlanarCRS     string `yaml:"planar_crs" mapstructure:"planar_crs"`
	Encoding      string `yaml:"encoding" mapstructure:"encoding"`
}

// FlowConfig configures OD matrix loading and arc expansion.
type FlowConfig struct {
	MatrixPath        string  `yaml:"matrix_path" mapstructure:"matrix_path"`
	ArrivalMatrixPath string  `yaml:"arrival_matrix_path" mapstructure:"arrival_matrix_path"` // used for "from" when set
	OriginColumn      string  `yaml:"origin_column" mapstructure:"origin_column"`
	DestinationColumn string  `yaml:"destination_column" mapstructure:"destination_column"`
	Schedule          string  `yaml:"schedule" mapstructure:"schedule"`
	HalfHourFrom      int     `yaml:"half_hour_from" mapstructure:"half_hour_from"`
	HalfHourTo        int     `yaml:"half_hour_to" mapstructure:"half_hour_to"`
	Focus             string  `yaml:"focus" mapstructure:"focus"`
	Direction         string  `yaml:"direction" mapstructure:"direction"`
	MinTrips          float64 `yaml:"min_trips" mapstructure:"min_trips"`
	Scale             float64 `yaml:"scale" mapstructure:"scale"`
	Offset            float64 `yaml:"offset" mapstructure:"offset"`
	Mode              string  `yaml:"mode" mapstructure:"mode"`
	SelfLoops         string  `yaml:"self_loops" mapstructure:"self_loops"`
	RepresentativeDay string  `yaml:"representative_day" mapstructure:"representative_day"`
	Combined          bool    `yaml:"combined" mapstructure:"combined"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
}

// Day parses RepresentativeDay.
func (f FlowConfig) Day() (time.Time, error) {
	d, err := time.Parse("2006-01-02", f.RepresentativeDay)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: flow.representative_day %q", f.RepresentativeDay)
	}
	return d, nil
}

// CensusConfig configures the demographic join.
type CensusConfig struct {
	MembershipPath       string   `yaml:"membership_path" mapstructure:"membership_path"`
	TablePath            string   `yaml:"table_path" mapstructure:"table_path"`
	TAZColumn            string   `yaml:"taz_column" mapstructure:"taz_column"`
	LocalityColumn       string   `yaml:"locality_column" mapstructure:"locality_column"`
	StatZoneColumn       string   `yaml:"stat_zone_column" mapstructure:"stat_zone_column"`
	TableLocalityColumn  string   `yaml:"table_locality_column" mapstructure:"table_locality_column"`
	TableStatZoneColumn  string   `yaml:"table_stat_zone_column" mapstructure:"table_stat_zone_column"`
	Fields               []string `yaml:"fields" mapstructure:"fields"` // empty: the economic field set
	PopulationField      string   `yaml:"population_field" mapstructure:"population_field"`
	ReferenceField       string   `yaml:"reference_field" mapstructure:"reference_field"`
	ReferenceTotal       float64  `yaml:"reference_total" mapstructure:"reference_total"` // 0: sum reference_field
	DiscrepancyThreshold float64  `yaml:"discrepancy_threshold" mapstructure:"discrepancy_threshold"`
	BoundsPath           string   `yaml:"bounds_path" mapstructure:"bounds_path"`
	Workers              int      `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures result files.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the optional SQLite run store.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"` // empty disables persistence
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TAZFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geometry.fine_path", "")
	v.SetDefault("geometry.coarse_path", "")
	v.SetDefault("geometry.fine_id_field", "TAZ_1270")
	v.SetDefault("geometry.parent_field", "TAZ_33")
	v.SetDefault("geometry.coarse_id_field", "TAZ_33")
	v.SetDefault("geometry.source_crs", "")
	v.SetDefault("geometry.planar_crs", "EPSG:2039")
	v.SetDefault("geometry.encoding", "windows-1255")
	v.SetDefault("flow.matrix_path", "")
	v.SetDefault("flow.arrival_matrix_path", "")
	v.SetDefault("flow.origin_column", "fromZone")
	v.SetDefault("flow.destination_column", "ToZone")
	v.SetDefault("flow.schedule", "auto")
	v.SetDefault("flow.half_hour_from", 6)
	v.SetDefault("flow.half_hour_to", 20)
	v.SetDefault("flow.focus", "")
	v.SetDefault("flow.direction", "both")
	v.SetDefault("flow.min_trips", 0.5)
	v.SetDefault("flow.scale", 2.0)
	v.SetDefault("flow.offset", 0.001)
	v.SetDefault("flow.mode", "mixed")
	v.SetDefault("flow.self_loops", "keep")
	v.SetDefault("flow.representative_day", "2019-01-01")
	v.SetDefault("flow.combined", true)
	v.SetDefault("flow.workers", 4)
	v.SetDefault("census.membership_path", "")
	v.SetDefault("census.table_path", "")
	v.SetDefault("census.taz_column", "TAZ_1270")
	v.SetDefault("census.locality_column", "Local_Code")
	v.SetDefault("census.stat_zone_column", "Statistical_Zone")
	v.SetDefault("census.table_locality_column", "LocalityCode")
	v.SetDefault("census.table_stat_zone_column", "StatArea")
	v.SetDefault("census.population_field", "pop_density")
	v.SetDefault("census.reference_field", "pop_approx")
	v.SetDefault("census.reference_total", 0.0)
	v.SetDefault("census.discrepancy_threshold", 0.10)
	v.SetDefault("census.bounds_path", "")
	v.SetDefault("census.workers", 4)
	v.SetDefault("output.dir", ".")
	v.SetDefault("store.sqlite_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "arcs" or "census".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "arcs":
		require(c.Geometry.FinePath != "", "geometry.fine_path is required")
		require(c.Geometry.FineIDField != "", "geometry.fine_id_field is required")
		require(c.Flow.MatrixPath != "", "flow.matrix_path is required")
		require(c.Flow.Focus != "", "flow.focus is required")
		require(c.Flow.OriginColumn != "" && c.Flow.DestinationColumn != "", "flow.origin_column and flow.destination_column are required")
		require(c.Flow.MinTrips >= 0, "flow.min_trips must be >= 0")
		require(c.Flow.Scale > 0, "flow.scale must be > 0")
		require(c.Flow.Offset > 0, "flow.offset must be > 0")
		require(c.Flow.Workers > 0, "flow.workers must be > 0")
		switch c.Flow.Mode {
		case "mixed":
			require(c.Geometry.CoarsePath != "", "geometry.coarse_path is required in mixed mode")
			require(c.Geometry.ParentField != "", "geometry.parent_field is required in mixed mode")
			require(c.Geometry.CoarseIDField != "", "geometry.coarse_id_field is required in mixed mode")
		case "flat":
		default:
			errs = append(errs, "flow.mode must be mixed or flat")
		}
		if _, err := c.Flow.Day(); err != nil {
			errs = append(errs, "flow.representative_day must be YYYY-MM-DD")
		}
	case "census":
		require(c.Census.MembershipPath != "", "census.membership_path is required")
		require(c.Census.TablePath != "", "census.table_path is required")
		require(c.Census.TAZColumn != "" && c.Census.LocalityColumn != "" && c.Census.StatZoneColumn != "",
			"census membership columns are required")
		require(c.Census.TableLocalityColumn != "" && c.Census.TableStatZoneColumn != "",
			"census table columns are required")
		require(c.Census.DiscrepancyThreshold >= 0, "census.discrepancy_threshold must be >= 0")
		require(c.Census.Workers > 0, "census.workers must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MOUNT_MODELER_MOUNT_HOST.
const EnvPrefix = "MOUNT_MODELER"

// Config represents the complete application configuration.
type Config struct {
	Mount       MountConfig      `json:"mount" mapstructure:"mount"`
	Site        SiteConfig       `json:"site" mapstructure:"site"`
	Modeling    ModelingConfig   `json:"modeling" mapstructure:"modeling"`
	Refraction  RefractionConfig `json:"refraction" mapstructure:"refraction"`
	Horizon     HorizonConfig    `json:"horizon" mapstructure:"horizon"`
	Store       StoreConfig      `json:"store" mapstructure:"store"`
	Dome        AlpacaConfig     `json:"dome" mapstructure:"dome"`
	Environment AlpacaConfig     `json:"environment" mapstructure:"environment"`
	Imager      ImagerConfig     `json:"imager" mapstructure:"imager"`
	Solver      SolverConfig     `json:"solver" mapstructure:"solver"`
	Server      ServerConfig     `json:"server" mapstructure:"server"`
	Log         LogConfig        `json:"log" mapstructure:"log"`
}

// MountConfig contains the mount connection and polling settings.
type MountConfig struct {
	// Host is the mount address
	Host string `json:"host" mapstructure:"host"`

	// Port is the command port (10micron default: 3492)
	Port int `json:"port" mapstructure:"port"`

	// TimeoutSeconds bounds every exchange with the mount
	TimeoutSeconds float64 `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// TickMillis is the dispatcher tick; cadences are multiples of it
	TickMillis int `json:"tick_millis" mapstructure:"tick_millis"`

	// QueueSize is the capacity of the user command queue
	QueueSize int `json:"queue_size" mapstructure:"queue_size"`

	// MeasurementSlot names the store slot of the active model's measurements
	MeasurementSlot string `json:"measurement_slot" mapstructure:"measurement_slot"`
}

// SiteConfig is the observatory location used until the mount reports its own.
type SiteConfig struct {
	Name string `json:"name" mapstructure:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" mapstructure:"latitude"`

	// Longitude in decimal degrees, east positive
	Longitude float64 `json:"longitude" mapstructure:"longitude"`

	// Elevation in meters above sea level
	Elevation float64 `json:"elevation" mapstructure:"elevation"`
}

// ModelingConfig contains the defaults of a modeling run.
type ModelingConfig struct {
	// Mode is refine, sync or analyse
	Mode string `json:"mode" mapstructure:"mode"`

	// Plan is base, grid, dense, normal, dso, timechange, hysterese or file
	Plan      string  `json:"plan" mapstructure:"plan"`
	PointFile string  `json:"point_file" mapstructure:"point_file"`
	GridRows  int     `json:"grid_rows" mapstructure:"grid_rows"`
	GridCols  int     `json:"grid_cols" mapstructure:"grid_cols"`
	AltMin    float64 `json:"alt_min" mapstructure:"alt_min"`
	AltMax    float64 `json:"alt_max" mapstructure:"alt_max"`

	// BaseAzimuth is the azimuth of the first base point; the others follow
	// at 120° steps
	BaseAzimuth float64 `json:"base_azimuth" mapstructure:"base_azimuth"`

	SettlingSeconds     float64 `json:"settling_seconds" mapstructure:"settling_seconds"`
	SlewTimeoutSeconds  float64 `json:"slew_timeout_seconds" mapstructure:"slew_timeout_seconds"`
	SolveTimeoutSeconds float64 `json:"solve_timeout_seconds" mapstructure:"solve_timeout_seconds"`

	Exposure   float64 `json:"exposure" mapstructure:"exposure"`
	Binning    int     `json:"binning" mapstructure:"binning"`
	PixelScale float64 `json:"pixel_scale" mapstructure:"pixel_scale"`
	BlindSolve bool    `json:"blind_solve" mapstructure:"blind_solve"`
	Tracking   bool    `json:"tracking" mapstructure:"tracking"`

	// TargetRMS is the goal of the target RMS optimisation, arc seconds
	TargetRMS float64 `json:"target_rms" mapstructure:"target_rms"`
}

// RefractionConfig selects when weather data is pushed to the mount.
type RefractionConfig struct {
	WhenNotTracking  bool `json:"when_not_tracking" mapstructure:"when_not_tracking"`
	DuringIdleCamera bool `json:"during_idle_camera" mapstructure:"during_idle_camera"`
}

// HorizonConfig points at the local horizon file.
type HorizonConfig struct {
	// File holds "az alt" lines or YAML samples; empty means a flat horizon
	File string `json:"file" mapstructure:"file"`

	// Floor is the minimum altitude applied everywhere, degrees
	Floor float64 `json:"floor" mapstructure:"floor"`
}

// StoreConfig contains the measurement store settings.
type StoreConfig struct {
	// Driver is sqlite, postgres or file
	Driver string `json:"driver" mapstructure:"driver"`

	// Path is the SQLite database file or the directory of the file store
	Path string `json:"path" mapstructure:"path"`

	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password" mapstructure:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" mapstructure:"ssl_mode"`

	MaxOpenConns int `json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// AlpacaConfig addresses one ASCOM Alpaca device.
type AlpacaConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// BaseURL is the Alpaca server address (e.g., "http://192.168.1.100:11111")
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// DeviceNumber is the Alpaca device number (typically 0)
	DeviceNumber int `json:"device_number" mapstructure:"device_number"`

	// RequestsPerSecond paces requests to the device
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`

	// PollSeconds is how often readings are refreshed
	PollSeconds float64 `json:"poll_seconds" mapstructure:"poll_seconds"`
}

// ImagerConfig configures the external capture program.
type ImagerConfig struct {
	// Command is run once per exposure; empty disables imaging
	Command string `json:"command" mapstructure:"command"`

	// Args are passed before the generated exposure flags
	Args []string `json:"args" mapstructure:"args"`

	// Directory receives the images
	Directory string `json:"directory" mapstructure:"directory"`

	// SizeX and SizeY are the unbinned sensor dimensions
	SizeX int `json:"size_x" mapstructure:"size_x"`
	SizeY int `json:"size_y" mapstructure:"size_y"`
}

// SolverConfig configures the ASTAP plate solver.
type SolverConfig struct {
	// Path is the astap executable
	Path string `json:"path" mapstructure:"path"`

	// DatabasePath is the star database directory; empty uses ASTAP's default
	DatabasePath string `json:"database_path" mapstructure:"database_path"`

	// SearchRadius limits hinted solves, degrees
	SearchRadius float64 `json:"search_radius" mapstructure:"search_radius"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" mapstructure:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" mapstructure:"host"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// Load reads configuration from a JSON or YAML file and applies
// MOUNT_MODELER_* environment overrides. If the file doesn't exist, the
// defaults are used.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType(configType(path))
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// configType maps the file extension to a viper format; anything unknown
// is read as JSON.
func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mount: MountConfig{
			Host:            "192.168.2.15",
			Port:            3492,
			TimeoutSeconds:  60,
			TickMillis:      200,
			QueueSize:       16,
			MeasurementSlot: "ACTUAL",
		},
		Site: SiteConfig{
			Name: "Observatory",
		},
		Modeling: ModelingConfig{
			Mode:                "refine",
			Plan:                "normal",
			GridRows:            3,
			GridCols:            6,
			AltMin:              30,
			AltMax:              75,
			BaseAzimuth:         10,
			SettlingSeconds:     1,
			SlewTimeoutSeconds:  120,
			SolveTimeoutSeconds: 60,
			Exposure:            3,
			Binning:             1,
			TargetRMS:           10,
		},
		Refraction: RefractionConfig{
			WhenNotTracking: true,
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			Path:         "mount-modeler.db",
			Host:         "localhost",
			Port:         5432,
			Database:     "mountmodeler",
			Username:     "mountmodeler",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Dome: AlpacaConfig{
			BaseURL:           "http://localhost:11111",
			RequestsPerSecond: 5,
			PollSeconds:       1,
		},
		Environment: AlpacaConfig{
			BaseURL:           "http://localhost:11111",
			RequestsPerSecond: 2,
			PollSeconds:       30,
		},
		Imager: ImagerConfig{
			Directory: "images",
		},
		Solver: SolverConfig{
			Path:         "astap",
			SearchRadius: 10,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    "8080",
			Host:    "0.0.0.0",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks values the components cannot work around.
func (c *Config) Validate() error {
	var errs []error
	if c.Mount.Host == "" {
		errs = append(errs, errors.New("mount.host is required"))
	}
	if c.Mount.Port < 1 || c.Mount.Port > 65535 {
		errs = append(errs, fmt.Errorf("mount.port %d out of range", c.Mount.Port))
	}
	if c.Mount.TickMillis < 10 {
		errs = append(errs, fmt.Errorf("mount.tick_millis %d too small", c.Mount.TickMillis))
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		errs = append(errs, fmt.Errorf("site.latitude %.2f out of range", c.Site.Latitude))
	}
	if c.Modeling.AltMin < 0 || c.Modeling.AltMax > 90 || c.Modeling.AltMin >= c.Modeling.AltMax {
		errs = append(errs, fmt.Errorf("modeling altitude range %.1f..%.1f invalid", c.Modeling.AltMin, c.Modeling.AltMax))
	}
	if c.Modeling.BaseAzimuth < 0 || c.Modeling.BaseAzimuth >= 360 {
		errs = append(errs, fmt.Errorf("modeling.base_azimuth %.1f out of range", c.Modeling.BaseAzimuth))
	}
	if c.Horizon.Floor < 0 || c.Horizon.Floor >= 90 {
		errs = append(errs, fmt.Errorf("horizon.floor %.1f out of range", c.Horizon.Floor))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "file":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q unknown", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// Tick returns the dispatcher tick.
func (m MountConfig) Tick() time.Duration {
	return time.Duration(m.TickMillis) * time.Millisecond
}

// Timeout returns the exchange timeout.
func (m MountConfig) Timeout() time.Duration {
	return seconds(m.TimeoutSeconds)
}

// PollInterval returns the device poll interval.
func (a AlpacaConfig) PollInterval() time.Duration {
	return seconds(a.PollSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

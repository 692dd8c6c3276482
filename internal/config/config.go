// Package config loads the antenna tracker's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/orbit"
	"github.com/signalsfoundry/antenna-tracker/telemetry"
	"github.com/signalsfoundry/antenna-tracker/tracking"
)

// Config is the top-level application configuration.
type Config struct {
	Observer  model.Location  `yaml:"observer"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Orbit     OrbitConfig     `yaml:"orbit"`
	Ops       OpsConfig       `yaml:"ops"`
}

// TelemetryConfig defines the UDP telemetry receiver.
type TelemetryConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	MaxDatagram int           `yaml:"max_datagram"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Autostart   bool          `yaml:"autostart"`
}

// TrackingConfig defines the control loop.
type TrackingConfig struct {
	Period          time.Duration `yaml:"period"`
	MinElevationDeg float64       `yaml:"min_elevation_deg"`
	// TimeOffset shifts the propagation clock, for replaying a pass.
	TimeOffset time.Duration `yaml:"time_offset"`
}

// OrbitConfig defines where element sets come from. TLEFile takes precedence
// over TLEURL when both are set.
type OrbitConfig struct {
	TLEURL       string        `yaml:"tle_url"`
	TLEFile      string        `yaml:"tle_file"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// OpsConfig defines the operator-facing listeners. An empty address disables
// the listener.
type OpsConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// Defaults returns a Config with the stock observer and ports.
func Defaults() *Config {
	return &Config{
		Observer: model.Location{Latitude: 40.0, Longitude: -73.0},
		Telemetry: TelemetryConfig{
			Port:        telemetry.DefaultPort,
			MaxDatagram: telemetry.DefaultMaxDatagramSize,
			ReadTimeout: telemetry.DefaultReadTimeout,
			Autostart:   true,
		},
		Tracking: TrackingConfig{
			Period:          tracking.DefaultPeriod,
			MinElevationDeg: orbit.DefaultMinElevationDeg,
		},
		Orbit: OrbitConfig{
			TLEURL:       orbit.DefaultTLEURL,
			FetchTimeout: 30 * time.Second,
		},
		Ops: OpsConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
	}
}

// Load reads a YAML config file over the defaults. If the file doesn't
// exist, defaults are used. An empty path also means defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Observer.Validate(); err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	if c.Telemetry.Port < 0 || c.Telemetry.Port > 65535 {
		return fmt.Errorf("telemetry.port %d out of range", c.Telemetry.Port)
	}
	if c.Telemetry.MaxDatagram < 0 || c.Telemetry.MaxDatagram > 65507 {
		return fmt.Errorf("telemetry.max_datagram %d out of range", c.Telemetry.MaxDatagram)
	}
	if c.Telemetry.ReadTimeout < 0 {
		return fmt.Errorf("telemetry.read_timeout must not be negative")
	}
	if c.Tracking.Period <= 0 {
		return fmt.Errorf("tracking.period must be positive")
	}
	if c.Tracking.MinElevationDeg < -90 || c.Tracking.MinElevationDeg > 90 {
		return fmt.Errorf("tracking.min_elevation_deg %v out of range", c.Tracking.MinElevationDeg)
	}
	if c.Orbit.TLEURL == "" && c.Orbit.TLEFile == "" {
		return fmt.Errorf("orbit: one of tle_url or tle_file is required")
	}
	if c.Orbit.FetchTimeout < 0 {
		return fmt.Errorf("orbit.fetch_timeout must not be negative")
	}
	return nil
}

// LinkConfig converts the telemetry section for telemetry.Open.
func (c *Config) LinkConfig() telemetry.LinkConfig {
	return telemetry.LinkConfig{
		Host:            c.Telemetry.Host,
		Port:            c.Telemetry.Port,
		MaxDatagramSize: c.Telemetry.MaxDatagram,
		ReadTimeout:     c.Telemetry.ReadTimeout,
	}
}

// Fetcher returns the element set source described by the orbit section.
func (c *Config) Fetcher() orbit.Fetcher {
	if c.Orbit.TLEFile != "" {
		return &orbit.FileFetcher{Path: c.Orbit.TLEFile}
	}
	return &orbit.HTTPFetcher{URL: c.Orbit.TLEURL, Timeout: c.Orbit.FetchTimeout}
}

// Package config loads pitotd configuration from JSON files. All fields are
// pointers so a partial file overrides only what it names; the Get* methods
// supply defaults for everything left nil.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cojmeister/ms4525do/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
// This is the single source of truth for all default daemon settings.
const DefaultConfigPath = "config/pitot.defaults.json"

// Transport names accepted by the "transport" field.
const (
	TransportDevfs  = "devfs"
	TransportUSBISS = "usbiss"
	TransportSim    = "sim"
)

// Config represents the root configuration for the pitot daemon.
// The schema matches the pitotd flags so the same names work in both.
type Config struct {
	ListenAddr    *string `json:"listen_addr,omitempty"`
	DBPath        *string `json:"db_path,omitempty"`
	MigrationsDir *string `json:"migrations_dir,omitempty"`

	// Sensor transport
	Transport     *string  `json:"transport,omitempty"` // devfs, usbiss or sim
	I2CDevice     *string  `json:"i2c_device,omitempty"`
	SerialPort    *string  `json:"serial_port,omitempty"`
	SensorAddress *int     `json:"sensor_address,omitempty"`
	FullScalePSI  *float64 `json:"full_scale_psi,omitempty"`

	// Sampling params
	SampleInterval *string `json:"sample_interval,omitempty"` // duration string like "20ms"
	ErrorBackoff   *string `json:"error_backoff,omitempty"`   // duration string like "100ms"

	// Default display units for API responses
	Units *string `json:"units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
// Use LoadConfig to load actual values from a file.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Transport != nil {
		switch *c.Transport {
		case TransportDevfs, TransportUSBISS, TransportSim:
		default:
			return fmt.Errorf("transport must be one of devfs, usbiss, sim; got %q", *c.Transport)
		}
	}

	// 7-bit addresses outside the reserved low/high ranges
	if c.SensorAddress != nil {
		if *c.SensorAddress < 0x08 || *c.SensorAddress > 0x77 {
			return fmt.Errorf("sensor_address must be between 0x08 and 0x77, got %#02x", *c.SensorAddress)
		}
	}

	if c.FullScalePSI != nil && *c.FullScalePSI <= 0 {
		return fmt.Errorf("full_scale_psi must be positive, got %f", *c.FullScalePSI)
	}

	// Validate SampleInterval can be parsed if set
	if c.SampleInterval != nil && *c.SampleInterval != "" {
		if _, err := time.ParseDuration(*c.SampleInterval); err != nil {
			return fmt.Errorf("invalid sample_interval '%s': %w", *c.SampleInterval, err)
		}
	}

	// Validate ErrorBackoff can be parsed if set
	if c.ErrorBackoff != nil && *c.ErrorBackoff != "" {
		if _, err := time.ParseDuration(*c.ErrorBackoff); err != nil {
			return fmt.Errorf("invalid error_backoff '%s': %w", *c.ErrorBackoff, err)
		}
	}

	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s; got %q", units.GetValidUnitsString(), *c.Units)
	}

	return nil
}

// GetListenAddr returns the listen_addr value or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080" // default
	}
	return *c.ListenAddr
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "pitot.db" // default
	}
	return *c.DBPath
}

// GetMigrationsDir returns the migrations_dir value or the default.
func (c *Config) GetMigrationsDir() string {
	if c.MigrationsDir == nil || *c.MigrationsDir == "" {
		return "migrations" // default
	}
	return *c.MigrationsDir
}

// GetTransport returns the transport value or the default.
func (c *Config) GetTransport() string {
	if c.Transport == nil || *c.Transport == "" {
		return TransportDevfs // default: kernel i2c-dev
	}
	return *c.Transport
}

// GetI2CDevice returns the i2c_device value or the default.
func (c *Config) GetI2CDevice() string {
	if c.I2CDevice == nil || *c.I2CDevice == "" {
		return "/dev/i2c-1" // default: Raspberry Pi primary bus
	}
	return *c.I2CDevice
}

// GetSerialPort returns the serial_port value or the default.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0" // default: USB-ISS CDC device
	}
	return *c.SerialPort
}

// GetSensorAddress returns the sensor_address value or the default.
func (c *Config) GetSensorAddress() int {
	if c.SensorAddress == nil {
		return 0x28 // default: MS4525DO interface type A
	}
	return *c.SensorAddress
}

// GetFullScalePSI returns the full_scale_psi value or the default.
func (c *Config) GetFullScalePSI() float64 {
	if c.FullScalePSI == nil {
		return 1.0 // default: ±1 psi part
	}
	return *c.FullScalePSI
}

// GetSampleInterval parses and returns the SampleInterval as a time.Duration.
func (c *Config) GetSampleInterval() time.Duration {
	if c.SampleInterval == nil || *c.SampleInterval == "" {
		return 20 * time.Millisecond // default: 50 Hz
	}
	d, err := time.ParseDuration(*c.SampleInterval)
	if err != nil {
		return 20 * time.Millisecond // default on parse error
	}
	return d
}

// GetErrorBackoff parses and returns the ErrorBackoff as a time.Duration.
func (c *Config) GetErrorBackoff() time.Duration {
	if c.ErrorBackoff == nil || *c.ErrorBackoff == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ErrorBackoff)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetUnits returns the units value or the default.
func (c *Config) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return units.MPS // default
	}
	return *c.Units
}

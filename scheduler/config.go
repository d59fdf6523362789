package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/fleetcharge/simulator"
	"github.com/devskill-org/fleetcharge/tariff"
)

// SiteConfig describes one managed property: its grid connection, EV fleet,
// tariff and optional hardware endpoints.
type SiteConfig struct {
	Name     string             `json:"name"`
	Property simulator.Property `json:"property"`
	Fleet    simulator.Fleet    `json:"fleet"`
	Tariff   tariff.GridTariff  `json:"tariff"`

	// Baseload meter (Modbus TCP). Empty address disables measurement and
	// the site runs on a synthetic baseload profile.
	MeterAddress string `json:"meter_address"`
	MeterSlaveID int    `json:"meter_slave_id"`

	// Charger control endpoint. Empty means dispatch is logged only.
	ChargerAPIURL string `json:"charger_api_url"`
}

// Config represents the configuration for the fleet charging scheduler.
type Config struct {
	// Scheduler settings
	OptimizationHour int           `json:"optimization_hour"` // local hour of the nightly run
	HorizonDays      int           `json:"horizon_days"`      // days ahead to plan
	DispatchInterval time.Duration `json:"dispatch_interval"` // how often setpoints are pushed
	DryRun           bool          `json:"dry_run"`           // simulate actions without executing

	// API settings
	SecurityToken string        `json:"security_token"` // ENTSO-E API token
	APIBaseURL    string        `json:"api_base_url"`   // ENTSO-E endpoint override
	APITimeout    time.Duration `json:"api_timeout"`    // Timeout for API calls

	// Logging settings
	LogLevel  string `json:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `json:"log_format"` // Log format: text, json

	// Timezone configuration
	Location string `json:"location"` // Timezone the tariff rules apply in

	// Baseload measurement
	MeterPollInterval  time.Duration `json:"meter_poll_interval"`  // Poll interval for the meters
	ProfileIntegration time.Duration `json:"profile_integration"`  // How often samples fold into the profile
	PostgresConnString string        `json:"postgres_conn_string"` // PostgreSQL connection string

	// Advanced settings
	HealthCheckPort int `json:"health_check_port"` // Port for health check endpoint (0 = disabled)

	// Managed sites
	Sites []SiteConfig `json:"sites"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		OptimizationHour:   19, // day-ahead prices are published early afternoon CET
		HorizonDays:        1,
		DispatchInterval:   1 * time.Hour,
		DryRun:             false,
		APITimeout:         30 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
		Location:           "Europe/Stockholm",
		MeterPollInterval:  30 * time.Second,
		ProfileIntegration: 15 * time.Minute,
		PostgresConnString: "",
		HealthCheckPort:    0,
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.OptimizationHour < 0 || c.OptimizationHour > 23 {
		return fmt.Errorf("optimization_hour must be between 0 and 23, got: %d", c.OptimizationHour)
	}

	if c.HorizonDays < 1 {
		return fmt.Errorf("horizon_days must be at least 1, got: %d", c.HorizonDays)
	}

	if c.DispatchInterval <= 0 {
		return fmt.Errorf("dispatch_interval must be greater than 0, got: %s", c.DispatchInterval)
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be greater than 0, got: %s", c.APITimeout)
	}

	if c.MeterPollInterval <= 0 {
		return fmt.Errorf("meter_poll_interval must be greater than 0, got: %s", c.MeterPollInterval)
	}

	if c.ProfileIntegration <= 0 {
		return fmt.Errorf("profile_integration must be greater than 0, got: %s", c.ProfileIntegration)
	}

	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("health_check_port must be between 0 and 65535, got: %d", c.HealthCheckPort)
	}

	if c.Location == "" {
		return fmt.Errorf("location cannot be empty")
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	// Validate log format
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	names := make(map[string]bool, len(c.Sites))
	for i := range c.Sites {
		site := &c.Sites[i]
		if site.Name == "" {
			return fmt.Errorf("site %d: name cannot be empty", i)
		}
		if names[site.Name] {
			return fmt.Errorf("duplicate site name: %s", site.Name)
		}
		names[site.Name] = true

		if err := site.Property.Validate(); err != nil {
			return fmt.Errorf("site %s: invalid property: %w", site.Name, err)
		}
		if err := site.Fleet.Validate(); err != nil {
			return fmt.Errorf("site %s: invalid fleet: %w", site.Name, err)
		}
		if err := site.Tariff.Validate(); err != nil {
			return fmt.Errorf("site %s: invalid tariff: %w", site.Name, err)
		}
		if site.MeterSlaveID < 0 || site.MeterSlaveID > 255 {
			return fmt.Errorf("site %s: meter_slave_id must be between 0 and 255, got: %d", site.Name, site.MeterSlaveID)
		}
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		DispatchInterval   string `json:"dispatch_interval"`
		APITimeout         string `json:"api_timeout"`
		MeterPollInterval  string `json:"meter_poll_interval"`
		ProfileIntegration string `json:"profile_integration"`
	}{
		Alias:              (*Alias)(c),
		DispatchInterval:   c.DispatchInterval.String(),
		APITimeout:         c.APITimeout.String(),
		MeterPollInterval:  c.MeterPollInterval.String(),
		ProfileIntegration: c.ProfileIntegration.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		DispatchInterval   string `json:"dispatch_interval"`
		APITimeout         string `json:"api_timeout"`
		MeterPollInterval  string `json:"meter_poll_interval"`
		ProfileIntegration string `json:"profile_integration"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.DispatchInterval != "" {
		if c.DispatchInterval, err = time.ParseDuration(aux.DispatchInterval); err != nil {
			return fmt.Errorf("invalid dispatch_interval: %w", err)
		}
	}

	if aux.APITimeout != "" {
		if c.APITimeout, err = time.ParseDuration(aux.APITimeout); err != nil {
			return fmt.Errorf("invalid api_timeout: %w", err)
		}
	}

	if aux.MeterPollInterval != "" {
		if c.MeterPollInterval, err = time.ParseDuration(aux.MeterPollInterval); err != nil {
			return fmt.Errorf("invalid meter_poll_interval: %w", err)
		}
	}

	if aux.ProfileIntegration != "" {
		if c.ProfileIntegration, err = time.ParseDuration(aux.ProfileIntegration); err != nil {
			return fmt.Errorf("invalid profile_integration: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

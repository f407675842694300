package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Config represents the meterhub daemon configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds the exposition server configuration
type ServerConfig struct {
	Address        string        `yaml:"address" mapstructure:"address"`
	Port           int           `yaml:"port" mapstructure:"port"`
	Path           string        `yaml:"path" mapstructure:"path"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	StreamInterval time.Duration `yaml:"stream_interval" mapstructure:"stream_interval"`
}

// MetricsConfig holds aggregation defaults applied to metrics the daemon
// creates on its own behalf
type MetricsConfig struct {
	Namespace         string    `yaml:"namespace" mapstructure:"namespace"`
	DefaultQuantiles  []float64 `yaml:"default_quantiles" mapstructure:"default_quantiles"`
	QuantileWindow    int       `yaml:"quantile_window" mapstructure:"quantile_window"`
	RuntimeCollectors bool      `yaml:"runtime_collectors" mapstructure:"runtime_collectors"`
	ProcessCollectors bool      `yaml:"process_collectors" mapstructure:"process_collectors"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
	Exporter     string  `yaml:"exporter" mapstructure:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// Default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "localhost",
			Port:           9090,
			Path:           "/metrics",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			StreamInterval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace:         "meterhub",
			DefaultQuantiles:  []float64{0.5, 0.95, 0.99},
			QuantileWindow:    16384,
			RuntimeCollectors: true,
			ProcessCollectors: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputFile: "",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "meterhub",
			Exporter:     "stdout",
			OTLPEndpoint: "localhost:4318",
			SampleRatio:  1.0,
		},
	}
}

// configSchema is the JSON Schema the loaded document must satisfy before it
// is unmarshalled. It catches structural mistakes (wrong types, unknown
// sections) earlier and with better messages than mapstructure would.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"server": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"address": {"type": "string"},
				"port": {"type": "integer", "minimum": 1, "maximum": 65535},
				"path": {"type": "string"},
				"read_timeout": {"type": ["string", "integer"]},
				"write_timeout": {"type": ["string", "integer"]},
				"stream_interval": {"type": ["string", "integer"]}
			}
		},
		"metrics": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"namespace": {"type": "string"},
				"default_quantiles": {
					"type": "array",
					"items": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"quantile_window": {"type": "integer", "minimum": 1},
				"runtime_collectors": {"type": "boolean"},
				"process_collectors": {"type": "boolean"}
			}
		},
		"logging": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
				"format": {"type": "string", "enum": ["json", "text", "console"]},
				"output_file": {"type": "string"}
			}
		},
		"tracing": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"enabled": {"type": "boolean"},
				"service_name": {"type": "string"},
				"exporter": {"type": "string", "enum": ["stdout", "otlp"]},
				"otlp_endpoint": {"type": "string"},
				"sample_ratio": {"type": "number", "minimum": 0, "maximum": 1}
			}
		}
	}
}`

// LoadConfig loads configuration from files and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Initialize viper
	v := viper.New()

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config file in common locations
		v.SetConfigName("meterhubd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.config/meterhub")
		v.AddConfigPath("/etc/meterhub")
	}

	// Environment variable settings
	v.SetEnvPrefix("METERHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Validate the raw document against the schema before unmarshalling
	if used := v.ConfigFileUsed(); used != "" {
		if err := validateSchema(used); err != nil {
			return nil, err
		}
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateSchema checks the YAML document at path against configSchema.
func validateSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc == nil {
		return nil
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("invalid metrics path: %s (must start with /)", c.Server.Path)
	}

	if c.Server.StreamInterval <= 0 {
		return fmt.Errorf("stream interval must be positive")
	}

	for _, q := range c.Metrics.DefaultQuantiles {
		if q < 0 || q > 1 {
			return fmt.Errorf("invalid quantile: %v (must be between 0 and 1)", q)
		}
	}

	if c.Metrics.QuantileWindow < 1 {
		return fmt.Errorf("quantile window must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		if c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
			return fmt.Errorf("invalid tracing exporter: %s (must be stdout or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("otlp endpoint cannot be empty when the otlp exporter is selected")
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("invalid sample ratio: %v (must be between 0 and 1)", c.Tracing.SampleRatio)
		}
	}

	return nil
}

// CreateDirectories creates necessary directories based on configuration
func (c *Config) CreateDirectories() error {
	var dirs []string

	// Add log file directory if specified
	if c.Logging.OutputFile != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.OutputFile))
	}

	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

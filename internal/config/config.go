package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rategate/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envUint(name string, dst *uint) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 0); err == nil {
			*dst = uint(n)
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// loadFromEnvironment loads configuration from RATEGATE_* environment
// variables. Values that fail to parse are ignored.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("RATEGATE_PORT", &config.Server.Port)
	envString("RATEGATE_HOST", &config.Server.Host)
	envDuration("RATEGATE_READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("RATEGATE_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("RATEGATE_IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("RATEGATE_TLS_ENABLED", &config.Server.TLSEnabled)
	envString("RATEGATE_TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("RATEGATE_TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Limits configuration
	envBool("RATEGATE_LIMITS_ENABLED", &config.Limits.Enabled)
	envUint("RATEGATE_ANONYMOUS_CAPACITY", &config.Limits.Anonymous.Capacity)
	envDuration("RATEGATE_ANONYMOUS_WINDOW", &config.Limits.Anonymous.Window)
	envUint("RATEGATE_AUTHENTICATED_CAPACITY", &config.Limits.Authenticated.Capacity)
	envDuration("RATEGATE_AUTHENTICATED_WINDOW", &config.Limits.Authenticated.Window)
	envString("RATEGATE_API_KEY_HEADER", &config.Limits.APIKeyHeader)
	envBool("RATEGATE_TRUST_PROXY_HEADERS", &config.Limits.TrustProxyHeaders)
	envInt("RATEGATE_SHARDS", &config.Limits.Shards)

	// Logging configuration
	envString("RATEGATE_LOG_LEVEL", &config.Logging.Level)
	envString("RATEGATE_LOG_FORMAT", &config.Logging.Format)
	envString("RATEGATE_LOG_OUTPUT", &config.Logging.Output)
	envString("RATEGATE_LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("RATEGATE_METRICS_ENABLED", &config.Metrics.Enabled)
	envString("RATEGATE_METRICS_PATH", &config.Metrics.Path)
	envInt("RATEGATE_METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("RATEGATE_SERVICE_NAME", &config.Observability.ServiceName)
	envBool("RATEGATE_TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("RATEGATE_TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("RATEGATE_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if rate := os.Getenv("RATEGATE_TRACING_SAMPLE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = f
		}
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Example proxy and tracing settings
	config.Limits.TrustProxyHeaders = true
	config.Observability.Tracing.Exporter = "otlp"
	config.Observability.Tracing.OTLPEndpoint = "localhost:4317"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

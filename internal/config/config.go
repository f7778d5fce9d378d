package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/docgate/internal/db/elastic"
)

// Config holds the docgate configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	IDGen        IDGenConfig        `yaml:"idgen"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Documents    DocumentsConfig    `yaml:"documents"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// NodeConfig is one cluster member.
type NodeConfig struct {
	Host          string `yaml:"host"`
	TransportPort int    `yaml:"transport_port"`
}

// ClusterConfig describes the backend cluster.
type ClusterConfig struct {
	Name             string       `yaml:"name"`
	Driver           string       `yaml:"driver"` // redis, elastic, typesense, memory
	Scheme           string       `yaml:"scheme"`
	Nodes            []NodeConfig `yaml:"nodes"`
	HTTPPorts        []int        `yaml:"http_ports"`
	Username         string       `yaml:"username"`
	Password         string       `yaml:"password"`
	APIKey           string       `yaml:"api_key"`
	KeyPrefix        string       `yaml:"key_prefix"`
	ReadinessTimeout int          `yaml:"readiness_timeout_sec"`
}

// IDGenConfig holds id allocator settings.
type IDGenConfig struct {
	NodeID  int   `yaml:"node_id"`
	EpochMS int64 `yaml:"epoch_ms"` // 0 keeps the allocator's default epoch
}

// Epoch returns the configured epoch, or the zero time when unset.
func (c IDGenConfig) Epoch() time.Time {
	if c.EpochMS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.EpochMS)
}

// ProvisioningConfig controls startup index and seed loading.
type ProvisioningConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DocumentsConfig holds document access settings.
type DocumentsConfig struct {
	Index           string `yaml:"index"`
	Type            string `yaml:"type"`
	UpdatePolicy    string `yaml:"update_policy"` // best_effort, strict
	IDMatch         string `yaml:"id_match"`      // wildcard, exact
	DefaultPageSize int    `yaml:"default_page_size"`
	MaxPageSize     int    `yaml:"max_page_size"`
	MaxBatchSize    int    `yaml:"max_batch_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cluster.Name == "" {
		c.Cluster.Name = "default"
	}
	if c.Cluster.Driver == "" {
		c.Cluster.Driver = "elastic"
	}
	if c.Cluster.Scheme == "" {
		c.Cluster.Scheme = "http"
	}
	if c.Cluster.ReadinessTimeout <= 0 {
		c.Cluster.ReadinessTimeout = 10
	}
	if c.Provisioning.Dir == "" {
		c.Provisioning.Dir = "provision"
	}
	if c.Documents.Type == "" {
		c.Documents.Type = c.Documents.Index
	}
	if c.Documents.UpdatePolicy == "" {
		c.Documents.UpdatePolicy = "best_effort"
	}
	if c.Documents.IDMatch == "" {
		c.Documents.IDMatch = "wildcard"
	}
	if c.Documents.DefaultPageSize <= 0 {
		c.Documents.DefaultPageSize = 25
	}
	if c.Documents.MaxPageSize <= 0 {
		c.Documents.MaxPageSize = 1000
	}
	if c.Documents.MaxBatchSize <= 0 {
		c.Documents.MaxBatchSize = 500
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Cluster.Driver != "memory" && len(c.Cluster.Nodes) == 0 {
		return fmt.Errorf("cluster.nodes is required for driver %q", c.Cluster.Driver)
	}
	for i, n := range c.Cluster.Nodes {
		if n.Host == "" {
			return fmt.Errorf("cluster.nodes[%d].host is required", i)
		}
	}
	if len(c.Cluster.HTTPPorts) > len(c.Cluster.Nodes) {
		return fmt.Errorf("cluster.http_ports has %d entries for %d nodes",
			len(c.Cluster.HTTPPorts), len(c.Cluster.Nodes))
	}
	switch c.Cluster.Driver {
	case "elastic", "elasticsearch":
		if err := elastic.ValidateIndexPrefix(c.Cluster.KeyPrefix); err != nil {
			return fmt.Errorf("cluster.key_prefix: %w", err)
		}
	}
	if c.IDGen.NodeID < 0 || c.IDGen.NodeID > 1023 {
		return fmt.Errorf("idgen.node_id must be between 0 and 1023, got %d", c.IDGen.NodeID)
	}
	if c.Documents.Index == "" {
		return fmt.Errorf("documents.index is required")
	}
	switch c.Documents.UpdatePolicy {
	case "best_effort", "strict":
	default:
		return fmt.Errorf("documents.update_policy must be \"best_effort\" or \"strict\", got %q",
			c.Documents.UpdatePolicy)
	}
	switch c.Documents.IDMatch {
	case "wildcard", "exact":
	default:
		return fmt.Errorf("documents.id_match must be \"wildcard\" or \"exact\", got %q", c.Documents.IDMatch)
	}
	if c.Documents.DefaultPageSize > c.Documents.MaxPageSize {
		return fmt.Errorf("documents.default_page_size %d exceeds max_page_size %d",
			c.Documents.DefaultPageSize, c.Documents.MaxPageSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

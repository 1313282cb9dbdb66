package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/strataconf/strata/pkg/remote"
	"github.com/strataconf/strata/pkg/telemetry"
)

// ConfigFileName is the workspace configuration file name.
const ConfigFileName = "strata.yaml"

const (
	defaultHistoryPath = ".strata/history.db"
	defaultHistoryKeep = 50
)

var validate = validator.New()

// Config is the parsed strata.yaml workspace configuration.
type Config struct {
	// Version is the configuration format version.
	Version int `yaml:"version" validate:"required,eq=1"`

	// Name identifies the workspace in logs and telemetry.
	Name string `yaml:"name,omitempty"`

	// Root is the document root directory, relative to the config file
	// unless absolute.
	Root string `yaml:"root" validate:"required"`

	// Types declares the document types living under the root.
	Types []TypeConfig `yaml:"types" validate:"required,min=1,dive"`

	// History configures the revision history database.
	History HistoryConfig `yaml:"history,omitempty"`

	// Policies configures the write-gate policy engine.
	Policies PolicyConfig `yaml:"policies,omitempty"`

	// Remotes lists the sync targets for push and pull.
	Remotes []remote.Config `yaml:"remotes,omitempty"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// dir is the directory containing the config file. Set by Load.
	dir string
}

// TypeConfig declares one document type.
type TypeConfig struct {
	// Name is the document type name.
	Name string `yaml:"name" validate:"required"`

	// Pattern is the doublestar pattern matching this type's document
	// identifiers, for example "profiles/**". Earlier types win when
	// patterns overlap.
	Pattern string `yaml:"pattern" validate:"required"`

	// Mode is the behavior mode: settings, state, or output.
	Mode string `yaml:"mode" validate:"required,oneof=settings state output"`

	// Schema is the schema manifest path, relative to the config file.
	// Required except for output types.
	Schema string `yaml:"schema,omitempty"`

	// SchemaRef overrides the manifest's $schema reference string.
	SchemaRef string `yaml:"schema_ref,omitempty"`

	// Constraints is an optional CUE constraint file checked against
	// resolved trees of this type.
	Constraints string `yaml:"constraints,omitempty"`
}

// HistoryConfig configures the revision history database. History is on
// unless explicitly disabled.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`

	// Keep is how many revisions per document survive auto-pruning
	// after a write. Zero applies the default; a negative value
	// disables pruning.
	Keep int `yaml:"keep,omitempty"`
}

// IsEnabled reports whether history recording is on.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// PolicyConfig configures the policy engine. Policies are on unless
// explicitly disabled; with no paths only the builtin policies load.
type PolicyConfig struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
}

// IsEnabled reports whether policy gating is on.
func (p PolicyConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// TelemetryConfig is the workspace view of the telemetry settings.
type TelemetryConfig struct {
	LogLevel        string `yaml:"log_level,omitempty"`
	LogFormat       string `yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	MetricsEnabled  bool   `yaml:"metrics_enabled,omitempty"`
	MetricsListen   string `yaml:"metrics_listen,omitempty"`
	TracingEnabled  bool   `yaml:"tracing_enabled,omitempty"`
	TracingExporter string `yaml:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string `yaml:"tracing_endpoint,omitempty"`
}

// Build maps the workspace settings onto a full telemetry configuration.
func (t TelemetryConfig) Build(serviceName, serviceVersion string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = serviceName
	cfg.ServiceVersion = serviceVersion

	if t.LogLevel != "" {
		cfg.Logging.Level = t.LogLevel
	}
	if t.LogFormat != "" {
		cfg.Logging.Format = t.LogFormat
	}
	cfg.Metrics.Enabled = t.MetricsEnabled
	if t.MetricsListen != "" {
		cfg.Metrics.ListenAddress = t.MetricsListen
	}
	cfg.Tracing.Enabled = t.TracingEnabled
	if t.TracingExporter != "" {
		cfg.Tracing.Exporter = t.TracingExporter
	}
	if t.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = t.TracingEndpoint
	}
	return cfg
}

// Load reads and validates a workspace configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workspace config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(abs)
	return cfg, nil
}

// Parse parses and validates workspace configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.History.Path == "" {
		cfg.History.Path = defaultHistoryPath
	}
	if cfg.History.Keep == 0 {
		cfg.History.Keep = defaultHistoryKeep
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Locate walks from startDir toward the filesystem root looking for a
// strata.yaml and returns its path.
func Locate(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %s: %w", startDir, err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found in %s or any parent directory", ConfigFileName, startDir)
		}
		dir = parent
	}
}

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid workspace config: %w", err)
	}

	typeNames := make(map[string]bool, len(c.Types))
	for i := range c.Types {
		t := &c.Types[i]

		if typeNames[t.Name] {
			return fmt.Errorf("document type %q declared twice", t.Name)
		}
		typeNames[t.Name] = true

		if !doublestar.ValidatePattern(t.Pattern) {
			return fmt.Errorf("document type %q: invalid pattern %q", t.Name, t.Pattern)
		}
		if t.Schema == "" && t.Mode != "output" {
			return fmt.Errorf("document type %q: %s documents require a schema manifest", t.Name, t.Mode)
		}
	}

	remoteNames := make(map[string]bool, len(c.Remotes))
	for i := range c.Remotes {
		name := c.Remotes[i].Name
		if name == "" {
			return fmt.Errorf("remote %d: name is required", i)
		}
		if remoteNames[name] {
			return fmt.Errorf("remote %q declared twice", name)
		}
		remoteNames[name] = true
	}

	return nil
}

// Dir returns the directory containing the configuration file.
func (c *Config) Dir() string { return c.dir }

// AbsRoot returns the document root as an absolute path.
func (c *Config) AbsRoot() string {
	return c.AbsPath(c.Root)
}

// AbsPath resolves a config-relative path against the config directory.
// Absolute paths pass through unchanged.
func (c *Config) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

// TypeByName returns the named document type declaration.
func (c *Config) TypeByName(name string) (*TypeConfig, bool) {
	for i := range c.Types {
		if c.Types[i].Name == name {
			return &c.Types[i], true
		}
	}
	return nil, false
}

// Remote returns the named remote declaration.
func (c *Config) Remote(name string) (*remote.Config, bool) {
	for i := range c.Remotes {
		if c.Remotes[i].Name == name {
			return &c.Remotes[i], true
		}
	}
	return nil, false
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all pipetter configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name" toml:"name"`
	Version string `yaml:"version" toml:"version"`

	// Protocol input and batching
	Protocol ProtocolConfig `yaml:"protocol" toml:"protocol"`

	// Deck layout and labware
	Deck DeckConfig `yaml:"deck" toml:"deck"`

	// Simulated liquid handler
	Handler HandlerConfig `yaml:"handler" toml:"handler"`

	// Frame capture and GIF output
	Visualizer VisualizerConfig `yaml:"visualizer" toml:"visualizer"`

	// Artifact publishing
	Artifacts ArtifactsConfig `yaml:"artifacts" toml:"artifacts"`

	// Metrics export
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ProtocolConfig configures the transfer protocol.
type ProtocolConfig struct {
	Input        string   `yaml:"input" toml:"input"`                 // CSV file, one row per sample
	Compounds    []string `yaml:"compounds" toml:"compounds"`         // compound columns, in processing order
	BatchSize    int      `yaml:"batch_size" toml:"batch_size"`       // tip-channel width K
	NumRows      int      `yaml:"num_rows" toml:"num_rows"`           // plate rows used for row-index -> well mapping
	BufferFactor float64  `yaml:"buffer_factor" toml:"buffer_factor"` // trough fill margin
	TipRack      string   `yaml:"tip_rack" toml:"tip_rack"`           // rack tips are picked from and returned to
}

// HandlerConfig configures the simulated liquid handler.
type HandlerConfig struct {
	Backend  string `yaml:"backend" toml:"backend"` // chatterbox
	Channels int    `yaml:"channels" toml:"channels"`

	// Fault injection: fail the Nth call of an operation (pick_up_tips, aspirate, dispense, drop_tips).
	FailOperation  string `yaml:"fail_operation" toml:"fail_operation"`
	FailOccurrence int    `yaml:"fail_occurrence" toml:"fail_occurrence"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Prometheus textfile written at the end of each run; empty disables export.
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pipetter",
		Version: "0.3.0",

		Protocol: ProtocolConfig{
			Input:        "structured96.csv",
			Compounds:    []string{"Compound A", "Compound B", "Compound C", "Compound D"},
			BatchSize:    8,
			NumRows:      8,
			BufferFactor: 1.1,
			TipRack:      "tips_01",
		},

		Deck: DefaultDeckConfig(),

		Handler: HandlerConfig{
			Backend:  "chatterbox",
			Channels: 8,
		},

		Visualizer: VisualizerConfig{
			Enabled:     true,
			Renderer:    RendererRaster,
			OutputDir:   "visualization_frames",
			GIFDir:      ".",
			GIFPattern:  "protocol-%s.gif",
			FrameDelay:  "200ms",
			FrameWidth:  960,
			FrameHeight: 540,
			Headless:    true,
		},

		Artifacts: ArtifactsConfig{
			Driver:    ArtifactDriverNone,
			Prefix:    "runs",
			FSRoot:    "artifacts",
			URLExpiry: "15m",
			S3: S3Config{
				Region: "us-east-1",
			},
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Dir:       "logs",
			File:      "pipetter_debug.log",
			DebugMode: true,
		},
	}
}

// Load loads configuration from a YAML or TOML file (by extension).
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML or TOML file (by extension).
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIPETTER_INPUT"); v != "" {
		c.Protocol.Input = v
	}
	if v := os.Getenv("PIPETTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PIPETTER_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}

	// Artifact store
	if v := os.Getenv("PIPETTER_ARTIFACT_DRIVER"); v != "" {
		c.Artifacts.Driver = v
	}
	if v := os.Getenv("PIPETTER_S3_BUCKET"); v != "" {
		c.Artifacts.S3.Bucket = v
	}
	if v := os.Getenv("PIPETTER_S3_REGION"); v != "" {
		c.Artifacts.S3.Region = v
	}
	if v := os.Getenv("PIPETTER_S3_ENDPOINT"); v != "" {
		c.Artifacts.S3.Endpoint = v
	}
	if v := os.Getenv("PIPETTER_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Artifacts.S3.PathStyle = b
		}
	}

	if v := os.Getenv("PIPETTER_METRICS_TEXTFILE"); v != "" {
		c.Metrics.Textfile = v
	}
}

// GetFrameDelay returns the visualizer frame delay as a duration.
func (c *Config) GetFrameDelay() time.Duration {
	d, err := time.ParseDuration(c.Visualizer.FrameDelay)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetURLExpiry returns the lifetime of presigned artifact links.
func (c *Config) GetURLExpiry() time.Duration {
	d, err := time.ParseDuration(c.Artifacts.URLExpiry)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// GIFPath returns the timestamped animation path for a run started at t.
func (c *Config) GIFPath(t time.Time) string {
	pattern := c.Visualizer.GIFPattern
	if !strings.Contains(pattern, "%s") {
		pattern = "protocol-%s.gif"
	}
	return filepath.Join(c.Visualizer.GIFDir, fmt.Sprintf(pattern, t.Format("2006-01-02-150405")))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	p := c.Protocol
	if len(p.Compounds) == 0 {
		return fmt.Errorf("protocol.compounds must list at least one compound")
	}
	seen := make(map[string]bool, len(p.Compounds))
	for _, name := range p.Compounds {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("protocol.compounds contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("protocol.compounds lists %q twice", name)
		}
		seen[name] = true
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("protocol.batch_size must be >= 1")
	}
	if c.Handler.Channels < 1 {
		return fmt.Errorf("handler.channels must be >= 1")
	}
	if p.BatchSize > c.Handler.Channels {
		return fmt.Errorf("protocol.batch_size %d exceeds handler.channels %d", p.BatchSize, c.Handler.Channels)
	}
	if p.NumRows < 1 {
		return fmt.Errorf("protocol.num_rows must be >= 1")
	}
	if p.BufferFactor < 1 {
		return fmt.Errorf("protocol.buffer_factor must be >= 1, got %v", p.BufferFactor)
	}

	if err := c.Deck.validate(len(p.Compounds)); err != nil {
		return err
	}
	rack, ok := c.Deck.tipRack(p.TipRack)
	if !ok {
		return fmt.Errorf("protocol.tip_rack %q is not loaded on the tip carrier", p.TipRack)
	}
	if p.BatchSize > rack.Rows {
		return fmt.Errorf("protocol.batch_size %d exceeds tip rack %s rows %d", p.BatchSize, rack.Name, rack.Rows)
	}

	if c.Handler.FailOperation != "" {
		if !isValidOperation(c.Handler.FailOperation) {
			return fmt.Errorf("invalid handler.fail_operation: %s (valid: %v)", c.Handler.FailOperation, ValidOperations)
		}
		if c.Handler.FailOccurrence < 1 {
			return fmt.Errorf("handler.fail_occurrence must be >= 1 when fail_operation is set")
		}
	}

	if err := c.Visualizer.validate(); err != nil {
		return err
	}
	return c.Artifacts.validate()
}

// ValidOperations lists the liquid-handler operations that can be fault-injected.
var ValidOperations = []string{"pick_up_tips", "aspirate", "dispense", "drop_tips"}

func isValidOperation(op string) bool {
	for _, v := range ValidOperations {
		if v == op {
			return true
		}
	}
	return false
}

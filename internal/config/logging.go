package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" toml:"level"`           // console level: debug, info, warn, error
	Format     string          `yaml:"format" toml:"format"`         // debug file encoding: json, text
	Dir        string          `yaml:"dir" toml:"dir"`               // directory for the debug file
	File       string          `yaml:"file" toml:"file"`             // debug file name
	DebugMode  bool            `yaml:"debug_mode" toml:"debug_mode"` // write the debug file
	Categories map[string]bool `yaml:"categories" toml:"categories"` // per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// JSONFormat reports whether the debug file uses JSON lines.
func (c *LoggingConfig) JSONFormat() bool {
	return c.Format == "json"
}

package config

// LoggingConfig configures internal/logging's category-based file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`             // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format" json:"json_format,omitempty"` // text lines vs. JSON lines
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`   // master toggle; false = no logging
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`   // per-category overrides
}

// IsCategoryEnabled reports whether logging is enabled for a category.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

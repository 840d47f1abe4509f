package main

import (
	"path/filepath"

	"fileops/internal/config"
)

// resolveConfig loads config.yaml from the workspace root, falling back to
// defaults when absent, and overrides the logging section with the CLI's
// own --verbose flag. The internal logger does not read this section: it
// is initialized from --verbose directly in the root command.
func resolveConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".fileops", "config.yaml")
	}

	cfg, err := config.Load(workspace, path)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

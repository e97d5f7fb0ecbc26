// Package config loads the settings file into the shared configuration store.
package config

import (
	"path/filepath"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/weather-mcp-gateway/library/log"
)

// LoadFromFile loads cfgPath into gconfig.Shared.
// An empty path is allowed so the gateway can run from flags and environment only.
func LoadFromFile(cfgPath string) error {
	if cfgPath == "" {
		log.Logger.Info("no configuration file given, using flags and environment only")
		return nil
	}

	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		return errors.Wrapf(err, "load configuration %q", cfgPath)
	}

	log.Logger.Info("load configuration",
		zap.String("config", cfgPath))
	return nil
}

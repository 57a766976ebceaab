package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethpandaops/placeholder-cache/pkg/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadConfig reads the service config and applies its log level unless the
// --log-level flag was given
func loadConfig(cmd *cobra.Command) (*service.Config, error) {
	cfg, err := service.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
	}

	if !cmd.Flags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Logging)
		if err != nil {
			return nil, err
		}

		logger.SetLevel(level)
	}

	logger.WithField("file", cfgFile).Debug("Configuration loaded")

	return cfg, nil
}

// startStoreOnly builds a service with only its cache store started
func startStoreOnly(ctx context.Context, cmd *cobra.Command) (*service.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	svc, err := service.NewService(logger, cfg)
	if err != nil {
		return nil, err
	}

	if err := svc.StartStore(ctx); err != nil {
		return nil, err
	}

	return svc, nil
}

// loadBatchFile reads a batch definition: placeholders plus execution context
func loadBatchFile(path string) (*service.Batch, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided batch file path
	if err != nil {
		return nil, err
	}

	b := &service.Batch{}
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}

	return b, nil
}

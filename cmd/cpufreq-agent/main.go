/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"
	"github.com/sergelogvinov/cpufreq-manager/pkg/utils/reconciler"

	"sigs.k8s.io/karpenter/pkg/utils/env"
)

const (
	verbosityEnvVarName = "VERBOSITY"
	verbosityFlagName   = "verbosity"

	configEnvVarName = "CPUFREQ_CONFIG"
	configFlagName   = "config"

	rootFlagName           = "root"
	metricsAddressFlagName = "metrics-address"

	maxRetriesEnvVarName = "MAX_RETRIES"
	maxRetriesFlagName   = "max-retries"

	resyncIntervalEnvVarName = "RESYNC_INTERVAL"
	resyncIntervalFlagName   = "resync-interval"

	featureFlagsEnvVarName = "CPUFREQ_FEATURE_FLAGS"
	featureFlagsFlagName   = "feature-flags"
)

var (
	// Version of the cpufreq-agent
	Version = "edge"

	showVersion = pflag.Bool("version", false, "Print the version and exit.")

	verbosity      = pflag.IntP(verbosityFlagName, "v", env.WithDefaultInt(verbosityEnvVarName, 0), "Verbosity level (0=info, 1=debug, 2=trace, -1=errors only)")
	configPath     = pflag.String(configFlagName, env.WithDefaultString(configEnvVarName, "/etc/cpufreq-manager/config.yaml"), "Path to the configuration file")
	root           = pflag.String(rootFlagName, "", "cpufreq sysfs directory, overrides the configuration file and "+config.EnvRoot)
	metricsAddress = pflag.String(metricsAddressFlagName, "", "Metrics listen address, overrides the configuration file and "+config.EnvMetricsAddress)
	maxRetries     = pflag.Int(maxRetriesFlagName, env.WithDefaultInt(maxRetriesEnvVarName, 5), "Maximum number of retry attempts")
	resyncInterval = pflag.Duration(resyncIntervalFlagName, env.WithDefaultDuration(resyncIntervalEnvVarName, 10*time.Minute), "Resync interval")
	featureFlags   = pflag.String(featureFlagsFlagName, env.WithDefaultString(featureFlagsEnvVarName, defaultFeatureFlags), "Comma separated features, prefix with - to disable")
)

func main() {
	pflag.Parse()

	logger := setupLogger(*verbosity)
	logger.Info("CPU frequency agent", "version", Version, "verbosity", *verbosity)

	if *showVersion {
		os.Exit(0)
	}

	features := parseFeatureFlags(*featureFlags)
	logger.Info("Feature flags configured", "featureFlags", features.Enabled())

	// Settings needed before the first event, the handler reloads the rest.
	cfg, err := config.LoadWithEnvOverrides(existingFile(*configPath))
	if err != nil {
		logger.Error(err, "Failed to load configuration", "file", *configPath)
		os.Exit(1)
	}

	if *root != "" {
		cfg.Root = *root
	}

	if *metricsAddress != "" {
		cfg.MetricsAddress = *metricsAddress
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := newMetricsRegistry()

	registry := cpufreq.NewRegistry(cpufreq.Options{
		Root:            cfg.Root,
		FrequencyStep:   cfg.FrequencyStep,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          logger.WithName("cpufreq"),
		Metrics:         cpufreq.NewMetrics(reg),
	})
	defer registry.Free()

	logger.Info("Discovering scaling policies...", "root", registry.Root())

	showPolicies(logger, registry.Drivers(true))

	if skipped := registry.Skipped(); skipped != nil {
		logger.Info("Some scaling policies were skipped", "error", skipped.Error())
	}

	if features.IsEnabled(FeatureMetrics) {
		go func() {
			if err := serveMetrics(ctx, cfg.MetricsAddress, registry, reg, logger.WithName("metrics")); err != nil {
				logger.Error(err, "Metrics server failed")
				cancel()
			}
		}()
	}

	handler := NewHandler(*configPath, registry, features.IsEnabled(FeatureApply), logger)

	if err := run(ctx, cancel, handler, logger); err != nil {
		logger.Error(err, "Reconciler encountered an error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, handler reconciler.Handler, logger logr.Logger) error {
	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	recConfig := reconciler.DefaultConfig(logger)
	recConfig.MaxRetries = *maxRetries
	recConfig.SyncDelay = *resyncInterval

	if existingFile(filepath.Dir(*configPath)) != "" {
		recConfig.WatchFile = *configPath
	} else {
		logger.Info("Configuration directory does not exist, file changes are not watched", "file", *configPath)
	}

	rec, err := reconciler.NewReconciler(ctx, recConfig, handler)
	if err != nil {
		logger.Error(err, "Failed to create reconciler")

		return err
	}

	if err := rec.Start(); err != nil {
		logger.Error(err, "Failed to start reconciler")

		return err
	}

	logger.Info("Reconciler started successfully")

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down gracefully", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context canceled, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		rec.Stop()
	}()

	select {
	case <-done:
		logger.Info("Reconciler stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Info("Shutdown timeout exceeded, forcing exit")
	}

	return nil
}

func existingFile(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}

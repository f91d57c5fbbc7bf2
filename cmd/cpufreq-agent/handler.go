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

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/sergelogvinov/cpufreq-manager/pkg/applier"
	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"
	"github.com/sergelogvinov/cpufreq-manager/pkg/utils/reconciler"
)

// AgentHandler keeps the scaling policies in the state of the configuration file.
type AgentHandler struct {
	configPath string
	registry   *cpufreq.Registry
	applier    *applier.Applier
	apply      bool
	logger     logr.Logger

	cfg        *config.Config
	configHash uint64
}

func NewHandler(configPath string, registry *cpufreq.Registry, apply bool, logger logr.Logger) *AgentHandler {
	return &AgentHandler{
		configPath: configPath,
		registry:   registry,
		applier:    applier.New(registry, logger),
		apply:      apply,
		logger:     logger,
	}
}

// Reconcile reloads the configuration on file events and rescans the
// policies on timer events. Only hardware write failures are retried.
func (r *AgentHandler) Reconcile(ctx context.Context, _ reconciler.EventSender, event reconciler.Event) error {
	r.logger.V(2).Info("Processing event", "type", event.Type, "key", event.Key)

	switch event.Type {
	case reconciler.FileEvent:
		if fsEvent, ok := event.Data.(fsnotify.Event); ok {
			r.logger.V(2).Info("File event details", "name", fsEvent.Name, "op", fsEvent.Op)
		}

		changed, err := r.reloadConfig()
		if err != nil {
			r.logger.Error(err, "Failed to load configuration, keeping the previous one", "file", r.configPath)

			return nil
		}

		if !changed {
			r.logger.V(1).Info("Configuration unchanged", "file", r.configPath)

			return nil
		}

		r.registry.Drivers(true)

	case reconciler.TimerEvent:
		if r.cfg == nil {
			if _, err := r.reloadConfig(); err != nil {
				r.logger.Error(err, "Failed to load configuration", "file", r.configPath)

				return nil
			}
		}

		policies := r.registry.Rescan()
		r.logger.V(1).Info("Scaling policies rescanned", "count", len(policies))

		if skipped := r.registry.Skipped(); skipped != nil {
			r.logger.Info("Some scaling policies were skipped", "error", skipped.Error())
		}

	default:
		return nil
	}

	return r.applyConfig(ctx)
}

// reloadConfig reads the configuration file and reports whether its content changed.
// A missing file means the default configuration.
func (r *AgentHandler) reloadConfig() (bool, error) {
	path := existingFile(r.configPath)
	if path == "" {
		r.logger.V(1).Info("Configuration file not found, using defaults", "file", r.configPath)
	}

	cfg, err := config.LoadWithEnvOverrides(path)
	if err != nil {
		return false, err
	}

	hash, err := cfg.Hash()
	if err != nil {
		return false, err
	}

	if r.cfg != nil && hash == r.configHash {
		return false, nil
	}

	if r.cfg != nil && cfg.Root != r.cfg.Root {
		r.logger.Info("Sysfs root changed, restart the agent to use it", "current", r.registry.Root(), "configured", cfg.Root)
	}

	r.cfg = cfg
	r.configHash = hash

	r.logger.Info("Configuration loaded", "file", r.configPath, "rules", len(cfg.Policies), "hash", hash)

	return true, nil
}

func (r *AgentHandler) applyConfig(ctx context.Context) error {
	if !r.apply {
		r.logger.V(1).Info("Applying is disabled, skipping", "feature", FeatureApply)

		return nil
	}

	err := r.applier.Apply(ctx, r.cfg)
	if err == nil {
		return nil
	}

	retryable := lo.Filter(multierr.Errors(err), func(e error, _ int) bool {
		return cpufreq.IsHardwareWriteError(e)
	})

	return multierr.Combine(retryable...)
}

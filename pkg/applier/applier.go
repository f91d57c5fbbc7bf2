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

// Package applier drives scaling policies to the state described by the agent configuration.
package applier

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"

	"k8s.io/utils/ptr"
)

// Applier applies configuration rules to the policies of a registry.
type Applier struct {
	registry *cpufreq.Registry
	logger   logr.Logger
}

// New returns an Applier working on registry.
func New(registry *cpufreq.Registry, logger logr.Logger) *Applier {
	return &Applier{
		registry: registry,
		logger:   logger,
	}
}

// Apply changes every discovered policy selected by a rule.
// Policies already in the desired state are not written.
// It keeps going after a failed policy and returns all errors combined.
func (a *Applier) Apply(ctx context.Context, cfg *config.Config) error {
	var errs error

	for _, p := range a.registry.Drivers(true) {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		rule, ok := cfg.Rule(p.ID, p.AffectedCPUs)
		if !ok {
			a.logger.V(2).Info("No rule selects scaling policy", "policy", p.Name())

			continue
		}

		if err := a.applyRule(p, rule); err != nil {
			a.logger.Error(err, "Failed to apply rule", "policy", p.Name(), "rule", rule.Name)
			errs = multierr.Append(errs, fmt.Errorf("rule %s on %s: %w", rule.Name, p.Name(), err))
		}
	}

	return errs
}

func (a *Applier) applyRule(p *cpufreq.Policy, rule config.PolicyRule) error {
	if rule.Governor != "" && rule.Governor != p.Governor {
		if err := a.registry.SetGovernor(p, rule.Governor); err != nil {
			return err
		}
	}

	minFreq, maxFreq := desiredRange(p, rule)

	// the kernel keeps min <= max, so widen the range before narrowing it
	if minFreq > p.MaxPolicyFrequency {
		if err := a.setMax(p, maxFreq); err != nil {
			return err
		}

		return a.setMin(p, minFreq)
	}

	if err := a.setMin(p, minFreq); err != nil {
		return err
	}

	return a.setMax(p, maxFreq)
}

// desiredRange returns the rule's bounds clamped to the hardware range,
// unset bounds keep the current policy values.
func desiredRange(p *cpufreq.Policy, rule config.PolicyRule) (uint32, uint32) {
	minFreq := p.MinPolicyFrequency
	if rule.MinFrequency != nil {
		minFreq = p.ClampFrequency(ptr.Deref(rule.MinFrequency, 0))
	}

	maxFreq := p.MaxPolicyFrequency
	if rule.MaxFrequency != nil {
		maxFreq = p.ClampFrequency(ptr.Deref(rule.MaxFrequency, 0))
	}

	// a rule setting one bound beyond the other current bound drags it along
	if rule.MaxFrequency == nil && minFreq > maxFreq {
		maxFreq = minFreq
	}

	if rule.MinFrequency == nil && maxFreq < minFreq {
		minFreq = maxFreq
	}

	return minFreq, maxFreq
}

func (a *Applier) setMin(p *cpufreq.Policy, khz uint32) error {
	if khz == p.MinPolicyFrequency {
		return nil
	}

	return a.registry.SetMinFrequency(p, khz)
}

func (a *Applier) setMax(p *cpufreq.Policy, khz uint32) error {
	if khz == p.MaxPolicyFrequency {
		return nil
	}

	return a.registry.SetMaxFrequency(p, khz)
}

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

// Package config loads the desired cpufreq settings of the agent.
package config

import (
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"

	"k8s.io/utils/cpuset"
)

const (
	DefaultRoot            = "/sys/devices/system/cpu/cpufreq"
	DefaultFrequencyStep   = uint32(100000)
	DefaultRefreshInterval = 2 * time.Second
	DefaultMetricsAddress  = ":9101"
)

// Config is the agent configuration file.
type Config struct {
	// Root is the cpufreq sysfs directory.
	Root string `yaml:"root"`
	// FrequencyStep is the step in kHz for policies without a frequency table.
	FrequencyStep uint32 `yaml:"frequencyStep"`
	// RefreshInterval is how often cached policy values are re-read.
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	// MetricsAddress is the listen address of the Prometheus endpoint.
	MetricsAddress string `yaml:"metricsAddress"`

	// Policies are applied in order, the first matching rule wins.
	Policies []PolicyRule `yaml:"policies"`
}

// PolicyRule is the desired state of the scaling policies it selects.
// A rule without policyIDs and cpus selects every policy.
type PolicyRule struct {
	Name string `yaml:"name"`

	PolicyIDs []uint `yaml:"policyIDs,omitempty"`
	// CPUs selects policies governing any of these CPUs, in list format ("0-3,8").
	CPUs string `yaml:"cpus,omitempty"`

	Governor     string  `yaml:"governor,omitempty"`
	MinFrequency *uint32 `yaml:"minFrequency,omitempty"`
	MaxFrequency *uint32 `yaml:"maxFrequency,omitempty"`
}

// Matches reports whether the rule selects the policy with the given id and CPUs.
func (r PolicyRule) Matches(id uint, cpus cpuset.CPUSet) bool {
	if len(r.PolicyIDs) == 0 && r.CPUs == "" {
		return true
	}

	if lo.Contains(r.PolicyIDs, id) {
		return true
	}

	if r.CPUs != "" {
		selected, err := cpuset.Parse(r.CPUs)
		if err == nil && !selected.Intersection(cpus).IsEmpty() {
			return true
		}
	}

	return false
}

// Rule returns the first rule selecting the policy.
func (c *Config) Rule(id uint, cpus cpuset.CPUSet) (PolicyRule, bool) {
	return lo.Find(c.Policies, func(r PolicyRule) bool {
		return r.Matches(id, cpus)
	})
}

// content has the fields of Config without its methods, hashstructure
// would call Config.Hash otherwise.
type content Config

// Hash returns a hash of the configuration content.
// Rule order is significant, the first matching rule wins.
func (c *Config) Hash() (uint64, error) {
	return hashstructure.Hash(content(*c), hashstructure.FormatV2, &hashstructure.HashOptions{
		ZeroNil: true,
	})
}

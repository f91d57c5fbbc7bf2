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

package config

import "fmt"

// Default returns a configuration without policy rules.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)

	return cfg
}

// ApplyDefaults fills the unset fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}

	if cfg.FrequencyStep == 0 {
		cfg.FrequencyStep = DefaultFrequencyStep
	}

	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = DefaultMetricsAddress
	}

	for i := range cfg.Policies {
		if cfg.Policies[i].Name == "" {
			cfg.Policies[i].Name = fmt.Sprintf("rule-%d", i)
		}
	}
}

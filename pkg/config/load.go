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

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the configuration file.
const (
	EnvRoot            = "CPUFREQ_ROOT"
	EnvFrequencyStep   = "CPUFREQ_FREQUENCY_STEP"
	EnvRefreshInterval = "CPUFREQ_REFRESH_INTERVAL"
	EnvMetricsAddress  = "CPUFREQ_METRICS_ADDRESS"
)

// Load reads the configuration file at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads the configuration file, or the defaults when path
// is empty, and applies the CPUFREQ_* environment variables on top.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		var err error

		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration invalid after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvRoot); val != "" {
		cfg.Root = val
	}

	if val := os.Getenv(EnvFrequencyStep); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil && n > 0 {
			cfg.FrequencyStep = uint32(n)
		}
	}

	if val := os.Getenv(EnvRefreshInterval); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RefreshInterval = d
		}
	}

	if val := os.Getenv(EnvMetricsAddress); val != "" {
		cfg.MetricsAddress = val
	}
}

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
	"math"
	"strings"

	"go.uber.org/multierr"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/cpuset"
	"k8s.io/utils/ptr"
)

// Validate checks the configuration and returns every problem found.
func Validate(cfg *Config) error {
	var errs error

	if cfg.Root == "" {
		errs = multierr.Append(errs, fmt.Errorf("root: must not be empty"))
	}

	if cfg.FrequencyStep == 0 {
		errs = multierr.Append(errs, fmt.Errorf("frequencyStep: must be positive"))
	}

	if cfg.RefreshInterval < 0 {
		errs = multierr.Append(errs, fmt.Errorf("refreshInterval: must not be negative, got %s", cfg.RefreshInterval))
	}

	seenIDs := sets.New[uint]()

	for i, rule := range cfg.Policies {
		field := fmt.Sprintf("policies[%d]", i)

		for _, id := range rule.PolicyIDs {
			if seenIDs.Has(id) {
				errs = multierr.Append(errs, fmt.Errorf("%s.policyIDs: policy %d selected by an earlier rule", field, id))
			}

			seenIDs.Insert(id)
		}

		if rule.CPUs != "" {
			if _, err := cpuset.Parse(rule.CPUs); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s.cpus: %w", field, err))
			}
		}

		if rule.Governor == "" && rule.MinFrequency == nil && rule.MaxFrequency == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: sets neither governor nor frequencies", field))
		}

		if strings.ContainsFunc(rule.Governor, isSpace) {
			errs = multierr.Append(errs, fmt.Errorf("%s.governor: invalid name %q", field, rule.Governor))
		}

		minFreq, maxFreq := ptr.Deref(rule.MinFrequency, 0), ptr.Deref(rule.MaxFrequency, math.MaxUint32)
		if minFreq > maxFreq {
			errs = multierr.Append(errs, fmt.Errorf("%s: minFrequency %d above maxFrequency %d", field, minFreq, maxFreq))
		}
	}

	return errs
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

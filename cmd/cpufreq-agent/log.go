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
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"
)

func setupLogger(verbosity int) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "" // journald adds timestamps
	cfg.EncoderConfig.LevelKey = ""

	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return zapr.NewLogger(zl)
}

func showPolicies(logger logr.Logger, policies []*cpufreq.Policy) {
	logger.Info("===== CPU Frequency Scaling Policies =====")
	defer logger.Info("==========================================")

	if len(policies) == 0 {
		logger.Info("No scaling policies available")

		return
	}

	for _, p := range policies {
		logger.Info("Scaling policy",
			"policy", p.Name(),
			"cpus", p.AffectedCPUs.String(),
			"driver", p.Driver,
			"governor", p.Governor,
			"governors", p.AvailableGovernors,
			"hardwareRange", []uint32{p.MinCPUFrequency, p.MaxCPUFrequency},
			"policyRange", []uint32{p.MinPolicyFrequency, p.MaxPolicyFrequency},
			"discrete", p.IsDiscrete(),
		)
	}
}

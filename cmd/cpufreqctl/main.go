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

// Package main implements cpufreqctl, a command-line utility to inspect and
// change CPU frequency scaling policies.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	cobra "github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"

	"sigs.k8s.io/karpenter/pkg/utils/env"
)

var (
	command = "cpufreqctl"
	version = "v0.0.0"
	commit  = "none"
)

type globalOptions struct {
	root      string
	step      uint32
	output    string
	verbosity int

	logger logr.Logger
}

func main() {
	if exitCode := run(); exitCode != 0 {
		os.Exit(exitCode)
	}
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd()

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		errorString := err.Error()
		if strings.Contains(errorString, "arg(s)") || strings.Contains(errorString, "flag") || strings.Contains(errorString, "command") {
			fmt.Fprintf(os.Stderr, "Error: %s\n\n", errorString)
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		} else {
			fmt.Fprintln(os.Stderr, "Execute error:", err)
		}

		return 1
	}

	return 0
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:     command,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Short:   "A command-line utility to inspect and change CPU frequency scaling policies",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q, use one of: %s, %s, %s", opts.output, outputTable, outputJSON, outputYAML)
			}

			opts.logger = newLogger(opts.verbosity)

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", env.WithDefaultString(config.EnvRoot, cpufreq.DefaultRoot), "cpufreq sysfs directory")
	flags.Uint32Var(&opts.step, "step", config.DefaultFrequencyStep, "step in kHz for policies without a frequency table")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "output format: table, json or yaml")
	flags.IntVarP(&opts.verbosity, "verbosity", "v", 0, "log verbosity level")

	cmd.AddCommand(
		buildListCmd(opts),
		buildGovernorCmd(opts),
		buildFrequencyCmd(opts, "min", "Set the minimum frequency of a policy", (*cpufreq.Registry).SetMinFrequency),
		buildFrequencyCmd(opts, "max", "Set the maximum frequency of a policy", (*cpufreq.Registry).SetMaxFrequency),
		buildFrequencyCmd(opts, "setspeed", "Set the frequency of a policy using the userspace governor", (*cpufreq.Registry).SetSpeed),
		buildNextCmd(opts),
		buildApplyCmd(opts),
	)

	return cmd
}

func (o *globalOptions) registry() *cpufreq.Registry {
	return cpufreq.NewRegistry(cpufreq.Options{
		Root:          o.root,
		FrequencyStep: o.step,
		Logger:        o.logger,
	})
}

func newLogger(verbosity int) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.OutputPaths = []string{"stderr"}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}

	return zapr.NewLogger(zl)
}

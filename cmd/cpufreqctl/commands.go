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
	"fmt"
	"strconv"
	"strings"

	cobra "github.com/spf13/cobra"

	"github.com/sergelogvinov/cpufreq-manager/pkg/applier"
	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"
)

func buildListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scaling policies",
		Args:    cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := opts.registry()
			defer registry.Free()

			policies := registry.Drivers(true)

			if skipped := registry.Skipped(); skipped != nil {
				opts.logger.Info("Some scaling policies were skipped", "error", skipped.Error())
			}

			return printPolicies(cmd.OutOrStdout(), opts.output, policies)
		},
	}
}

func buildGovernorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "governor POLICY NAME",
		Aliases: []string{"gov"},
		Short:   "Set the governor of a policy",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.mutate(cmd, args[0], func(registry *cpufreq.Registry, p *cpufreq.Policy) error {
				return registry.SetGovernor(p, args[1])
			})
		},
	}
}

func buildFrequencyCmd(opts *globalOptions, use, short string, set func(*cpufreq.Registry, *cpufreq.Policy, uint32) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " POLICY FREQUENCY",
		Short: short,
		Long:  short + ".\nFREQUENCY is in kHz unless it has a kHz, MHz or GHz suffix.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			khz, err := parseFrequency(args[1])
			if err != nil {
				return err
			}

			return opts.mutate(cmd, args[0], func(registry *cpufreq.Registry, p *cpufreq.Policy) error {
				return set(registry, p, khz)
			})
		},
	}
}

func buildNextCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next POLICY FREQUENCY STEPS",
		Short: "Print the frequency a number of steps away from FREQUENCY",
		Long: "Print the frequency a number of steps away from FREQUENCY.\n" +
			"FREQUENCY is snapped to the frequency table when the policy has one, " +
			"\"current\" uses the current frequency of the policy.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid number of steps %q: %w", args[2], err)
			}

			registry := opts.registry()
			defer registry.Free()

			p, err := lookupPolicy(registry, args[0])
			if err != nil {
				return err
			}

			khz := p.CurrentFrequency
			if args[1] != "current" {
				if khz, err = parseFrequency(args[1]); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), registry.NextFrequency(p, khz, steps))

			return err
		},
	}

	// negative STEPS like -1 are arguments, not shorthand flags
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func buildApplyCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the rules of a configuration file once",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(file)
			if err != nil {
				return err
			}

			registry := opts.registry()
			defer registry.Free()

			if err := applier.New(registry, opts.logger).Apply(cmd.Context(), cfg); err != nil {
				return err
			}

			return printPolicies(cmd.OutOrStdout(), opts.output, registry.Drivers(false))
		},
	}

	cmd.Flags().StringVarP(&file, "filename", "f", "/etc/cpufreq-manager/config.yaml", "configuration file")

	return cmd
}

// mutate runs fn on one policy and prints the policy afterwards.
func (o *globalOptions) mutate(cmd *cobra.Command, arg string, fn func(*cpufreq.Registry, *cpufreq.Policy) error) error {
	registry := o.registry()
	defer registry.Free()

	p, err := lookupPolicy(registry, arg)
	if err != nil {
		return err
	}

	if err := fn(registry, p); err != nil {
		return err
	}

	return printPolicies(cmd.OutOrStdout(), o.output, []*cpufreq.Policy{p})
}

// lookupPolicy accepts "3" as well as "policy3".
func lookupPolicy(registry *cpufreq.Registry, arg string) (*cpufreq.Policy, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "policy"), 10, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid policy %q, expected a number or policyN", arg)
	}

	registry.Drivers(true)

	return registry.Lookup(uint(id))
}

var frequencyUnits = []struct {
	suffix string
	khz    float64
}{
	{"ghz", 1000000},
	{"mhz", 1000},
	{"khz", 1},
}

// parseFrequency parses a frequency in kHz, a kHz, MHz or GHz suffix is accepted.
func parseFrequency(s string) (uint32, error) {
	value := strings.ToLower(strings.TrimSpace(s))
	scale := 1.0

	for _, unit := range frequencyUnits {
		if v, ok := strings.CutSuffix(value, unit.suffix); ok {
			value = strings.TrimSpace(v)
			scale = unit.khz

			break
		}
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}

	khz := f * scale
	if khz > float64(^uint32(0)) {
		return 0, fmt.Errorf("frequency %q is out of range", s)
	}

	return uint32(khz + 0.5), nil
}

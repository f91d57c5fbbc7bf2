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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"

	"sigs.k8s.io/yaml"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// policyView is the printed form of a policy.
type policyView struct {
	*cpufreq.Policy `json:",inline"`

	Name        string `json:"name"`
	CPUs        string `json:"cpus"`
	RelatedCPUs string `json:"relatedCPUs,omitempty"`
}

func newPolicyView(p *cpufreq.Policy) policyView {
	return policyView{
		Policy:      p,
		Name:        p.Name(),
		CPUs:        p.AffectedCPUs.String(),
		RelatedCPUs: p.RelatedCPUs.String(),
	}
}

func printPolicies(w io.Writer, format string, policies []*cpufreq.Policy) error {
	views := lo.Map(policies, func(p *cpufreq.Policy, _ int) policyView {
		return newPolicyView(p)
	})

	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, string(data))

		return err
	case outputYAML:
		data, err := yaml.Marshal(views)
		if err != nil {
			return err
		}

		_, err = w.Write(data)

		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tCPUS\tDRIVER\tGOVERNOR\tCURRENT\tPOLICY RANGE\tHARDWARE RANGE\tFREQUENCIES")

	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d-%d\t%d-%d\t%s\n",
			v.Name,
			v.CPUs,
			lo.CoalesceOrEmpty(v.Driver, "-"),
			v.Governor,
			v.CurrentFrequency,
			v.MinPolicyFrequency, v.MaxPolicyFrequency,
			v.MinCPUFrequency, v.MaxCPUFrequency,
			formatFrequencies(v.AvailableFrequencies),
		)
	}

	return tw.Flush()
}

func formatFrequencies(table []uint32) string {
	if len(table) == 0 {
		return "continuous"
	}

	return strings.Join(lo.Map(table, func(khz uint32, _ int) string {
		return fmt.Sprint(khz)
	}), ",")
}

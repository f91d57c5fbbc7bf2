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

package cpufreq

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/samber/lo"

	"k8s.io/utils/cpuset"
)

const (
	// DefaultRoot is where the kernel exposes cpufreq policies.
	DefaultRoot = "/sys/devices/system/cpu/cpufreq"

	// UserspaceGovernor allows setting a fixed frequency through scaling_setspeed.
	UserspaceGovernor = "userspace"

	policyDirPrefix = "policy"
)

// Policy is one cpufreq scaling policy: a group of logical CPUs sharing a
// governor and a frequency range. All frequencies are in kHz.
type Policy struct {
	// ID is the N of the policyN directory.
	ID uint `json:"id"`

	// AffectedCPUs are the online CPUs governed by this policy.
	AffectedCPUs cpuset.CPUSet `json:"-"`
	// RelatedCPUs are all CPUs governed by this policy, online or not.
	RelatedCPUs cpuset.CPUSet `json:"-"`

	// Driver is the scaling driver name, empty if not exposed.
	Driver string `json:"driver,omitempty"`

	Governor           string   `json:"governor"`
	AvailableGovernors []string `json:"availableGovernors,omitempty"`

	// CurrentFrequency is the last value read, it can be stale.
	CurrentFrequency uint32 `json:"currentFrequency"`

	MinCPUFrequency uint32 `json:"minCPUFrequency"`
	MaxCPUFrequency uint32 `json:"maxCPUFrequency"`

	MinPolicyFrequency uint32 `json:"minPolicyFrequency"`
	MaxPolicyFrequency uint32 `json:"maxPolicyFrequency"`

	// AvailableFrequencies is sorted ascending, nil when the hardware
	// supports a continuous range.
	AvailableFrequencies []uint32 `json:"availableFrequencies,omitempty"`

	dir string
}

// Name returns the sysfs directory name of the policy.
func (p *Policy) Name() string {
	return fmt.Sprintf("%s%d", policyDirPrefix, p.ID)
}

// Dir returns the sysfs directory of the policy.
func (p *Policy) Dir() string {
	return p.dir
}

// IsDiscrete reports whether the hardware exposes a fixed frequency table.
func (p *Policy) IsDiscrete() bool {
	return len(p.AvailableFrequencies) > 0
}

// HasGovernor reports whether name is one of the available governors.
func (p *Policy) HasGovernor(name string) bool {
	return name != "" && lo.Contains(p.AvailableGovernors, name)
}

// ClampFrequency limits khz to the hardware range of the policy.
func (p *Policy) ClampFrequency(khz uint32) uint32 {
	return p.clamp(int64(khz))
}

func (p *Policy) clamp(khz int64) uint32 {
	if p.MaxCPUFrequency < p.MinCPUFrequency {
		return uint32(max(khz, 0))
	}

	return uint32(min(max(khz, int64(p.MinCPUFrequency)), int64(p.MaxCPUFrequency)))
}

// DeepCopy returns an independent copy of the policy.
func (p *Policy) DeepCopy() *Policy {
	if p == nil {
		return nil
	}

	out := *p
	out.AvailableGovernors = slices.Clone(p.AvailableGovernors)
	out.AvailableFrequencies = slices.Clone(p.AvailableFrequencies)

	return &out
}

func (p *Policy) attr(name string) string {
	return filepath.Join(p.dir, name)
}

func (p *Policy) String() string {
	return fmt.Sprintf("%s(cpus=%s governor=%s range=%d-%d)",
		p.Name(), p.AffectedCPUs.String(), p.Governor, p.MinPolicyFrequency, p.MaxPolicyFrequency)
}

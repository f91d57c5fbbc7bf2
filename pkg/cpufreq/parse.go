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
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	utilsys "github.com/sergelogvinov/cpufreq-manager/pkg/utils/sys"

	"k8s.io/utils/cpuset"
)

// cpufreq sysfs attributes, see Documentation/admin-guide/pm/cpufreq.rst
const (
	attrAffectedCPUs         = "affected_cpus"
	attrRelatedCPUs          = "related_cpus"
	attrScalingDriver        = "scaling_driver"
	attrScalingGovernor      = "scaling_governor"
	attrAvailableGovernors   = "scaling_available_governors"
	attrScalingCurFreq       = "scaling_cur_freq"
	attrCPUInfoCurFreq       = "cpuinfo_cur_freq"
	attrCPUInfoMinFreq       = "cpuinfo_min_freq"
	attrCPUInfoMaxFreq       = "cpuinfo_max_freq"
	attrScalingMinFreq       = "scaling_min_freq"
	attrScalingMaxFreq       = "scaling_max_freq"
	attrAvailableFrequencies = "scaling_available_frequencies"
	attrScalingSetSpeed      = "scaling_setspeed"
)

// dynamicAttributes are the values that change at runtime without a topology change.
type dynamicAttributes struct {
	governor         string
	currentFrequency uint32
	minPolicy        uint32
	maxPolicy        uint32
}

func parsePolicy(dir string, id uint) (*Policy, error) {
	p := &Policy{ID: id, dir: dir}

	affected, err := utilsys.ReadString(p.attr(attrAffectedCPUs))
	if err != nil {
		return nil, malformed(p, attrAffectedCPUs, err)
	}

	p.AffectedCPUs, err = parseCPUList(affected)
	if err != nil {
		return nil, malformed(p, attrAffectedCPUs, err)
	}

	if p.AffectedCPUs.IsEmpty() {
		return nil, malformed(p, attrAffectedCPUs, errors.New("no online cpus"))
	}

	p.RelatedCPUs = p.AffectedCPUs

	if related, err := utilsys.ReadString(p.attr(attrRelatedCPUs)); err == nil {
		if cpus, err := parseCPUList(related); err == nil && !cpus.IsEmpty() {
			p.RelatedCPUs = cpus
		}
	}

	p.Driver, _ = utilsys.ReadString(p.attr(attrScalingDriver)) //nolint:errcheck

	if p.MinCPUFrequency, err = readRequired(p, attrCPUInfoMinFreq); err != nil {
		return nil, err
	}

	if p.MaxCPUFrequency, err = readRequired(p, attrCPUInfoMaxFreq); err != nil {
		return nil, err
	}

	if p.MinCPUFrequency > p.MaxCPUFrequency {
		return nil, errors.Wrapf(ErrMalformedPolicy, "%s: hardware min %d kHz above max %d kHz",
			p.Name(), p.MinCPUFrequency, p.MaxCPUFrequency)
	}

	governors, err := utilsys.ReadFields(p.attr(attrAvailableGovernors))
	if err != nil && !os.IsNotExist(err) {
		return nil, malformed(p, attrAvailableGovernors, err)
	}

	p.AvailableGovernors = lo.Uniq(governors)

	freqs, err := utilsys.ReadUint32List(p.attr(attrAvailableFrequencies))
	if err != nil && !os.IsNotExist(err) {
		return nil, malformed(p, attrAvailableFrequencies, err)
	}

	p.AvailableFrequencies = normalizeFrequencies(freqs, p.MinCPUFrequency, p.MaxCPUFrequency)

	dyn, err := readDynamic(p)
	if err != nil {
		return nil, err
	}

	p.apply(dyn)

	return p, nil
}

// readDynamic reads the runtime attributes of a policy and checks them
// against the hardware range. p is not modified.
func readDynamic(p *Policy) (dynamicAttributes, error) {
	var (
		dyn dynamicAttributes
		err error
	)

	dyn.governor, err = utilsys.ReadString(p.attr(attrScalingGovernor))
	if err != nil {
		return dyn, malformed(p, attrScalingGovernor, err)
	}

	if dyn.governor == "" {
		return dyn, malformed(p, attrScalingGovernor, errors.New("empty governor"))
	}

	dyn.currentFrequency, err = utilsys.ReadUint32(p.attr(attrScalingCurFreq))
	if err != nil {
		// Some drivers only expose the frequency reported by the hardware.
		cur, curErr := utilsys.ReadUint32(p.attr(attrCPUInfoCurFreq))
		if curErr != nil {
			return dyn, malformed(p, attrScalingCurFreq, err)
		}

		dyn.currentFrequency = cur
	}

	if dyn.minPolicy, err = readRequired(p, attrScalingMinFreq); err != nil {
		return dyn, err
	}

	if dyn.maxPolicy, err = readRequired(p, attrScalingMaxFreq); err != nil {
		return dyn, err
	}

	if dyn.minPolicy > dyn.maxPolicy || dyn.minPolicy < p.MinCPUFrequency || dyn.maxPolicy > p.MaxCPUFrequency {
		return dyn, errors.Wrapf(ErrMalformedPolicy, "%s: policy range %d-%d kHz outside hardware range %d-%d kHz",
			p.Name(), dyn.minPolicy, dyn.maxPolicy, p.MinCPUFrequency, p.MaxCPUFrequency)
	}

	return dyn, nil
}

func (p *Policy) apply(dyn dynamicAttributes) {
	p.Governor = dyn.governor
	p.CurrentFrequency = dyn.currentFrequency
	p.MinPolicyFrequency = dyn.minPolicy
	p.MaxPolicyFrequency = dyn.maxPolicy
}

func readRequired(p *Policy, name string) (uint32, error) {
	value, err := utilsys.ReadUint32(p.attr(name))
	if err != nil {
		return 0, malformed(p, name, err)
	}

	return value, nil
}

func malformed(p *Policy, name string, err error) error {
	return errors.Wrapf(ErrMalformedPolicy, "%s/%s: %v", p.Name(), name, err)
}

// parseCPUList accepts both the space separated form of affected_cpus
// and the list format used by the cpu masks ("0-3,8").
func parseCPUList(s string) (cpuset.CPUSet, error) {
	return cpuset.Parse(strings.Join(strings.Fields(s), ","))
}

// normalizeFrequencies sorts the table ascending, removes duplicates and
// entries outside the hardware range. The kernel lists it in driver order.
func normalizeFrequencies(freqs []uint32, minFreq, maxFreq uint32) []uint32 {
	freqs = lo.Filter(freqs, func(f uint32, _ int) bool {
		return f >= minFreq && f <= maxFreq
	})
	if len(freqs) == 0 {
		return nil
	}

	slices.Sort(freqs)

	return slices.Compact(freqs)
}

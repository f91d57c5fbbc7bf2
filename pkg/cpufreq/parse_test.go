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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"k8s.io/utils/cpuset"
)

func TestParsePolicyDiscrete(t *testing.T) {
	root := t.TempDir()
	dir := writeSyntheticPolicy(t, root, 0, discreteAttrs())

	p, err := parsePolicy(dir, 0)
	require.NoError(t, err)

	expected := &Policy{
		ID:                   0,
		AffectedCPUs:         cpuset.New(0, 1, 2, 3),
		RelatedCPUs:          cpuset.New(0, 1, 2, 3),
		Driver:               "acpi-cpufreq",
		Governor:             "ondemand",
		AvailableGovernors:   []string{"performance", "powersave", "ondemand", "userspace"},
		CurrentFrequency:     1200000,
		MinCPUFrequency:      800000,
		MaxCPUFrequency:      2000000,
		MinPolicyFrequency:   800000,
		MaxPolicyFrequency:   2000000,
		AvailableFrequencies: []uint32{800000, 1200000, 1600000, 2000000},
	}

	if diff := cmp.Diff(expected, p, cmpopts.IgnoreUnexported(Policy{}), cmp.Comparer(func(a, b cpuset.CPUSet) bool {
		return a.Equals(b)
	})); diff != "" {
		t.Errorf("unexpected policy (-want +got):\n%s", diff)
	}

	assert.True(t, p.IsDiscrete())
	assert.Equal(t, dir, p.Dir())
	assert.Equal(t, "policy0", p.Name())
}

func TestParsePolicyOptionalAttributes(t *testing.T) {
	root := t.TempDir()
	dir := writeSyntheticPolicy(t, root, 4, continuousAttrs())

	p, err := parsePolicy(dir, 4)
	require.NoError(t, err)

	assert.False(t, p.IsDiscrete())
	assert.Nil(t, p.AvailableFrequencies)
	assert.Equal(t, "4", p.AffectedCPUs.String())
	assert.True(t, p.RelatedCPUs.Equals(p.AffectedCPUs))

	dir = writeSyntheticPolicy(t, root, 5, withAttrs(continuousAttrs(), map[string]string{
		attrAvailableGovernors: "",
		attrScalingDriver:      "",
	}))

	p, err = parsePolicy(dir, 5)
	require.NoError(t, err)
	assert.Empty(t, p.AvailableGovernors)
	assert.Empty(t, p.Driver)
}

func TestParsePolicyNormalizesTable(t *testing.T) {
	root := t.TempDir()
	dir := writeSyntheticPolicy(t, root, 0, withAttrs(discreteAttrs(), map[string]string{
		attrAvailableFrequencies: "1600000 800000 1600000 2400000 400000 1200000\n",
	}))

	p, err := parsePolicy(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{800000, 1200000, 1600000}, p.AvailableFrequencies)
}

func TestParsePolicyCurrentFrequencyFallback(t *testing.T) {
	root := t.TempDir()
	dir := writeSyntheticPolicy(t, root, 0, withAttrs(discreteAttrs(), map[string]string{
		attrScalingCurFreq: "",
		attrCPUInfoCurFreq: "1600000\n",
	}))

	p, err := parsePolicy(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1600000), p.CurrentFrequency)
}

func TestParsePolicyCPUList(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected cpuset.CPUSet
	}{
		{name: "space separated", content: "0 1 2 3\n", expected: cpuset.New(0, 1, 2, 3)},
		{name: "range", content: "0-3\n", expected: cpuset.New(0, 1, 2, 3)},
		{name: "list with ranges", content: "0-1,8-9\n", expected: cpuset.New(0, 1, 8, 9)},
		{name: "single", content: "7\n", expected: cpuset.New(7)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cpus, err := parseCPUList(tc.content)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equals(cpus), "got %s", cpus.String())
		})
	}
}

func TestParsePolicyMalformed(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]string
	}{
		{name: "missing governor", overrides: map[string]string{attrScalingGovernor: ""}},
		{name: "empty governor", overrides: map[string]string{attrScalingGovernor: "\n"}},
		{name: "missing affected cpus", overrides: map[string]string{attrAffectedCPUs: ""}},
		{name: "offline policy", overrides: map[string]string{attrAffectedCPUs: "\n"}},
		{name: "bad cpu list", overrides: map[string]string{attrAffectedCPUs: "zero\n"}},
		{name: "missing hardware min", overrides: map[string]string{attrCPUInfoMinFreq: ""}},
		{name: "bad hardware max", overrides: map[string]string{attrCPUInfoMaxFreq: "fast\n"}},
		{name: "hardware range inverted", overrides: map[string]string{attrCPUInfoMinFreq: "3000000\n"}},
		{name: "missing current frequency", overrides: map[string]string{attrScalingCurFreq: ""}},
		{name: "bad policy min", overrides: map[string]string{attrScalingMinFreq: "-800000\n"}},
		{name: "policy range inverted", overrides: map[string]string{attrScalingMinFreq: "1600000\n", attrScalingMaxFreq: "1200000\n"}},
		{name: "policy above hardware", overrides: map[string]string{attrScalingMaxFreq: "2400000\n"}},
		{name: "bad frequency table", overrides: map[string]string{attrAvailableFrequencies: "800000 turbo\n"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			dir := writeSyntheticPolicy(t, root, 1, withAttrs(discreteAttrs(), tc.overrides))

			p, err := parsePolicy(dir, 1)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrMalformedPolicy)
		})
	}
}

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
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// discreteAttrs describes an acpi-cpufreq policy with a frequency table
// listed in driver order.
func discreteAttrs() map[string]string {
	return map[string]string{
		attrAffectedCPUs:         "0 1 2 3\n",
		attrRelatedCPUs:          "0 1 2 3\n",
		attrScalingDriver:        "acpi-cpufreq\n",
		attrScalingGovernor:      "ondemand\n",
		attrAvailableGovernors:   "performance powersave ondemand userspace\n",
		attrScalingCurFreq:       "1200000\n",
		attrCPUInfoMinFreq:       "800000\n",
		attrCPUInfoMaxFreq:       "2000000\n",
		attrScalingMinFreq:       "800000\n",
		attrScalingMaxFreq:       "2000000\n",
		attrAvailableFrequencies: "2000000 1600000 1200000 800000 \n",
		attrScalingSetSpeed:      "<unsupported>\n",
	}
}

// continuousAttrs describes an intel_pstate policy without a frequency table.
func continuousAttrs() map[string]string {
	return map[string]string{
		attrAffectedCPUs:       "4\n",
		attrScalingDriver:      "intel_pstate\n",
		attrScalingGovernor:    "powersave\n",
		attrAvailableGovernors: "performance powersave\n",
		attrScalingCurFreq:     "2400000\n",
		attrCPUInfoMinFreq:     "400000\n",
		attrCPUInfoMaxFreq:     "4700000\n",
		attrScalingMinFreq:     "400000\n",
		attrScalingMaxFreq:     "4700000\n",
	}
}

func withAttrs(base map[string]string, overrides map[string]string) map[string]string {
	out := maps.Clone(base)

	for k, v := range overrides {
		if v == "" {
			delete(out, k)

			continue
		}

		out[k] = v
	}

	return out
}

func writeSyntheticPolicy(t *testing.T, root string, id uint, attrs map[string]string) string {
	t.Helper()

	dir := filepath.Join(root, fmt.Sprintf("policy%d", id))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for name, content := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return dir
}

func readAttr(t *testing.T, p *Policy, name string) string {
	t.Helper()

	data, err := os.ReadFile(p.attr(name))
	require.NoError(t, err)

	return string(data)
}

// breakAttr replaces an attribute with a directory, writes to it fail even as root.
func breakAttr(t *testing.T, p *Policy, name string) {
	t.Helper()

	require.NoError(t, os.Remove(p.attr(name)))
	require.NoError(t, os.Mkdir(p.attr(name), 0o755))
}

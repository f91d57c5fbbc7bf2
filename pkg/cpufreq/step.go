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
	"math"
	"slices"
)

// DefaultFrequencyStep is the step in kHz for policies without a frequency table.
const DefaultFrequencyStep uint32 = 100000

// NextFrequency returns the frequency step positions away from khz, using the
// step granularity of the registry for continuous-range policies.
func (r *Registry) NextFrequency(p *Policy, khz uint32, step int) uint32 {
	return NextFrequency(p, khz, step, r.frequencyStep)
}

// NextFrequency returns the frequency step positions away from khz.
//
// With a frequency table khz is first snapped to the nearest entry, ties going
// to the lower one, and the result is the entry step positions away. Without a
// table the result is khz + step*granularity. Either way the result is clamped
// to the hardware range, so it never fails. A nil policy returns khz unchanged.
func NextFrequency(p *Policy, khz uint32, step int, granularity uint32) uint32 {
	if p == nil {
		return khz
	}

	if p.IsDiscrete() {
		table := p.AvailableFrequencies

		return p.ClampFrequency(table[moveIndex(nearestIndex(table, khz), step, len(table))])
	}

	if granularity == 0 {
		granularity = DefaultFrequencyStep
	}

	// any larger step is clamped anyway, this keeps the product in int64
	limit := int64(math.MaxUint32/granularity) + 1
	steps := min(max(int64(step), -limit), limit)

	return p.clamp(int64(khz) + steps*int64(granularity))
}

// nearestIndex returns the index of the entry closest to khz in an ascending table.
func nearestIndex(table []uint32, khz uint32) int {
	i, found := slices.BinarySearch(table, khz)

	switch {
	case found:
		return i
	case i == 0:
		return 0
	case i == len(table):
		return len(table) - 1
	case table[i]-khz < khz-table[i-1]:
		return i
	default:
		return i - 1
	}
}

func moveIndex(idx, step, size int) int {
	switch {
	case step >= size-1-idx:
		return size - 1
	case step <= -idx:
		return 0
	default:
		return idx + step
	}
}

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

package applier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/sergelogvinov/cpufreq-manager/pkg/config"
	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"

	"k8s.io/utils/ptr"
)

func writeSyntheticPolicy(t *testing.T, root string, id uint, cpus string, minPolicy, maxPolicy uint32) {
	t.Helper()

	dir := filepath.Join(root, fmt.Sprintf("policy%d", id))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	attrs := map[string]string{
		"affected_cpus":               cpus,
		"scaling_governor":            "schedutil",
		"scaling_available_governors": "performance powersave schedutil",
		"scaling_cur_freq":            "1200000",
		"cpuinfo_min_freq":            "800000",
		"cpuinfo_max_freq":            "3000000",
		"scaling_min_freq":            fmt.Sprint(minPolicy),
		"scaling_max_freq":            fmt.Sprint(maxPolicy),
	}

	for name, content := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644))
	}
}

func TestApply(t *testing.T) {
	testCases := []struct {
		name        string
		current     [2]uint32
		rule        config.PolicyRule
		expected    [2]uint32
		expectedGov string
	}{
		{
			name:        "governor only",
			current:     [2]uint32{800000, 3000000},
			rule:        config.PolicyRule{Governor: "performance"},
			expected:    [2]uint32{800000, 3000000},
			expectedGov: "performance",
		},
		{
			name:        "narrow range",
			current:     [2]uint32{800000, 3000000},
			rule:        config.PolicyRule{MinFrequency: ptr.To(uint32(1000000)), MaxFrequency: ptr.To(uint32(2000000))},
			expected:    [2]uint32{1000000, 2000000},
			expectedGov: "schedutil",
		},
		{
			name:        "move range above current max",
			current:     [2]uint32{800000, 1200000},
			rule:        config.PolicyRule{MinFrequency: ptr.To(uint32(2000000)), MaxFrequency: ptr.To(uint32(2500000))},
			expected:    [2]uint32{2000000, 2500000},
			expectedGov: "schedutil",
		},
		{
			name:        "move range below current min",
			current:     [2]uint32{2000000, 3000000},
			rule:        config.PolicyRule{MinFrequency: ptr.To(uint32(800000)), MaxFrequency: ptr.To(uint32(1000000))},
			expected:    [2]uint32{800000, 1000000},
			expectedGov: "schedutil",
		},
		{
			name:        "clamped to hardware",
			current:     [2]uint32{1000000, 2000000},
			rule:        config.PolicyRule{MinFrequency: ptr.To(uint32(100)), MaxFrequency: ptr.To(uint32(9000000))},
			expected:    [2]uint32{800000, 3000000},
			expectedGov: "schedutil",
		},
		{
			name:        "min drags max",
			current:     [2]uint32{800000, 1200000},
			rule:        config.PolicyRule{MinFrequency: ptr.To(uint32(2000000))},
			expected:    [2]uint32{2000000, 2000000},
			expectedGov: "schedutil",
		},
		{
			name:        "max drags min",
			current:     [2]uint32{2000000, 3000000},
			rule:        config.PolicyRule{MaxFrequency: ptr.To(uint32(1000000))},
			expected:    [2]uint32{1000000, 1000000},
			expectedGov: "schedutil",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeSyntheticPolicy(t, root, 0, "0 1", tc.current[0], tc.current[1])

			registry := cpufreq.NewRegistry(cpufreq.Options{Root: root})
			cfg := &config.Config{Policies: []config.PolicyRule{tc.rule}}

			require.NoError(t, New(registry, logr.Discard()).Apply(context.Background(), cfg))

			p, err := registry.Lookup(0)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, [2]uint32{p.MinPolicyFrequency, p.MaxPolicyFrequency})
			assert.Equal(t, tc.expectedGov, p.Governor)
		})
	}
}

func TestApplySelectsPolicies(t *testing.T) {
	root := t.TempDir()
	writeSyntheticPolicy(t, root, 0, "0 1", 800000, 3000000)
	writeSyntheticPolicy(t, root, 2, "2 3", 800000, 3000000)
	writeSyntheticPolicy(t, root, 4, "4 5", 800000, 3000000)

	registry := cpufreq.NewRegistry(cpufreq.Options{Root: root})
	cfg := &config.Config{Policies: []config.PolicyRule{
		{Name: "first", PolicyIDs: []uint{0}, Governor: "powersave"},
		{Name: "second", CPUs: "3", Governor: "performance"},
	}}

	require.NoError(t, New(registry, logr.Discard()).Apply(context.Background(), cfg))

	governors := map[uint]string{}
	for _, p := range registry.Drivers(false) {
		governors[p.ID] = p.Governor
	}

	assert.Equal(t, map[uint]string{0: "powersave", 2: "performance", 4: "schedutil"}, governors)
}

func TestApplyCollectsErrors(t *testing.T) {
	root := t.TempDir()
	writeSyntheticPolicy(t, root, 0, "0", 800000, 3000000)
	writeSyntheticPolicy(t, root, 1, "1", 800000, 3000000)
	writeSyntheticPolicy(t, root, 2, "2", 800000, 3000000)

	registry := cpufreq.NewRegistry(cpufreq.Options{Root: root})
	cfg := &config.Config{Policies: []config.PolicyRule{
		{Name: "ok", PolicyIDs: []uint{1}, Governor: "performance"},
		{Name: "unknown", Governor: "turbo"},
	}}

	err := New(registry, logr.Discard()).Apply(context.Background(), cfg)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, cpufreq.ErrValidation)

	p, lookupErr := registry.Lookup(1)
	require.NoError(t, lookupErr)
	assert.Equal(t, "performance", p.Governor)
}

func TestApplyCanceled(t *testing.T) {
	root := t.TempDir()
	writeSyntheticPolicy(t, root, 0, "0", 800000, 3000000)

	registry := cpufreq.NewRegistry(cpufreq.Options{Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(registry, logr.Discard()).Apply(ctx, &config.Config{Policies: []config.PolicyRule{{Governor: "performance"}}})
	assert.ErrorIs(t, err, context.Canceled)

	p, lookupErr := registry.Lookup(0)
	require.NoError(t, lookupErr)
	assert.Equal(t, "schedutil", p.Governor)
}

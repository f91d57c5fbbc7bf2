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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergelogvinov/cpufreq-manager/pkg/cpufreq"
	"github.com/sergelogvinov/cpufreq-manager/pkg/utils/reconciler"
)

func writePolicy(t *testing.T, root string) string {
	t.Helper()

	dir := filepath.Join(root, "policy0")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	attrs := map[string]string{
		"affected_cpus":               "0 1",
		"scaling_driver":              "acpi-cpufreq",
		"scaling_governor":            "schedutil",
		"scaling_available_governors": "performance powersave schedutil",
		"scaling_cur_freq":            "1200000",
		"cpuinfo_min_freq":            "800000",
		"cpuinfo_max_freq":            "3000000",
		"scaling_min_freq":            "800000",
		"scaling_max_freq":            "3000000",
	}

	for name, content := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644))
	}

	return dir
}

func readGovernor(t *testing.T, dir string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "scaling_governor"))
	require.NoError(t, err)

	return strings.TrimSpace(string(data))
}

func newTestHandler(t *testing.T, configBody string, apply bool) (*AgentHandler, string, string) {
	t.Helper()

	root := t.TempDir()
	dir := writePolicy(t, root)

	t.Setenv("CPUFREQ_ROOT", root)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if configBody != "" {
		require.NoError(t, os.WriteFile(configPath, []byte(configBody), 0o644))
	}

	registry := cpufreq.NewRegistry(cpufreq.Options{Root: root})
	t.Cleanup(registry.Free)

	return NewHandler(configPath, registry, apply, logr.Discard()), dir, configPath
}

var (
	timerEvent = reconciler.Event{Type: reconciler.TimerEvent, Key: reconciler.SyncKey}
	fileEvent  = reconciler.Event{Type: reconciler.FileEvent, Key: "config.yaml"}
)

func TestReconcileAppliesConfiguration(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "policies:\n- governor: performance\n", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))
}

func TestReconcileUnchangedConfiguration(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "policies:\n- governor: performance\n", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))

	// changed behind the agent's back
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaling_governor"), []byte("powersave\n"), 0o644))

	require.NoError(t, handler.Reconcile(context.Background(), nil, fileEvent))
	assert.Equal(t, "powersave", readGovernor(t, dir))

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))
}

func TestReconcileChangedConfiguration(t *testing.T) {
	handler, dir, configPath := newTestHandler(t, "policies:\n- governor: performance\n", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))

	require.NoError(t, os.WriteFile(configPath, []byte("policies:\n- governor: powersave\n"), 0o644))

	require.NoError(t, handler.Reconcile(context.Background(), nil, fileEvent))
	assert.Equal(t, "powersave", readGovernor(t, dir))
}

func TestReconcileInvalidConfiguration(t *testing.T) {
	handler, dir, configPath := newTestHandler(t, "policies:\n- governor: performance\n", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))

	require.NoError(t, os.WriteFile(configPath, []byte("policies: [\n"), 0o644))

	assert.NoError(t, handler.Reconcile(context.Background(), nil, fileEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))
	require.NotNil(t, handler.cfg)
	assert.Equal(t, "performance", handler.cfg.Policies[0].Governor)
}

func TestReconcileValidationErrorsAreNotRetried(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "policies:\n- governor: ondemand\n", true)

	assert.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "schedutil", readGovernor(t, dir))
}

func TestReconcileApplyDisabled(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "policies:\n- governor: performance\n", false)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "schedutil", readGovernor(t, dir))
	assert.Len(t, handler.registry.Snapshot(), 1)
}

func TestReconcileMissingConfiguration(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "schedutil", readGovernor(t, dir))
	require.NotNil(t, handler.cfg)
	assert.Empty(t, handler.cfg.Policies)
}

func TestReconcileRepeatedTimerEvents(t *testing.T) {
	handler, dir, _ := newTestHandler(t, "policies:\n- governor: performance\n  maxFrequency: 2000000\n", true)

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))

	hash := handler.configHash
	assert.NotZero(t, hash)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaling_governor"), []byte("powersave\n"), 0o644))

	require.NoError(t, handler.Reconcile(context.Background(), nil, timerEvent))
	assert.Equal(t, "performance", readGovernor(t, dir))
	assert.Equal(t, hash, handler.configHash)

	data, err := os.ReadFile(filepath.Join(dir, "scaling_max_freq"))
	require.NoError(t, err)
	assert.Equal(t, "2000000", strings.TrimSpace(string(data)))
}

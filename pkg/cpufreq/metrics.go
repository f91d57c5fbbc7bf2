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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cpufreq"

// Metrics counts registry activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mutations         *prometheus.CounterVec
	policiesFound     prometheus.Gauge
	policiesMalformed prometheus.Gauge
}

// NewMetrics creates the registry metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mutations_total",
				Help:      "Total number of scaling policy changes by operation and result",
			},
			[]string{"operation", "result"},
		),

		policiesFound: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "policies",
				Help:      "Number of scaling policies in the registry",
			},
		),

		policiesMalformed: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "policies_skipped",
				Help:      "Number of scaling policies skipped by the last discovery",
			},
		),
	}
}

func (m *Metrics) observeMutation(op string, err error) {
	if m == nil {
		return
	}

	m.mutations.WithLabelValues(op, mutationResult(err)).Inc()
}

func (m *Metrics) setPolicies(found, skipped int) {
	if m == nil {
		return
	}

	m.policiesFound.Set(float64(found))
	m.policiesMalformed.Set(float64(skipped))
}

func mutationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsValidationError(err):
		return "rejected"
	default:
		return "failed"
	}
}

var (
	descCurrentFrequency = prometheus.NewDesc(
		"cpufreq_policy_current_frequency_khz",
		"Last read frequency of the scaling policy",
		[]string{"policy"}, nil,
	)
	descHardwareMin = prometheus.NewDesc(
		"cpufreq_policy_hardware_min_frequency_khz",
		"Lowest frequency supported by the hardware",
		[]string{"policy"}, nil,
	)
	descHardwareMax = prometheus.NewDesc(
		"cpufreq_policy_hardware_max_frequency_khz",
		"Highest frequency supported by the hardware",
		[]string{"policy"}, nil,
	)
	descPolicyMin = prometheus.NewDesc(
		"cpufreq_policy_min_frequency_khz",
		"Configured lower frequency bound",
		[]string{"policy"}, nil,
	)
	descPolicyMax = prometheus.NewDesc(
		"cpufreq_policy_max_frequency_khz",
		"Configured upper frequency bound",
		[]string{"policy"}, nil,
	)
	descGovernor = prometheus.NewDesc(
		"cpufreq_policy_governor_info",
		"Active governor of the scaling policy",
		[]string{"policy", "governor", "driver"}, nil,
	)
	descCPUs = prometheus.NewDesc(
		"cpufreq_policy_cpus",
		"Number of online CPUs governed by the scaling policy",
		[]string{"policy"}, nil,
	)
)

// Collector exports the cached policy values. It never touches sysfs,
// values are as fresh as the registry cache.
type Collector struct {
	registry *Registry
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for the policies cached by r.
func NewCollector(r *Registry) *Collector {
	return &Collector{registry: r}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descCurrentFrequency
	ch <- descHardwareMin
	ch <- descHardwareMax
	ch <- descPolicyMin
	ch <- descPolicyMax
	ch <- descGovernor
	ch <- descCPUs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.registry.Snapshot() {
		id := strconv.FormatUint(uint64(p.ID), 10)

		ch <- prometheus.MustNewConstMetric(descCurrentFrequency, prometheus.GaugeValue, float64(p.CurrentFrequency), id)
		ch <- prometheus.MustNewConstMetric(descHardwareMin, prometheus.GaugeValue, float64(p.MinCPUFrequency), id)
		ch <- prometheus.MustNewConstMetric(descHardwareMax, prometheus.GaugeValue, float64(p.MaxCPUFrequency), id)
		ch <- prometheus.MustNewConstMetric(descPolicyMin, prometheus.GaugeValue, float64(p.MinPolicyFrequency), id)
		ch <- prometheus.MustNewConstMetric(descPolicyMax, prometheus.GaugeValue, float64(p.MaxPolicyFrequency), id)
		ch <- prometheus.MustNewConstMetric(descGovernor, prometheus.GaugeValue, 1, id, p.Governor, p.Driver)
		ch <- prometheus.MustNewConstMetric(descCPUs, prometheus.GaugeValue, float64(p.AffectedCPUs.Size()), id)
	}
}

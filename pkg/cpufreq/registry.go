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
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sergelogvinov/cpufreq-manager/pkg/utils/locks"
)

const (
	// DefaultRefreshInterval is how old the cached runtime values may get
	// before Drivers(true) re-reads them.
	DefaultRefreshInterval = 2 * time.Second
)

// Options configures a Registry.
type Options struct {
	// Root is the cpufreq sysfs directory, DefaultRoot if empty.
	Root string
	// FrequencyStep is the step in kHz used for policies without a
	// frequency table, DefaultFrequencyStep if zero.
	FrequencyStep uint32
	// RefreshInterval limits how often Drivers(true) re-reads runtime values.
	// Zero means DefaultRefreshInterval, negative disables the refresh.
	RefreshInterval time.Duration

	Logger  logr.Logger
	Metrics *Metrics
}

// Registry caches the scaling policies of one machine.
//
// The cache is built on the first Drivers(true) call and kept until Free.
// It does not notice changes made to sysfs by other processes; use Reload
// or Rescan for that.
type Registry struct {
	root            string
	frequencyStep   uint32
	refreshInterval time.Duration
	logger          logr.Logger
	metrics         *Metrics

	// policy locks serialize sysfs writes and record updates per policy
	locks *locks.Locks[uint]

	mu         sync.Mutex
	policies   []*Policy
	discovered bool
	updatedAt  time.Time
	skipped    error

	now func() time.Time
}

// NewRegistry creates an empty registry, nothing is read until Drivers(true).
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		root:            opts.Root,
		frequencyStep:   opts.FrequencyStep,
		refreshInterval: opts.RefreshInterval,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		locks:           locks.NewLocks[uint](),
		now:             time.Now,
	}

	if r.root == "" {
		r.root = DefaultRoot
	}

	if r.frequencyStep == 0 {
		r.frequencyStep = DefaultFrequencyStep
	}

	if r.refreshInterval == 0 {
		r.refreshInterval = DefaultRefreshInterval
	}

	if r.logger.GetSink() == nil {
		r.logger = logr.Discard()
	}

	return r
}

// Root returns the sysfs directory the registry reads.
func (r *Registry) Root() string {
	return r.root
}

// Drivers returns the cached policies.
//
// With canUpdate false the cache is returned as is, even if it is empty.
// With canUpdate true the policies are discovered if that did not happen yet,
// otherwise their runtime values are re-read once the refresh interval passed.
// The returned records are owned by the registry and stay valid until Rescan or Free.
func (r *Registry) Drivers(canUpdate bool) []*Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if canUpdate {
		switch {
		case !r.discovered:
			r.rescanLocked()
		case r.refreshInterval > 0 && r.now().Sub(r.updatedAt) >= r.refreshInterval:
			r.refreshLocked()
		}
	}

	return slices.Clone(r.policies)
}

// Rescan drops the cache and discovers the policies again.
// Records returned before are detached from the registry.
func (r *Registry) Rescan() []*Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rescanLocked()

	return slices.Clone(r.policies)
}

// Lookup returns the cached policy with the given id.
func (r *Registry) Lookup(id uint) (*Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.policies {
		if p.ID == id {
			return p, nil
		}
	}

	return nil, errors.Wrapf(ErrPolicyNotFound, "policy%d", id)
}

// Reload re-reads the runtime values of one policy. On error the record is unchanged.
func (r *Registry) Reload(p *Policy) error {
	if p == nil {
		return errors.Wrap(ErrValidation, "nil policy")
	}

	var err error

	r.locks.Do(p.ID, func() {
		var dyn dynamicAttributes

		if dyn, err = readDynamic(p); err == nil {
			p.apply(dyn)
		}
	})

	return err
}

// Snapshot returns copies of the cached policies, safe to read while
// other goroutines change the registry.
func (r *Registry) Snapshot() []*Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Policy, 0, len(r.policies))

	for _, p := range r.policies {
		r.locks.Do(p.ID, func() {
			out = append(out, p.DeepCopy())
		})
	}

	return out
}

// Skipped returns the reasons why policies were left out by the last discovery.
func (r *Registry) Skipped() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.skipped
}

// Free drops the cache. It is safe to call any number of times.
func (r *Registry) Free() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.discovered {
		return
	}

	r.policies = nil
	r.discovered = false
	r.skipped = nil
	r.updatedAt = time.Time{}

	r.metrics.setPolicies(0, 0)
	r.logger.V(1).Info("Scaling policy cache released")
}

func (r *Registry) rescanLocked() {
	r.policies = nil
	r.skipped = nil
	r.discovered = true
	r.updatedAt = r.now()

	results, err := discoverPolicies(r.root)
	if err != nil {
		r.logger.Error(err, "Failed to discover scaling policies", "root", r.root)
		r.metrics.setPolicies(0, 0)

		return
	}

	if len(results) == 0 {
		r.logger.V(1).Info("No cpufreq scaling policies found", "root", r.root)
	}

	for _, res := range results {
		if res.err != nil {
			r.logger.Info("Skipping scaling policy", "dir", res.dir, "reason", res.err.Error())
			r.skipped = multierr.Append(r.skipped, res.err)

			continue
		}

		r.policies = append(r.policies, res.policy)
		r.logger.V(2).Info("Discovered scaling policy", "policy", res.policy.String())
	}

	skipped := len(multierr.Errors(r.skipped))

	r.metrics.setPolicies(len(r.policies), skipped)
	r.logger.V(1).Info("Scaling policies discovered", "count", len(r.policies), "skipped", skipped)
}

func (r *Registry) refreshLocked() {
	r.updatedAt = r.now()

	for _, p := range r.policies {
		r.locks.Do(p.ID, func() {
			dyn, err := readDynamic(p)
			if err != nil {
				// CPU hotplug removes the policy files until the next rescan
				r.logger.V(1).Info("Keeping stale scaling policy values", "policy", p.Name(), "reason", err.Error())

				return
			}

			p.apply(dyn)
		})
	}
}

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

	"github.com/pkg/errors"

	utilsys "github.com/sergelogvinov/cpufreq-manager/pkg/utils/sys"
)

const (
	opMinFrequency = "min_frequency"
	opMaxFrequency = "max_frequency"
	opGovernor     = "governor"
	opSetSpeed     = "setspeed"
)

// SetMinFrequency sets the lower policy bound.
// khz must be within the hardware range and not above the current upper bound.
func (r *Registry) SetMinFrequency(p *Policy, khz uint32) error {
	return r.mutate(opMinFrequency, p, func() error {
		if err := checkHardwareRange(p, "min", khz); err != nil {
			return err
		}

		if khz > p.MaxPolicyFrequency {
			return errors.Wrapf(ErrValidation, "%s: min frequency %d kHz above max policy frequency %d kHz",
				p.Name(), khz, p.MaxPolicyFrequency)
		}

		value, err := r.writeFrequency(p, attrScalingMinFreq, khz)
		if err != nil {
			return err
		}

		p.MinPolicyFrequency = value

		return nil
	})
}

// SetMaxFrequency sets the upper policy bound.
// khz must be within the hardware range and not below the current lower bound.
func (r *Registry) SetMaxFrequency(p *Policy, khz uint32) error {
	return r.mutate(opMaxFrequency, p, func() error {
		if err := checkHardwareRange(p, "max", khz); err != nil {
			return err
		}

		if khz < p.MinPolicyFrequency {
			return errors.Wrapf(ErrValidation, "%s: max frequency %d kHz below min policy frequency %d kHz",
				p.Name(), khz, p.MinPolicyFrequency)
		}

		value, err := r.writeFrequency(p, attrScalingMaxFreq, khz)
		if err != nil {
			return err
		}

		p.MaxPolicyFrequency = value

		return nil
	})
}

// SetGovernor switches the policy to one of its available governors.
func (r *Registry) SetGovernor(p *Policy, governor string) error {
	return r.mutate(opGovernor, p, func() error {
		if !p.HasGovernor(governor) {
			return errors.Wrapf(ErrValidation, "%s: governor %q not available, have %v",
				p.Name(), governor, p.AvailableGovernors)
		}

		if err := utilsys.WriteString(p.attr(attrScalingGovernor), governor); err != nil {
			return hardwareWriteError(p, attrScalingGovernor, err)
		}

		p.Governor = governor

		return nil
	})
}

// SetSpeed sets a fixed frequency, the policy must run the userspace governor.
// khz must be within the policy bounds.
func (r *Registry) SetSpeed(p *Policy, khz uint32) error {
	return r.mutate(opSetSpeed, p, func() error {
		if p.Governor != UserspaceGovernor {
			return errors.Wrapf(ErrValidation, "%s: governor %s does not accept a fixed frequency", p.Name(), p.Governor)
		}

		if khz < p.MinPolicyFrequency || khz > p.MaxPolicyFrequency {
			return errors.Wrapf(ErrValidation, "%s: frequency %d kHz outside policy range %d-%d kHz",
				p.Name(), khz, p.MinPolicyFrequency, p.MaxPolicyFrequency)
		}

		if err := utilsys.WriteUint32(p.attr(attrScalingSetSpeed), khz); err != nil {
			return hardwareWriteError(p, attrScalingSetSpeed, err)
		}

		p.CurrentFrequency = khz

		return nil
	})
}

func (r *Registry) mutate(op string, p *Policy, fn func() error) error {
	if p == nil {
		err := errors.Wrap(ErrValidation, "nil policy")
		r.metrics.observeMutation(op, err)

		return err
	}

	var err error

	r.locks.Do(p.ID, func() {
		err = fn()
	})

	r.metrics.observeMutation(op, err)

	if err != nil {
		r.logger.V(1).Info("Scaling policy change rejected", "policy", p.Name(), "operation", op, "reason", err.Error())

		return err
	}

	r.logger.Info("Scaling policy changed", "policy", p.Name(), "operation", op,
		"governor", p.Governor, "min", p.MinPolicyFrequency, "max", p.MaxPolicyFrequency)

	return nil
}

// writeFrequency writes a policy bound and returns the value the kernel
// reports back, it may round to a supported frequency.
func (r *Registry) writeFrequency(p *Policy, name string, khz uint32) (uint32, error) {
	path := p.attr(name)

	if err := utilsys.WriteUint32(path, khz); err != nil {
		return 0, hardwareWriteError(p, name, err)
	}

	value, err := utilsys.ReadUint32(path)
	if err != nil || value < p.MinCPUFrequency || value > p.MaxCPUFrequency {
		r.logger.V(2).Info("Unusable read-back, caching written value", "policy", p.Name(), "attribute", name, "value", value)

		return khz, nil
	}

	return value, nil
}

func checkHardwareRange(p *Policy, bound string, khz uint32) error {
	if khz < p.MinCPUFrequency || khz > p.MaxCPUFrequency {
		return errors.Wrapf(ErrValidation, "%s: %s frequency %d kHz outside hardware range %d-%d kHz",
			p.Name(), bound, khz, p.MinCPUFrequency, p.MaxCPUFrequency)
	}

	return nil
}

func hardwareWriteError(p *Policy, name string, err error) error {
	return fmt.Errorf("%w: %s/%s: %w", ErrHardwareWrite, p.Name(), name, err)
}

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

import "github.com/pkg/errors"

var (
	// ErrMalformedPolicy is returned when a policy directory cannot be parsed.
	// Discovery skips such policies.
	ErrMalformedPolicy = errors.New("malformed scaling policy")
	// ErrValidation is returned when a requested change violates the policy limits.
	// Nothing is written to the hardware in that case.
	ErrValidation = errors.New("validation rejected")
	// ErrHardwareWrite is returned when the kernel rejects a write.
	ErrHardwareWrite = errors.New("hardware write failed")
	// ErrPolicyNotFound is returned when a policy id is not in the registry.
	ErrPolicyNotFound = errors.New("scaling policy not found")
)

// IsValidationError reports whether err rejected a change before anything was written.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsHardwareWriteError reports whether err is a write refused by the kernel.
func IsHardwareWriteError(err error) bool {
	return errors.Is(err, ErrHardwareWrite)
}

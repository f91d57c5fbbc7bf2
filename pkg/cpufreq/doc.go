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

// Package cpufreq discovers and controls the CPU frequency scaling policies
// exposed by the Linux cpufreq sysfs interface.
//
// A Registry caches one Policy per policyN directory. Reads are served from
// the cache; writes validate against the cached limits, go to sysfs, and only
// then update the cached record. The package never polls in the background.
package cpufreq

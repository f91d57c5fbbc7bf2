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
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// policyResult is the outcome of parsing one policy directory.
type policyResult struct {
	dir    string
	policy *Policy
	err    error
}

// discoverPolicies parses every policyN directory under root, ordered by N.
// A missing root means the platform has no cpufreq support and yields no results.
func discoverPolicies(root string) ([]policyResult, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to read cpufreq directory %s", root)
	}

	type candidate struct {
		id  uint
		dir string
	}

	candidates := make([]candidate, 0, len(entries))

	for _, entry := range entries {
		idStr, ok := strings.CutPrefix(entry.Name(), policyDirPrefix)
		if !ok {
			continue
		}

		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}

		// policyN entries are symlinks on some kernels
		dir := filepath.Join(root, entry.Name())
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		candidates = append(candidates, candidate{id: uint(id), dir: dir})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.id, b.id)
	})

	results := make([]policyResult, 0, len(candidates))

	for _, c := range candidates {
		p, err := parsePolicy(c.dir, c.id)
		results = append(results, policyResult{dir: c.dir, policy: p, err: err})
	}

	return results, nil
}

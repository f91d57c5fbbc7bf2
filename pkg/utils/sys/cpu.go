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

package sys

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadString returns the content of a sysfs attribute without surrounding whitespace.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// ReadFields returns the whitespace separated tokens of a sysfs attribute.
func ReadFields(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return strings.Fields(string(data)), nil
}

// ReadUint32 parses a sysfs attribute holding a single unsigned integer.
func ReadUint32(path string) (uint32, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q in %s: %w", value, path, err)
	}

	return uint32(n), nil
}

// ReadUint32List parses a sysfs attribute holding whitespace separated unsigned integers.
func ReadUint32List(path string) ([]uint32, error) {
	fields, err := ReadFields(path)
	if err != nil {
		return nil, err
	}

	values := make([]uint32, 0, len(fields))

	for _, field := range fields {
		n, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q in %s: %w", field, path, err)
		}

		values = append(values, uint32(n))
	}

	return values, nil
}

// WriteString writes a value into an existing sysfs attribute.
// Sysfs attributes are never created, so a missing file is reported as an error.
func WriteString(path string, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	if _, err = f.WriteString(value + "\n"); err != nil {
		f.Close() //nolint:errcheck

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

// WriteUint32 writes an unsigned integer into an existing sysfs attribute.
func WriteUint32(path string, value uint32) error {
	return WriteString(path, strconv.FormatUint(uint64(value), 10))
}

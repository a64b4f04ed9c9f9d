/*
Copyright 2022 Intel Corporation

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

package resctrl

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseSize parses an operator-supplied cache size, e.g. "4Mi", "512Ki", or
// a plain byte count, into an exact byte count, using the Kubernetes
// resource.Quantity parser for the unit suffix.
func ParseSize(s string) (uint64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cache size %q: %w", s, err)
	}
	v := q.Value()
	if v < 0 {
		return 0, fmt.Errorf("cache size %q must not be negative", s)
	}
	return uint64(v), nil
}

// FormatSize renders a byte count back into a compact human unit, for
// the "info" CLI output.
func FormatSize(bytes uint64) string {
	q := resource.NewQuantity(int64(bytes), resource.BinarySI)
	return q.String()
}

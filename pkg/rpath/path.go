/*
Copyright 2019 Intel Corporation

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

// Package rpath centralizes host filesystem path construction so that tests
// can redirect every sysfs/resctrl path under this package to a temporary
// directory without any other package carrying its own copy of the prefix.
package rpath

import (
	"path/filepath"
)

var prefix = "/"

// SetPrefix sets the root prefix prepended to every path returned by Path.
// Intended for tests; production code never needs to call it.
func SetPrefix(p string) {
	prefix = p
}

// Path joins elem onto the current root prefix.
func Path(elem ...string) string {
	return filepath.Join(append([]string{prefix}, elem...)...)
}

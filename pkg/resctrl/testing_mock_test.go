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

package resctrl

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hostcache/cachepart/pkg/rpath"
)

// mockHostFs builds a throwaway tree mimicking /sys/fs/resctrl and
// /sys/devices/system/cpu beneath a temp dir, then points the package's
// rpath prefix at it for the duration of the test. It mirrors
// mockResctrlFs's "copy fixtures into a tempdir, override the package's
// path root" approach.
type mockHostFs struct {
	t    *testing.T
	base string
}

// newMockHostFs creates an empty mock filesystem with a single-socket,
// single-bank, non-CDP L3 resource: 2 CPUs, a 16MiB cache with 16 ways.
func newMockHostFs(t *testing.T) *mockHostFs {
	t.Helper()
	base := t.TempDir()
	m := &mockHostFs{t: t, base: base}

	m.writeFile(filepath.Join(resctrlRoot, "info", "L3", "num_closids"), "16\n")
	m.writeFile(filepath.Join(resctrlRoot, "info", "L3", "min_cbm_bits"), "2\n")
	m.writeFile(filepath.Join(resctrlRoot, "info", "L3", "cbm_mask"), "ffff\n")
	m.writeFile(filepath.Join(resctrlRoot, "schemata"), "L3:0=ffff\n")
	m.writeFile(filepath.Join(resctrlRoot, "tasks"), "")

	for _, cpu := range []int{0, 1} {
		cpuDir := filepath.Join("sys", "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu))
		m.writeFile(filepath.Join(cpuDir, "topology", "physical_package_id"), "0\n")
		m.writeFile(filepath.Join(cpuDir, "cache", "index3", "size"), "16384K\n")
	}
	m.writeFile(filepath.Join("sys", "devices", "system", "cpu", "present"), "0-1\n")
	m.writeFile(filepath.Join("sys", "devices", "system", "cpu", "online"), "0-1\n")

	rpath.SetPrefix(base)
	return m
}

func (m *mockHostFs) writeFile(rel, content string) {
	m.t.Helper()
	path := filepath.Join(m.base, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		m.t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		m.t.Fatalf("write %s: %v", path, err)
	}
}

func (m *mockHostFs) relGroupSchemata(groupID string) string {
	return filepath.Join(resctrlRoot, groupID, "schemata")
}

func (m *mockHostFs) readFile(rel string) string {
	m.t.Helper()
	data, err := os.ReadFile(filepath.Join(m.base, rel))
	if err != nil {
		m.t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

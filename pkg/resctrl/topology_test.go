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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCPUList(t *testing.T) {
	tcs := []struct {
		in   string
		want []int
	}{
		{"", []int{}},
		{"0", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0-3,6,8-11", []int{0, 1, 2, 3, 6, 8, 9, 10, 11}},
	}
	for _, tc := range tcs {
		got, err := ParseCPUList(tc.in)
		if err != nil {
			t.Errorf("ParseCPUList(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(tc.want, []int(got)); diff != "" {
			t.Errorf("ParseCPUList(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestParseSizeSuffix(t *testing.T) {
	tcs := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"16K", 16 * 1024},
		{"16384K", 16384 * 1024},
		{"16M", 16 * 1024 * 1024},
	}
	for _, tc := range tcs {
		got, err := parseSizeSuffix(tc.in)
		if err != nil {
			t.Errorf("parseSizeSuffix(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseSizeSuffix(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := parseSizeSuffix(""); err == nil {
		t.Error("parseSizeSuffix(\"\") succeeded, want error")
	}
	if _, err := parseSizeSuffix("abc"); err == nil {
		t.Error("parseSizeSuffix(\"abc\") succeeded, want error")
	}
}

func TestScanTopology(t *testing.T) {
	newMockHostFs(t)

	banks, err := scanTopology("sys/devices/system/cpu", ArchX86, L3, 16)
	if err != nil {
		t.Fatalf("scanTopology failed: %v", err)
	}
	if len(banks) != 1 {
		t.Fatalf("scanTopology found %d banks, want 1", len(banks))
	}
	bank, ok := banks[0]
	if !ok {
		t.Fatalf("scanTopology did not find bank for package 0")
	}
	if bank.CacheSizeBytes != 16384*1024 {
		t.Errorf("CacheSizeBytes = %d, want %d", bank.CacheSizeBytes, 16384*1024)
	}
	wantMin := uint64(16384*1024) / 16
	if bank.CacheMinBytes != wantMin {
		t.Errorf("CacheMinBytes = %d, want %d", bank.CacheMinBytes, wantMin)
	}
	if len(bank.CPUMask) != 2 || bank.CPUMask[0] != 0 || bank.CPUMask[1] != 1 {
		t.Errorf("CPUMask = %v, want [0 1]", bank.CPUMask)
	}
}

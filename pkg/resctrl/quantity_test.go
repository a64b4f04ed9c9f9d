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

import "testing"

func TestParseSize(t *testing.T) {
	tcs := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"4Ki", 4 * 1024},
		{"4Mi", 4 * 1024 * 1024},
		{"512Ki", 512 * 1024},
	}
	for _, tc := range tcs {
		got, err := ParseSize(tc.in)
		if err != nil {
			t.Errorf("ParseSize(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseSizeNegative(t *testing.T) {
	if _, err := ParseSize("-1Mi"); err == nil {
		t.Error("ParseSize(\"-1Mi\") succeeded, want error")
	}
}

func TestFormatSizeRoundTrip(t *testing.T) {
	s := FormatSize(4 * 1024 * 1024)
	got, err := ParseSize(s)
	if err != nil {
		t.Fatalf("ParseSize(%q) failed: %v", s, err)
	}
	if got != 4*1024*1024 {
		t.Errorf("round trip via %q produced %d, want %d", s, got, 4*1024*1024)
	}
}

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
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hostcache/cachepart/pkg/rpath"
)

// ResourceType is the closed tag set of resctrl resources this package
// understands.
type ResourceType string

const (
	// L3 is the unified L3 cache allocation resource (CDP disabled).
	L3 ResourceType = "L3"
	// L3CODE is the "code" half of L3 CDP.
	L3CODE ResourceType = "L3CODE"
	// L3DATA is the "data" half of L3 CDP.
	L3DATA ResourceType = "L3DATA"
	// L2 is the L2 cache allocation resource.
	L2 ResourceType = "L2"
)

// cdpPair returns the shadow resource type that must always carry an
// identical mask to typ, and true if typ takes part in CDP at all.
func cdpPair(typ ResourceType) (ResourceType, bool) {
	switch typ {
	case L3DATA:
		return L3CODE, true
	case L3CODE:
		return L3DATA, true
	default:
		return "", false
	}
}

func (t ResourceType) cacheIndex() int {
	switch t {
	case L2:
		return 2
	default:
		return 3
	}
}

// Arch is the host architecture tag used to interpret a -1
// physical_package_id.
type Arch string

const (
	ArchX86   Arch = "x86"
	ArchARM   Arch = "arm64"
	ArchPOWER Arch = "ppc64le"
	ArchS390  Arch = "s390x"
)

// CPUSet is a set of CPU ids, kept sorted for deterministic iteration and
// formatting. CPU masks are specified up to 1024 bits wide (many more CPUs
// than any current CBM), so, unlike a Bitmask, a CPUSet is a plain sorted
// slice rather than a fixed machine word.
type CPUSet []int

func (s CPUSet) Len() int           { return len(s) }
func (s CPUSet) Less(i, j int) bool { return s[i] < s[j] }
func (s CPUSet) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Contains reports whether cpu is a member of the set.
func (s CPUSet) Contains(cpu int) bool {
	i := sort.SearchInts(s, cpu)
	return i < len(s) && s[i] == cpu
}

// ParseCPUList parses a kernel CPU list, e.g. "0-3,6,8-11", into a sorted
// CPUSet.
func ParseCPUList(s string) (CPUSet, error) {
	ids, err := listStrToArrayWide(s)
	if err != nil {
		return nil, err
	}
	set := CPUSet(ids)
	sort.Sort(set)
	return set, nil
}

// listStrToArrayWide is listStrToArray without the 64-bit ceiling, since
// CPU ids are not bounded by a CBM width.
func listStrToArrayWide(str string) ([]int, error) {
	a := []int{}
	if len(str) == 0 {
		return a, nil
	}
	for _, ran := range strings.Split(str, ",") {
		split := strings.SplitN(ran, "-", 2)
		num, err := strconv.Atoi(split[0])
		if err != nil {
			return a, fmt.Errorf("invalid integer %q: %w", str, err)
		}
		if len(split) == 1 {
			a = append(a, num)
			continue
		}
		endNum, err := strconv.Atoi(split[1])
		if err != nil {
			return a, fmt.Errorf("invalid integer in range %q: %w", str, err)
		}
		if endNum <= num {
			return a, fmt.Errorf("invalid integer range %q in %q", ran, str)
		}
		for i := num; i <= endNum; i++ {
			a = append(a, i)
		}
	}
	return a, nil
}

// CacheBank is one (socket, resource type) cache instance.
type CacheBank struct {
	// HostID uniquely names this bank across the host. L3CODE and
	// L3DATA banks sharing the same physical cache share a HostID.
	HostID int
	// CPUMask is the set of CPUs whose cache lives in this bank.
	CPUMask CPUSet

	CacheSizeBytes uint64
	CacheMinBytes  uint64

	mu             sync.Mutex
	cacheLeftBytes uint64
}

// CacheLeftBytes returns the currently-free byte count for this bank,
// guarded by the bank's own mutex (spec.md §5: the in-process mutex
// protecting the read-modify-write of this counter during allocation).
func (c *CacheBank) CacheLeftBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheLeftBytes
}

func (c *CacheBank) setCacheLeftBytes(v uint64) {
	c.mu.Lock()
	c.cacheLeftBytes = v
	c.mu.Unlock()
}

// scanTopology enumerates present CPUs and groups them into one CacheBank
// per (socket, resourceType) pair, per spec.md §4.3. cpuRoot is normally
// "sys/devices/system/cpu" under the rpath prefix.
func scanTopology(cpuRoot string, arch Arch, typ ResourceType, cbmLen uint64) (map[int]*CacheBank, error) {
	present, err := readCPUList(filepath.Join(cpuRoot, "present"))
	if err != nil {
		return nil, newErr(ErrIO, "scanTopology", cpuRoot, err)
	}

	banks := make(map[int]*CacheBank)
	idx := typ.cacheIndex()

	for _, cpu := range present {
		pkgID, err := readPackageID(cpuRoot, cpu, arch)
		if err != nil {
			return nil, newErr(ErrIO, "scanTopology", cpuRoot, err)
		}

		bank, ok := banks[pkgID]
		if !ok {
			bank = &CacheBank{HostID: pkgID}
			banks[pkgID] = bank
		}
		bank.CPUMask = append(bank.CPUMask, cpu)

		if bank.CacheSizeBytes == 0 {
			sizeBytes, err := readCacheSize(cpuRoot, cpu, idx)
			if err != nil {
				// Older kernels may lack cache/indexN/size for
				// this level; treat the bank as disabled
				// rather than failing discovery entirely.
				continue
			}
			bank.CacheSizeBytes = sizeBytes
			if cbmLen > 0 {
				bank.CacheMinBytes = sizeBytes / cbmLen
			}
		}
	}

	for _, bank := range banks {
		sort.Sort(bank.CPUMask)
	}

	return banks, nil
}

func readCPUList(path string) (CPUSet, error) {
	data, err := os.ReadFile(rpath.Path(path))
	if err != nil {
		return nil, err
	}
	return ParseCPUList(strings.TrimSpace(string(data)))
}

func readPackageID(cpuRoot string, cpu int, arch Arch) (int, error) {
	path := filepath.Join(cpuRoot, fmt.Sprintf("cpu%d", cpu), "topology", "physical_package_id")
	data, err := os.ReadFile(rpath.Path(path))
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid physical_package_id in %q: %w", path, err)
	}
	if id == -1 {
		switch arch {
		case ArchARM, ArchPOWER, ArchS390:
			return 0, nil
		}
	}
	return id, nil
}

func readCacheSize(cpuRoot string, cpu, index int) (uint64, error) {
	path := filepath.Join(cpuRoot, fmt.Sprintf("cpu%d", cpu), "cache", fmt.Sprintf("index%d", index), "size")
	data, err := os.ReadFile(rpath.Path(path))
	if err != nil {
		return 0, err
	}
	return parseSizeSuffix(strings.TrimSpace(string(data)))
}

// parseSizeSuffix parses the kernel's "123K"/"1M" cache size format.
func parseSizeSuffix(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty cache size")
	}
	mult := uint64(1)
	numPart := s
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1024
		numPart = s[:len(s)-1]
	case 'M', 'm':
		mult = 1024 * 1024
		numPart = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache size %q: %w", s, err)
	}
	return n * mult, nil
}

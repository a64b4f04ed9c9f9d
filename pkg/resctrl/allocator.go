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

import "fmt"

// AllocRequest is one "give this bank this many bytes" line of a cache
// allocation request.
type AllocRequest struct {
	Type   ResourceType
	HostID int
	Bytes  uint64
}

// waysFor converts a byte request into a number of cache ways, rounding up
// to whole ways and never going below the hardware's min_cbm_bits floor.
func waysFor(requestedBytes, cacheMinBytes uint64, minCbmBits int) int {
	if cacheMinBytes == 0 {
		return minCbmBits
	}
	ways := int((requestedBytes + cacheMinBytes - 1) / cacheMinBytes)
	if ways < minCbmBits {
		ways = minCbmBits
	}
	return ways
}

// maximalRuns returns the (inclusive) [start,end] bit ranges of every
// maximal run of set bits in b.
func maximalRuns(b Bitmask) [][2]int {
	var runs [][2]int
	start := -1
	for i := 0; i < 64; i++ {
		set := uint64(b)&(1<<uint(i)) != 0
		switch {
		case set && start == -1:
			start = i
		case !set && start != -1:
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start != -1 {
		runs = append(runs, [2]int{start, 63})
	}
	return runs
}

func maskRange(lo, hi int) Bitmask {
	var b Bitmask
	for i := lo; i <= hi; i++ {
		b |= 1 << uint(i)
	}
	return b
}

// allocateRun finds a contiguous run of exactly `ways` bits within the
// available mask. Among every run wide enough, it picks the one whose top
// edge has the highest bit index, and takes the top-aligned `ways` bits of
// that run — so allocations stack downward from the top of the cache,
// leaving the low end of the mask free to grow a future contiguous
// request. Ties (multiple runs sharing the same top edge can't happen
// since runs are disjoint) resolve naturally to the single highest run.
func allocateRun(available Bitmask, ways int) (Bitmask, bool) {
	if ways <= 0 {
		return 0, false
	}
	best := -1
	var bestMask Bitmask
	for _, r := range maximalRuns(available) {
		lo, hi := r[0], r[1]
		if hi-lo+1 < ways {
			continue
		}
		if hi > best {
			best = hi
			bestMask = maskRange(hi-ways+1, hi)
		}
	}
	if best == -1 {
		return 0, false
	}
	return bestMask, true
}

// allocate resolves every line of reqs against the default group's
// currently free bitmasks, mutating the default group's schemata and
// cacheLeftBytes counters in place and returning the new group's schemata.
// A request against a bank with insufficient contiguous cache is recorded
// and the rest of the lines are still attempted, so that one bad bank in a
// multi-bank request doesn't block the banks that would have succeeded.
func (h *HostState) allocate(reqs []AllocRequest) (Schemata, error) {
	def, ok := h.Groups[defaultGroupName]
	if !ok {
		return nil, newErr(ErrNotSupported, "allocate", "", fmt.Errorf("no default group"))
	}

	result := make(Schemata)
	var errs errCollector

	for _, req := range reqs {
		types := []ResourceType{req.Type}
		if pair, ok := cdpPair(req.Type); ok {
			types = append(types, pair)
		}

		rc, ok := h.Capabilities[req.Type]
		if !ok || !rc.Enabled {
			errs.add(newErr(ErrNotSupported, "allocate", string(req.Type), fmt.Errorf("resource not enabled")))
			continue
		}
		bank, ok := rc.Banks[req.HostID]
		if !ok {
			errs.add(newErr(ErrInvalidRequest, "allocate", string(req.Type), fmt.Errorf("unknown bank %d", req.HostID)))
			continue
		}
		if len(bank.CPUMask) == 0 {
			errs.add(newErr(ErrInvalidRequest, "allocate", fmt.Sprintf("%s host %d", req.Type, req.HostID),
				fmt.Errorf("bank has an empty cpu_mask")))
			continue
		}
		if bank.CacheMinBytes == 0 {
			errs.add(newErr(ErrNotSupported, "allocate", fmt.Sprintf("%s host %d", req.Type, req.HostID),
				fmt.Errorf("bank cache size unknown, bank disabled")))
			continue
		}

		available, ok := def.Schemata[req.Type][req.HostID]
		if !ok {
			errs.add(newErr(ErrNotSupported, "allocate", string(req.Type), fmt.Errorf("bank %d has no default schemata", req.HostID)))
			continue
		}

		ways := waysFor(req.Bytes, bank.CacheMinBytes, rc.MinCbmBits)
		run, ok := allocateRun(available, ways)
		if !ok {
			errs.add(newErr(ErrInsufficientCache, "allocate", fmt.Sprintf("%s host %d", req.Type, req.HostID),
				fmt.Errorf("no contiguous run of %d ways available", ways)))
			continue
		}

		grantedBytes := uint64(run.Popcount()) * bank.CacheMinBytes
		for _, typ := range types {
			if result[typ] == nil {
				result[typ] = make(map[int]Bitmask)
			}
			result[typ][req.HostID] = run
			if def.Schemata[typ] != nil {
				def.Schemata[typ][req.HostID] = def.Schemata[typ][req.HostID].Subtract(run)
			}
		}
		bank.setCacheLeftBytes(bank.CacheLeftBytes() - grantedBytes)
	}

	return result, errs.errorOrNil()
}

// release returns every bank/type bit of freed back to the default
// group's schemata. The OR can leave a bank's mask non-contiguous (e.g.
// freeing a group sandwiched between two others), so the actual trim-to-
// highest-run and cacheLeftBytes recomputation is left to the subsequent
// reconcileDefault call rather than done bit-by-bit here.
func (h *HostState) release(freed Schemata) {
	def, ok := h.Groups[defaultGroupName]
	if !ok {
		return
	}
	for typ, banks := range freed {
		for hostID, mask := range banks {
			if def.Schemata[typ] == nil {
				def.Schemata[typ] = make(map[int]Bitmask)
			}
			def.Schemata[typ][hostID] |= mask
		}
	}
	h.reconcileDefault()
}

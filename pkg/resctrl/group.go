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
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// defaultGroupName keys the implicit resctrl default group (the root of
// resctrlRoot itself, which the kernel always provides and never lets us
// rmdir) inside HostState.Groups.
const defaultGroupName = ""

// GroupState is the lifecycle state of a control group directory, per the
// state machine: a group starts absent, becomes EMPTY the instant mkdir
// succeeds, becomes READY once a real schemata has been written, and
// becomes POPULATED once at least one task has been moved into it.
type GroupState int

const (
	GroupAbsent GroupState = iota
	GroupEmpty
	GroupReady
	GroupPopulated
)

func (s GroupState) String() string {
	switch s {
	case GroupAbsent:
		return "absent"
	case GroupEmpty:
		return "empty"
	case GroupReady:
		return "ready"
	case GroupPopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// Schemata is the resolved per-bank mask allocated to a group, one map per
// resource type holding one entry per cache bank host_id.
type Schemata map[ResourceType]map[int]Bitmask

// lines renders the schemata as the "TYPE:host_id=mask;host_id=mask" lines
// the kernel's own schemata file format expects, one line per resource
// type, banks in ascending host_id order.
func (s Schemata) lines() []string {
	types := maps.Keys(s)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var out []string
	for _, typ := range types {
		banks := s[typ]
		ids := maps.Keys(banks)
		sort.Ints(ids)

		var parts []string
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%d=%s", id, banks[id]))
		}
		out = append(out, fmt.Sprintf("%s:%s", typ, strings.Join(parts, ";")))
	}
	return out
}

// placeholderSchemata builds a minimal but kernel-valid schemata — every
// bank set to its full all-ways mask — suitable for the mkdir-then-write
// step before the real allocation has been computed. The kernel refuses a
// group whose schemata has ever been left absent, so every new group is
// given this before anything else happens to it.
func placeholderSchemata(caps map[ResourceType]*ResourceCapability) Schemata {
	s := make(Schemata)
	for typ, rc := range caps {
		if !rc.Enabled {
			continue
		}
		banks := make(map[int]Bitmask, len(rc.Banks))
		for id := range rc.Banks {
			banks[id] = SetAll(rc.CbmLen)
		}
		s[typ] = banks
	}
	return s
}

// Group is one resctrl control group as understood by this package: the
// request_id that names it, the resolved schemata, and its current
// lifecycle state.
type Group struct {
	ID       string
	State    GroupState
	Schemata Schemata
	Pids     []int
}

// HostState is the in-memory picture of the whole host: capability and
// topology discovery results for every resource type, plus every known
// control group.
type HostState struct {
	CDPEnabled   bool
	Capabilities map[ResourceType]*ResourceCapability
	Groups       map[string]*Group
}

// reconcileDefault re-derives every bank's cacheLeftBytes counter from the
// default group's current schemata, trimming each bank's mask down to its
// single highest contiguous run first (spec.md §4.5's default-refresh
// policy) and writing the trimmed mask back into the default group's
// schemata so what's in memory always matches what a subsequent
// persistDefault would write. Call this any time the default group's
// schemata is freshly read from disk (scan) or mutated (release), so
// cacheLeftBytes — and GetFreeCache, which reads it — never drifts from
// what's actually free.
func (h *HostState) reconcileDefault() {
	def, ok := h.Groups[defaultGroupName]
	if !ok {
		return
	}
	for typ, rc := range h.Capabilities {
		if !rc.Enabled {
			continue
		}
		for hostID, bank := range rc.Banks {
			if def.Schemata[typ] == nil {
				def.Schemata[typ] = make(map[int]Bitmask)
			}
			trimmed := def.Schemata[typ][hostID].HighestRun()
			def.Schemata[typ][hostID] = trimmed
			bank.setCacheLeftBytes(uint64(trimmed.Popcount()) * bank.CacheMinBytes)
		}
	}
}

// sortedGroupIDs returns every known group ID in deterministic order, for
// listing/iteration.
func (h *HostState) sortedGroupIDs() []string {
	ids := maps.Keys(h.Groups)
	sort.Strings(ids)
	return ids
}

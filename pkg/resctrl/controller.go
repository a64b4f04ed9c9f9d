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

// Package resctrl drives the Linux resctrl pseudo-filesystem to partition
// last-level cache ways among groups of VM-process tasks.
package resctrl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hostcache/cachepart/pkg/rlog"
)

// allResourceTypes is the full set of resource types discovery probes for
// on every Rescan, in a fixed order so CDP detection runs before anything
// that depends on it.
var allResourceTypes = []ResourceType{L3, L3CODE, L3DATA, L2}

// Controller is the top-level handle on one host's resctrl filesystem. A
// Controller is safe for concurrent use: every mutating method takes the
// resctrl root's flock(2) lock before touching the filesystem, and an
// in-process mutex serializes access to the cached HostState between
// lock-protected filesystem operations.
type Controller struct {
	cpuRoot string
	arch    Arch
	log     rlog.Logger

	mu    chan struct{} // 1-buffered: acts as a non-reentrant mutex
	state *HostState
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithCPURoot overrides the default CPU topology root
// ("sys/devices/system/cpu"), mainly for tests.
func WithCPURoot(path string) Option {
	return func(c *Controller) { c.cpuRoot = path }
}

// WithArch sets the host architecture tag used to interpret a -1
// physical_package_id. Defaults to ArchX86.
func WithArch(arch Arch) Option {
	return func(c *Controller) { c.arch = arch }
}

// WithLogger installs a custom rlog.Logger. Defaults to a no-op logger.
func WithLogger(l rlog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// NewController builds a Controller and performs an initial Rescan.
func NewController(opts ...Option) (*Controller, error) {
	c := &Controller{
		cpuRoot: "sys/devices/system/cpu",
		arch:    ArchX86,
		log:     nopLogger{},
		mu:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) lockState()   { c.mu <- struct{}{} }
func (c *Controller) unlockState() { <-c.mu }

// Rescan rebuilds the Controller's view of the host from the resctrl and
// CPU topology filesystems: capability and topology discovery for every
// resource type, CDP status, the default group's current schemata, and
// every existing control group's schemata and tasks. Nothing on disk is
// modified. This corresponds to virResCtrlScan/rdt.DiscoverClasses's
// one-shot discovery pass, but re-runnable at any time instead of only at
// startup, since cache partitions here are expected to change over the
// life of the daemon.
func (c *Controller) Rescan() error {
	var state *HostState
	err := withRLock(func() error {
		s, err := c.scan()
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return err
	}

	c.lockState()
	c.state = state
	c.unlockState()
	return nil
}

func (c *Controller) scan() (*HostState, error) {
	state := &HostState{
		Capabilities: make(map[ResourceType]*ResourceCapability),
		Groups:       make(map[string]*Group),
	}

	cdp, err := cdpEnabled()
	if err != nil {
		return nil, err
	}
	state.CDPEnabled = cdp

	for _, typ := range allResourceTypes {
		if typ == L3 && cdp {
			continue
		}
		if (typ == L3CODE || typ == L3DATA) && !cdp {
			continue
		}
		rc, err := discoverCapability(c.cpuRoot, c.arch, typ)
		if err != nil {
			return nil, err
		}
		state.Capabilities[typ] = rc
	}

	defSchemata, err := readGroupSchemata(defaultGroupName)
	if err != nil {
		return nil, err
	}
	defTasks, err := readTasks(defaultGroupName)
	if err != nil {
		return nil, err
	}
	state.Groups[defaultGroupName] = &Group{
		ID:       defaultGroupName,
		State:    GroupPopulated,
		Schemata: defSchemata,
		Pids:     defTasks,
	}
	// discoverCapability seeds every bank's cacheLeftBytes at full
	// capacity; reconcile it against the default group's schemata just
	// read from disk so a bank that's already partly (or fully)
	// allocated to existing groups reports its true remaining capacity
	// instead of the bank's whole size.
	state.reconcileDefault()

	names, err := scanGroups()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		sc, err := readGroupSchemata(name)
		if err != nil {
			return nil, err
		}
		tasks, err := readTasks(name)
		if err != nil {
			return nil, err
		}
		st := GroupReady
		if len(tasks) > 0 {
			st = GroupPopulated
		}
		state.Groups[name] = &Group{ID: name, State: st, Schemata: sc, Pids: tasks}
	}

	return state, nil
}

func readGroupSchemata(name string) (Schemata, error) {
	lines, err := readSchemata(name)
	if err != nil {
		return nil, err
	}
	return parseSchemataLines(lines)
}

// parseSchemataLines parses the kernel's "TYPE:host_id=mask;host_id=mask"
// schemata format back into a Schemata value.
func parseSchemataLines(lines []string) (Schemata, error) {
	s := make(Schemata)
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, newErr(ErrIO, "parseSchemataLines", line, fmt.Errorf("malformed schemata line"))
		}
		typ := ResourceType(parts[0])
		banks := make(map[int]Bitmask)
		for _, entry := range strings.Split(parts[1], ";") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			kv := strings.SplitN(entry, "=", 2)
			if len(kv) != 2 {
				return nil, newErr(ErrIO, "parseSchemataLines", line, fmt.Errorf("malformed schemata entry %q", entry))
			}
			hostID, err := strconv.Atoi(kv[0])
			if err != nil {
				return nil, newErr(ErrIO, "parseSchemataLines", line, err)
			}
			mask, err := FromHex(kv[1])
			if err != nil {
				return nil, newErr(ErrIO, "parseSchemataLines", line, err)
			}
			banks[hostID] = mask
		}
		s[typ] = banks
	}
	return s, nil
}

// SetCacheTunes allocates cache for a brand new group of tasks: it picks
// contiguous runs on every requested bank, creates the resctrl control
// group named after the caller-supplied request id, writes its schemata,
// and moves pids into it. requestID is the opaque 16-byte identifier the
// embedding virtualization management system uses to key this workload;
// rendered as a canonical UUID string, it becomes the resctrl group's
// directory name, so a caller that calls RemoveCacheTunes and then
// SetCacheTunes again with the same requestID re-creates the same group
// cleanly. On any failure after the group directory has been created,
// SetCacheTunes makes a best-effort attempt to remove it and restore the
// default group's bookkeeping before returning the original error.
func (c *Controller) SetCacheTunes(requestID uuid.UUID, pids []int, reqs []AllocRequest) (*Group, error) {
	var group *Group
	err := withLock(func() error {
		state, err := c.scan()
		if err != nil {
			return err
		}

		sch, err := state.allocate(reqs)
		if err != nil {
			return err
		}

		id := requestID.String()
		if err := mkgroup(id); err != nil {
			return err
		}

		// The kernel requires a valid schemata before it will accept
		// tasks; write a full-width placeholder immediately on
		// mkdir, then the real allocation.
		if err := writeSchemata(id, placeholderSchemata(state.Capabilities).lines()); err != nil {
			_ = rmgroup(id)
			return err
		}
		if err := writeSchemata(id, sch.lines()); err != nil {
			_ = rmgroup(id)
			return err
		}

		for _, pid := range pids {
			if err := writeTask(id, pid); err != nil {
				_ = rmgroup(id)
				return err
			}
		}

		if err := c.persistDefault(state); err != nil {
			_ = rmgroup(id)
			return err
		}

		group = &Group{ID: id, State: GroupPopulated, Schemata: sch, Pids: pids}
		if len(pids) == 0 {
			group.State = GroupReady
		}
		state.Groups[id] = group
		c.lockState()
		c.state = state
		c.unlockState()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// persistDefault writes the (now-reduced) default group schemata back to
// disk after an allocation or release changes it.
func (c *Controller) persistDefault(state *HostState) error {
	def := state.Groups[defaultGroupName]
	return writeSchemata(defaultGroupName, def.Schemata.lines())
}

// RemoveCacheTunes tears down a group: its tasks move back to the default
// group, its schemata's bits are released back to the default group's
// free pool, and the resctrl directory is removed. Removing a requestID
// with no corresponding group is idempotent and returns nil, since a
// caller that retried a previously successful remove (or never
// successfully allocated in the first place) should not see an error.
func (c *Controller) RemoveCacheTunes(requestID uuid.UUID) error {
	id := requestID.String()
	return withLock(func() error {
		state, err := c.scan()
		if err != nil {
			return err
		}
		group, ok := state.Groups[id]
		if !ok {
			return nil
		}

		for _, pid := range group.Pids {
			if err := writeTask(defaultGroupName, pid); err != nil {
				return err
			}
		}

		state.release(group.Schemata)
		if err := c.persistDefault(state); err != nil {
			return err
		}

		if err := rmgroup(id); err != nil {
			return err
		}

		delete(state.Groups, id)
		c.lockState()
		c.state = state
		c.unlockState()
		return nil
	})
}

// UpdateTasks moves pids into an existing group without touching its
// schemata, mirroring virResCtrlUpdate's pid-only update path: a caller
// that only needs to add or move tasks shouldn't have to recompute (and
// risk disturbing) an already-settled allocation.
func (c *Controller) UpdateTasks(requestID uuid.UUID, pids []int) error {
	id := requestID.String()
	return withLock(func() error {
		state, err := c.scan()
		if err != nil {
			return err
		}
		group, ok := state.Groups[id]
		if !ok {
			return newErr(ErrInvalidRequest, "UpdateTasks", id, fmt.Errorf("no such group"))
		}

		for _, pid := range pids {
			if err := writeTask(id, pid); err != nil {
				return err
			}
		}

		group.Pids = append(group.Pids, pids...)
		group.State = GroupPopulated
		c.lockState()
		c.state = state
		c.unlockState()
		return nil
	})
}

// GetFreeCache reports the bytes of bank hostID of resource type typ that
// are still unallocated, per the default group's current schemata.
func (c *Controller) GetFreeCache(typ ResourceType, hostID int) (uint64, error) {
	var free uint64
	err := withRLock(func() error {
		state, err := c.scan()
		if err != nil {
			return err
		}
		rc, ok := state.Capabilities[typ]
		if !ok || !rc.Enabled {
			return newErr(ErrNotSupported, "GetFreeCache", string(typ), fmt.Errorf("resource not enabled"))
		}
		bank, ok := rc.Banks[hostID]
		if !ok {
			return newErr(ErrInvalidRequest, "GetFreeCache", string(typ), fmt.Errorf("unknown bank %d", hostID))
		}
		free = bank.CacheLeftBytes()
		return nil
	})
	return free, err
}

// HostState returns a snapshot of the most recently scanned host state.
// Callers must not mutate the returned value.
func (c *Controller) HostState() *HostState {
	c.lockState()
	defer c.unlockState()
	return c.state
}

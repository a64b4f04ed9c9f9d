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

	"github.com/google/uuid"
)

func TestControllerRescan(t *testing.T) {
	newMockHostFs(t)

	ctrl, err := NewController()
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	state := ctrl.HostState()
	rc, ok := state.Capabilities[L3]
	if !ok || !rc.Enabled {
		t.Fatal("L3 capability not discovered")
	}
	if rc.NumClosIDs != 16 || rc.CbmLen != 16 || rc.MinCbmBits != 2 {
		t.Errorf("unexpected capability: %+v", rc)
	}
	if _, ok := rc.Banks[0]; !ok {
		t.Fatal("bank 0 not discovered")
	}
	if state.CDPEnabled {
		t.Error("CDPEnabled = true, want false")
	}
}

func TestControllerSetAndRemoveCacheTunes(t *testing.T) {
	m := newMockHostFs(t)

	ctrl, err := NewController()
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	id := uuid.New()
	group, err := ctrl.SetCacheTunes(id, nil, []AllocRequest{{Type: L3, HostID: 0, Bytes: 4 * 1024 * 1024}})
	if err != nil {
		t.Fatalf("SetCacheTunes failed: %v", err)
	}
	if group.ID != id.String() {
		t.Errorf("group.ID = %q, want %q", group.ID, id.String())
	}
	if group.State != GroupReady {
		t.Errorf("group.State = %v, want GroupReady (no pids given)", group.State)
	}

	free, err := ctrl.GetFreeCache(L3, 0)
	if err != nil {
		t.Fatalf("GetFreeCache failed: %v", err)
	}
	wantFree := uint64(16384*1024) - 4*1024*1024
	if free != wantFree {
		t.Errorf("GetFreeCache() = %d, want %d", free, wantFree)
	}

	schemataContent := m.readFile(m.relGroupSchemata(group.ID))
	if schemataContent == "" {
		t.Error("group schemata file is empty")
	}

	if err := ctrl.RemoveCacheTunes(id); err != nil {
		t.Fatalf("RemoveCacheTunes failed: %v", err)
	}

	free, err = ctrl.GetFreeCache(L3, 0)
	if err != nil {
		t.Fatalf("GetFreeCache after remove failed: %v", err)
	}
	if free != 16384*1024 {
		t.Errorf("GetFreeCache() after remove = %d, want full bank restored", free)
	}

	// Removing an already-removed (or never-allocated) request id is
	// idempotent, per spec.md's boundary case.
	if err := ctrl.RemoveCacheTunes(id); err != nil {
		t.Fatalf("RemoveCacheTunes of an absent group should be a no-op, got: %v", err)
	}
	if err := ctrl.RemoveCacheTunes(uuid.New()); err != nil {
		t.Fatalf("RemoveCacheTunes of a never-allocated id should be a no-op, got: %v", err)
	}

	// Setting again with the same request id re-creates the group cleanly.
	group, err = ctrl.SetCacheTunes(id, nil, []AllocRequest{{Type: L3, HostID: 0, Bytes: 4 * 1024 * 1024}})
	if err != nil {
		t.Fatalf("SetCacheTunes re-create with the same id failed: %v", err)
	}
	if group.ID != id.String() {
		t.Errorf("re-created group.ID = %q, want %q", group.ID, id.String())
	}
}

func TestControllerGetFreeCacheReconcilesAcrossGroups(t *testing.T) {
	newMockHostFs(t)

	ctrl, err := NewController()
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	// Two sequential allocations against the same bank: once the second
	// group exists, the default group's on-disk schemata reflects both,
	// and a fresh scan (which GetFreeCache triggers) must derive
	// cacheLeftBytes from that combined schemata rather than reporting
	// the bank's full, untouched capacity.
	if _, err := ctrl.SetCacheTunes(uuid.New(), nil, []AllocRequest{{Type: L3, HostID: 0, Bytes: 4 * 1024 * 1024}}); err != nil {
		t.Fatalf("first SetCacheTunes failed: %v", err)
	}
	if _, err := ctrl.SetCacheTunes(uuid.New(), nil, []AllocRequest{{Type: L3, HostID: 0, Bytes: 2 * 1024 * 1024}}); err != nil {
		t.Fatalf("second SetCacheTunes failed: %v", err)
	}

	free, err := ctrl.GetFreeCache(L3, 0)
	if err != nil {
		t.Fatalf("GetFreeCache failed: %v", err)
	}
	wantFree := uint64(16384*1024) - 4*1024*1024 - 2*1024*1024
	if free != wantFree {
		t.Errorf("GetFreeCache() = %d, want %d (full bank minus both groups)", free, wantFree)
	}
}

func TestControllerUpdateTasksLeavesSchemataAlone(t *testing.T) {
	newMockHostFs(t)

	ctrl, err := NewController()
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	id := uuid.New()
	group, err := ctrl.SetCacheTunes(id, []int{111}, []AllocRequest{{Type: L3, HostID: 0, Bytes: 2 * 1024 * 1024}})
	if err != nil {
		t.Fatalf("SetCacheTunes failed: %v", err)
	}
	before := group.Schemata[L3][0]

	if err := ctrl.UpdateTasks(id, []int{222}); err != nil {
		t.Fatalf("UpdateTasks failed: %v", err)
	}

	if err := ctrl.Rescan(); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	after := ctrl.HostState().Groups[group.ID]
	if after.Schemata[L3][0] != before {
		t.Errorf("UpdateTasks changed schemata: before %#x after %#x", uint64(before), uint64(after.Schemata[L3][0]))
	}
	if len(after.Pids) != 2 {
		t.Errorf("group has %d pids, want 2", len(after.Pids))
	}
}

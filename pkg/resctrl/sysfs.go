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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hostcache/cachepart/pkg/rpath"
)

// maxReadBytes caps how much of a resctrl pseudo-file we'll read into
// memory; these files are always tiny, and a cap turns a surprising mount
// or symlink into a bounded error instead of an unbounded read.
const maxReadBytes = 1 << 20

// group.tasks accepts one pid per write, appended; resctrl's own write(2)
// semantics don't support writing a pid list in one call, so writers must
// loop one write per pid.

// mkgroup creates the resctrl control group directory name beneath the
// resctrl root. The kernel populates it with default tasks/schemata/mode
// files on mkdir; our caller always rewrites schemata immediately after.
func mkgroup(name string) error {
	dir := filepath.Join(resctrlRoot, name)
	if err := os.Mkdir(rpath.Path(dir), 0755); err != nil {
		return newErr(ErrIO, "mkgroup", dir, err)
	}
	// The kernel populates a fresh control group directory with its own
	// tasks/schemata/mode files the instant mkdir succeeds. We're
	// driving a plain directory tree here, so create the tasks file
	// ourselves; writeSchemata below creates schemata on first write.
	tasksPath := filepath.Join(dir, "tasks")
	if err := os.WriteFile(rpath.Path(tasksPath), nil, 0644); err != nil {
		return newErr(ErrIO, "mkgroup", tasksPath, err)
	}
	return nil
}

// rmgroup removes a resctrl control group. The kernel refuses to remove a
// group that still has tasks pinned to it with EBUSY; that bubbles up to
// the caller as ErrKernelRejected so it can choose to retry after moving
// tasks back to the default group.
func rmgroup(name string) error {
	dir := filepath.Join(resctrlRoot, name)
	// The kernel's tasks/schemata/mode files inside a control group are
	// kernfs pseudo-files, not ordinary directory entries, so rmdir(2)
	// removes a group directory that "contains" them without
	// complaining it's non-empty. RemoveAll gives the same result here
	// and also tolerates the plain regular files this package's own
	// tests populate a mock group directory with.
	if err := os.RemoveAll(rpath.Path(dir)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if isBusy(err) {
			return newErr(ErrKernelRejected, "rmgroup", dir, err)
		}
		return newErr(ErrIO, "rmgroup", dir, err)
	}
	return nil
}

// scanGroups lists the existing control group directories beneath the
// resctrl root, excluding "info" and the implicit default group.
func scanGroups() ([]string, error) {
	dir := resctrlRoot
	entries, err := os.ReadDir(rpath.Path(dir))
	if err != nil {
		return nil, newErr(ErrIO, "scanGroups", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "info" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// writeSchemata replaces group/schemata with the given lines, one
// "TYPE:host_id=mask;..." line per resource type.
func writeSchemata(group string, lines []string) error {
	path := filepath.Join(resctrlRoot, group, "schemata")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(rpath.Path(path), []byte(content), 0644); err != nil {
		return classifyWriteErr("writeSchemata", path, err)
	}
	return nil
}

// readSchemata returns the raw lines of group/schemata.
func readSchemata(group string) ([]string, error) {
	path := filepath.Join(resctrlRoot, group, "schemata")
	data, err := readCapped(path)
	if err != nil {
		return nil, newErr(ErrIO, "readSchemata", path, err)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// writeTask appends one pid to group/tasks, moving it out of whatever
// group it previously belonged to.
func writeTask(group string, pid int) error {
	path := filepath.Join(resctrlRoot, group, "tasks")
	f, err := os.OpenFile(rpath.Path(path), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return newErr(ErrIO, "writeTask", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		return classifyWriteErr("writeTask", path, err)
	}
	return nil
}

// readTasks returns the pids currently assigned to group.
func readTasks(group string) ([]int, error) {
	path := filepath.Join(resctrlRoot, group, "tasks")
	data, err := readCapped(path)
	if err != nil {
		return nil, newErr(ErrIO, "readTasks", path, err)
	}
	var pids []int
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if l == "" {
			continue
		}
		pid, err := strconv.Atoi(l)
		if err != nil {
			return nil, newErr(ErrIO, "readTasks", path, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func readCapped(path string) ([]byte, error) {
	f, err := os.Open(rpath.Path(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, maxReadBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

// classifyWriteErr turns the kernel's EINVAL for a malformed or
// hardware-rejected schemata write into ErrKernelRejected instead of a
// generic I/O error, so callers can tell "the hardware refused this
// request" apart from "the filesystem is unavailable".
func classifyWriteErr(op, path string, err error) error {
	if isInvalid(err) {
		return newErr(ErrKernelRejected, op, path, err)
	}
	return newErr(ErrIO, op, path, err)
}

func isInvalid(err error) bool {
	return strings.Contains(err.Error(), "invalid argument")
}

func isBusy(err error) bool {
	return strings.Contains(err.Error(), "device or resource busy")
}

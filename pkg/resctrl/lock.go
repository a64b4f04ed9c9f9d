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

	"golang.org/x/sys/unix"

	"github.com/hostcache/cachepart/pkg/rpath"
)

// rootLock is an advisory whole-file lock on the resctrl root directory
// itself, used to serialize the scan-allocate-write sequence across every
// caller in this process (and, since flock(2) locks are also visible to
// other processes sharing the same open file description's inode, across
// cooperating processes too).
type rootLock struct {
	f *os.File
}

// openLock opens (without creating) the resctrl root for locking purposes
// only; it is never read from or written to directly.
func openLock() (*rootLock, error) {
	f, err := os.Open(rpath.Path(resctrlRoot))
	if err != nil {
		return nil, newErr(ErrIO, "openLock", resctrlRoot, err)
	}
	return &rootLock{f: f}, nil
}

func (l *rootLock) Close() error {
	return l.f.Close()
}

// Lock acquires the lock exclusively, blocking until available. Every
// mutating operation (create, remove, update tasks) takes the exclusive
// lock before reading any state, so the scan it performs is never stale
// by the time it acts on it.
func (l *rootLock) Lock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX); err != nil {
		return newErr(ErrIO, "flock", resctrlRoot, err)
	}
	return nil
}

// RLock acquires the lock in shared mode, for read-only operations like
// GetFreeCache that only need a consistent snapshot.
func (l *rootLock) RLock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_SH); err != nil {
		return newErr(ErrIO, "flock", resctrlRoot, err)
	}
	return nil
}

func (l *rootLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return newErr(ErrIO, "flock", resctrlRoot, err)
	}
	return nil
}

// withLock opens, exclusively locks, runs fn, then unlocks and closes the
// root lock, regardless of the order errors occur in.
func withLock(fn func() error) error {
	l, err := openLock()
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// withRLock is withLock's shared-mode counterpart.
func withRLock(fn func() error) error {
	l, err := openLock()
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.RLock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

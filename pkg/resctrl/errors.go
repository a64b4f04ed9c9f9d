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
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrorKind classifies the failure modes a caller of this package needs to
// distinguish, per the error taxonomy of the design.
type ErrorKind int

const (
	// ErrNotSupported means resctrl is not mounted, or the requested
	// resource type is disabled on this host.
	ErrNotSupported ErrorKind = iota
	// ErrInsufficientCache means no contiguous run of the requested
	// width is available on the requested bank.
	ErrInsufficientCache
	// ErrInvalidRequest means the request itself is malformed: unknown
	// resource type, unknown bank, size below the hardware minimum, or
	// an empty pid list where one is required.
	ErrInvalidRequest
	// ErrKernelRejected means a mkdir/write to resctrl was refused by
	// the kernel for a reason our own pre-checks should have caught.
	ErrKernelRejected
	// ErrIO means a transient filesystem error occurred.
	ErrIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotSupported:
		return "NotSupported"
	case ErrInsufficientCache:
		return "InsufficientCache"
	case ErrInvalidRequest:
		return "InvalidRequest"
	case ErrKernelRejected:
		return "KernelRejected"
	case ErrIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every exported operation in this
// package. Use errors.As to recover the Kind and the path/operation that
// failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &resctrl.Error{Kind: resctrl.ErrInsufficientCache})
// style checks by comparing Kind only; a target that is not an *Error
// never matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf reports the ErrorKind of err, or ErrIO if err does not originate
// from this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return ErrIO
}

func asError(err error, target **Error) bool {
	return errors.As(err, target)
}

// errCollector aggregates independent per-bank failures that occur while
// processing the lines of a single allocation request, so that one bad
// bank doesn't hide problems with the others.
type errCollector struct {
	merr *multierror.Error
}

func (c *errCollector) add(err error) {
	if err == nil {
		return
	}
	c.merr = multierror.Append(c.merr, err)
}

func (c *errCollector) errorOrNil() error {
	return c.merr.ErrorOrNil()
}

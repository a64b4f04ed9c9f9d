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
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/hostcache/cachepart/pkg/testutils"
)

func TestErrorKindOf(t *testing.T) {
	err := newErr(ErrInsufficientCache, "allocate", "L3:0", fmt.Errorf("no room"))
	wrapped := fmt.Errorf("while doing a thing: %w", err)
	if got := KindOf(wrapped); got != ErrInsufficientCache {
		t.Errorf("KindOf() = %v, want ErrInsufficientCache", got)
	}
	if got := KindOf(fmt.Errorf("unrelated")); got != ErrIO {
		t.Errorf("KindOf(unrelated) = %v, want ErrIO", got)
	}
}

func TestErrorIs(t *testing.T) {
	err := newErr(ErrInsufficientCache, "allocate", "L3:0", nil)
	if !errors.Is(err, &Error{Kind: ErrInsufficientCache}) {
		t.Error("errors.Is() = false, want true for matching Kind")
	}
	if errors.Is(err, &Error{Kind: ErrIO}) {
		t.Error("errors.Is() = true, want false for differing Kind")
	}
}

func TestErrCollector(t *testing.T) {
	var c errCollector
	testutils.VerifyNoError(t, c.errorOrNil())

	c.add(nil)
	testutils.VerifyNoError(t, c.errorOrNil())

	c.add(fmt.Errorf("bank 0 failed"))
	c.add(fmt.Errorf("bank 1 failed"))
	err := c.errorOrNil()
	testutils.VerifyError(t, err, 2, []string{"bank 0 failed", "bank 1 failed"})

	if _, ok := err.(*multierror.Error); !ok {
		t.Errorf("errorOrNil() returned %T, want *multierror.Error", err)
	}
}

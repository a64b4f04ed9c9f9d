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

const resctrlRoot = "sys/fs/resctrl"

// ResourceCapability is the parsed content of one info/<TYPE> directory:
// what the kernel advertises about a single resctrl resource on this host.
type ResourceCapability struct {
	Type       ResourceType
	Enabled    bool
	NumClosIDs int
	CbmLen     uint64
	MinCbmBits int
	Banks      map[int]*CacheBank
}

// discoverCapability reads info/<typ> beneath the resctrl root and, if
// present, scans the matching CPU topology to populate per-bank sizes.
// A missing info/<typ> directory is not an error: it means the resource is
// disabled on this host (or the kernel doesn't support it), which the
// caller surfaces as ErrNotSupported rather than failing discovery.
func discoverCapability(cpuRoot string, arch Arch, typ ResourceType) (*ResourceCapability, error) {
	infoDir := filepath.Join(resctrlRoot, "info", string(typ))

	numClosIDs, err := readIntFile(filepath.Join(infoDir, "num_closids"))
	if os.IsNotExist(err) {
		return &ResourceCapability{Type: typ, Enabled: false}, nil
	}
	if err != nil {
		return nil, newErr(ErrIO, "discoverCapability", infoDir, err)
	}

	minCbmBits, err := readIntFile(filepath.Join(infoDir, "min_cbm_bits"))
	if err != nil {
		return nil, newErr(ErrIO, "discoverCapability", infoDir, err)
	}

	cbmMaskHex, err := readStringFile(filepath.Join(infoDir, "cbm_mask"))
	if err != nil {
		return nil, newErr(ErrIO, "discoverCapability", infoDir, err)
	}
	if _, err := FromHex(cbmMaskHex); err != nil {
		return nil, newErr(ErrInvalidRequest, "discoverCapability", infoDir, err)
	}
	// Per the kernel interface: each hex digit of cbm_mask names 4 bit
	// positions of the CBM, regardless of which of those bits the
	// all-ones mask actually has set.
	cbmLen := uint64(len(cbmMaskHex)) * 4

	banks, err := scanTopology(cpuRoot, arch, typ, cbmLen)
	if err != nil {
		return nil, err
	}
	for _, bank := range banks {
		bank.setCacheLeftBytes(bank.CacheSizeBytes)
	}

	return &ResourceCapability{
		Type:       typ,
		Enabled:    true,
		NumClosIDs: numClosIDs,
		CbmLen:     cbmLen,
		MinCbmBits: minCbmBits,
		Banks:      banks,
	}, nil
}

// cdpEnabled reports whether L3 CDP is active: the kernel exposes
// info/L3CODE and info/L3DATA instead of a plain info/L3 when CDP is
// enabled at boot (resctrl mount option "cdp").
func cdpEnabled() (bool, error) {
	_, err := os.Stat(rpath.Path(filepath.Join(resctrlRoot, "info", string(L3CODE))))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, newErr(ErrIO, "cdpEnabled", resctrlRoot, err)
}

func readIntFile(path string) (int, error) {
	s, err := readStringFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func readStringFile(path string) (string, error) {
	data, err := os.ReadFile(rpath.Path(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bankSizeDesc = prometheus.NewDesc(
		"cachepart_bank_size_bytes",
		"Total cache capacity of one cache bank.",
		[]string{"type", "host_id"}, nil)
	bankFreeDesc = prometheus.NewDesc(
		"cachepart_bank_free_bytes",
		"Currently unallocated cache capacity of one cache bank.",
		[]string{"type", "host_id"}, nil)
	groupBytesDesc = prometheus.NewDesc(
		"cachepart_group_bytes",
		"Cache bytes held by one control group on one bank.",
		[]string{"type", "host_id", "group"}, nil)
)

// Collector exposes a Controller's last scanned HostState as Prometheus
// metrics, mirroring the rdt.Collector pattern of collecting from the
// package's already-cached state rather than re-scanning on every scrape.
type Collector struct {
	c *Controller
}

// NewCollector returns a prometheus.Collector backed by c.
func NewCollector(c *Controller) *Collector {
	return &Collector{c: c}
}

func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bankSizeDesc
	ch <- bankFreeDesc
	ch <- groupBytesDesc
}

func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	state := col.c.HostState()
	if state == nil {
		return
	}

	for typ, rc := range state.Capabilities {
		if !rc.Enabled {
			continue
		}
		for hostID, bank := range rc.Banks {
			hostIDStr := strconv.Itoa(hostID)
			ch <- prometheus.MustNewConstMetric(bankSizeDesc, prometheus.GaugeValue,
				float64(bank.CacheSizeBytes), string(typ), hostIDStr)
			ch <- prometheus.MustNewConstMetric(bankFreeDesc, prometheus.GaugeValue,
				float64(bank.CacheLeftBytes()), string(typ), hostIDStr)
		}
	}

	for groupID, group := range state.Groups {
		if groupID == defaultGroupName {
			continue
		}
		for typ, banks := range group.Schemata {
			rc, ok := state.Capabilities[typ]
			if !ok {
				continue
			}
			for hostID, mask := range banks {
				bank, ok := rc.Banks[hostID]
				if !ok {
					continue
				}
				bytes := float64(mask.Popcount()) * float64(bank.CacheMinBytes)
				ch <- prometheus.MustNewConstMetric(groupBytesDesc, prometheus.GaugeValue,
					bytes, string(typ), strconv.Itoa(hostID), groupID)
			}
		}
	}
}


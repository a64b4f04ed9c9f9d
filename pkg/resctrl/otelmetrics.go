/*
Copyright 2023 Intel Corporation

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
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ExporterKind selects which OTel metric exporter NewMeterProvider wires
// up, so a deployment can switch transports with one config value instead
// of a code change.
type ExporterKind string

const (
	ExporterStdout   ExporterKind = "stdout"
	ExporterOTLPGRPC ExporterKind = "otlp-grpc"
	ExporterOTLPHTTP ExporterKind = "otlp-http"
)

// NewMeterProvider builds an OTel MeterProvider with a periodic reader
// feeding the requested exporter.
func NewMeterProvider(ctx context.Context, kind ExporterKind, endpoint string) (*sdkmetric.MeterProvider, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	switch kind {
	case ExporterStdout:
		exp, err = stdoutmetric.New()
	case ExporterOTLPGRPC:
		exp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	case ExporterOTLPHTTP:
		exp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown exporter kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s exporter: %w", kind, err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
	)
	return mp, nil
}

// RegisterObservableGauges registers the async gauge callbacks that mirror
// Collector's Prometheus metrics onto an OTel meter, for deployments that
// export via OTLP instead of (or alongside) a Prometheus scrape endpoint.
func RegisterObservableGauges(mp metric.MeterProvider, c *Controller) error {
	meter := mp.Meter("github.com/hostcache/cachepart/pkg/resctrl")

	bankSize, err := meter.Float64ObservableGauge("cachepart.bank.size_bytes")
	if err != nil {
		return err
	}
	bankFree, err := meter.Float64ObservableGauge("cachepart.bank.free_bytes")
	if err != nil {
		return err
	}
	groupBytes, err := meter.Float64ObservableGauge("cachepart.group.bytes")
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		state := c.HostState()
		if state == nil {
			return nil
		}
		for typ, rc := range state.Capabilities {
			if !rc.Enabled {
				continue
			}
			for hostID, bank := range rc.Banks {
				attrs := metric.WithAttributes(
					attribute.String("type", string(typ)),
					attribute.String("host_id", strconv.Itoa(hostID)),
				)
				o.ObserveFloat64(bankSize, float64(bank.CacheSizeBytes), attrs)
				o.ObserveFloat64(bankFree, float64(bank.CacheLeftBytes()), attrs)
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
					attrs := metric.WithAttributes(
						attribute.String("type", string(typ)),
						attribute.String("host_id", strconv.Itoa(hostID)),
						attribute.String("group", groupID),
					)
					o.ObserveFloat64(groupBytes, float64(mask.Popcount())*float64(bank.CacheMinBytes), attrs)
				}
			}
		}
		return nil
	}, bankSize, bankFree, groupBytes)

	return err
}

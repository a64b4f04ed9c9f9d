/*
Copyright 2024 Intel Corporation

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

package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/hostcache/cachepart/pkg/resctrl"
)

// daemonConfig is the ambient, operator-facing configuration for running
// cachepartctl as a long-lived monitor: it has nothing to do with the
// per-request allocation path, which only ever takes explicit pids and
// byte sizes on the command line or over the controller API.
type daemonConfig struct {
	// MonitorPort is parsed from the config file but not applied:
	// subCmdMonitor always takes its port from its -port flag.
	MonitorPort int `json:"monitorPort,omitempty"`
	// LogLevel is the default -log-level, overridden by the flag if
	// also given on the command line.
	LogLevel string `json:"logLevel,omitempty"`
	// Exporter selects the OTel metrics exporter for a future daemon
	// mode that pushes rather than being scraped.
	Exporter resctrl.ExporterKind `json:"exporter,omitempty"`
	// ExporterEndpoint is the OTLP collector endpoint for Exporter
	// values other than "stdout".
	ExporterEndpoint string `json:"exporterEndpoint,omitempty"`
}

func loadDaemonConfig(path string) (*daemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	cfg := &daemonConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}

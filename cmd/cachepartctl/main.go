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

// This application drives the host cache-partitioning controller from the
// command line.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostcache/cachepart/pkg/resctrl"
	"github.com/hostcache/cachepart/pkg/rlog"
)

var (
	logLevel   = rlog.NewLevelFlag(slog.LevelInfo)
	configFile string
)

type subCmd struct {
	description string
	f           func([]string) error
}

var subCmds = map[string]subCmd{
	"help": {
		description: "Display this help",
		f:           subCmdHelp,
	},
	"info": {
		description: "Display cache bank capacity and free space",
		f:           subCmdInfo,
	},
	"alloc": {
		description: "Allocate cache for a new group of tasks",
		f:           subCmdAlloc,
	},
	"update": {
		description: "Move additional tasks into an existing group",
		f:           subCmdUpdate,
	},
	"free": {
		description: "Remove a group and release its cache",
		f:           subCmdFree,
	},
	"monitor": {
		description: "Serve Prometheus metrics for cache bank occupancy",
		f:           subCmdMonitor,
	},
}

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Usage = usage
	flag.Var(logLevel, "log-level", "log level: debug, info, warn, error")
	flag.StringVar(&configFile, "config", "", "path to a daemon config file")

	help := flag.Bool("help", false, "Display this help")
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	if configFile != "" {
		cfg, err := loadDaemonConfig(configFile)
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		logLevelGiven := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == "log-level" {
				logLevelGiven = true
			}
		})
		if cfg.LogLevel != "" && !logLevelGiven {
			if err := logLevel.Set(cfg.LogLevel); err != nil {
				fmt.Printf("invalid logLevel in %s: %v\n", configFile, err)
				os.Exit(1)
			}
		}
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, ok := subCmds[args[0]]
	if !ok {
		fmt.Printf("unknown sub-command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if err := cmd.f(args[1:]); err != nil {
		fmt.Printf("sub-command %q failed: %v\n", args[0], err)
		os.Exit(1)
	}
}

// nolint:errcheck
func usage() {
	f := flag.CommandLine.Output()
	fmt.Fprint(f, `Usage: cachepartctl <command> [options]

Available commands:`)

	names := make([]string, 0, len(subCmds))
	for name := range subCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(f, "\n  %-8s %s", name, subCmds[name].description)
	}

	fmt.Fprint(f, `

Use "cachepartctl <command> --help" for more information about a command.
`)
	fmt.Fprint(f, "\nGlobal options:\n")
	flag.PrintDefaults()
}

func newController() (*resctrl.Controller, error) {
	logger := rlog.NewLoggerWrapper(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel.Level()})))
	return resctrl.NewController(resctrl.WithLogger(logger))
}

func subCmdHelp(args []string) error {
	flags := flag.NewFlagSet("help", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	flag.Usage()
	return nil
}

func subCmdInfo(args []string) error {
	flags := flag.NewFlagSet("info", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctrl, err := newController()
	if err != nil {
		return fmt.Errorf("cache partitioning is not available: %w", err)
	}

	state := ctrl.HostState()
	fmt.Printf("CDP enabled: %v\n", state.CDPEnabled)
	for typ, rc := range state.Capabilities {
		if !rc.Enabled {
			continue
		}
		fmt.Printf("%s: num_closids=%d cbm_len=%d min_cbm_bits=%d\n", typ, rc.NumClosIDs, rc.CbmLen, rc.MinCbmBits)
		ids := make([]int, 0, len(rc.Banks))
		for id := range rc.Banks {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			bank := rc.Banks[id]
			fmt.Printf("  bank %d: size=%s free=%s cpus=%v\n",
				id, resctrl.FormatSize(bank.CacheSizeBytes), resctrl.FormatSize(bank.CacheLeftBytes()), bank.CPUMask)
		}
	}
	return nil
}

// parseAllocSpec parses one "TYPE:host_id=size" flag repetition, e.g.
// "L3:0=4Mi".
func parseAllocSpec(spec string) (resctrl.AllocRequest, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return resctrl.AllocRequest{}, fmt.Errorf("malformed alloc spec %q, want TYPE:host_id=size", spec)
	}
	kv := strings.SplitN(parts[1], "=", 2)
	if len(kv) != 2 {
		return resctrl.AllocRequest{}, fmt.Errorf("malformed alloc spec %q, want TYPE:host_id=size", spec)
	}
	hostID, err := strconv.Atoi(kv[0])
	if err != nil {
		return resctrl.AllocRequest{}, fmt.Errorf("invalid host id in %q: %w", spec, err)
	}
	bytes, err := resctrl.ParseSize(kv[1])
	if err != nil {
		return resctrl.AllocRequest{}, fmt.Errorf("invalid size in %q: %w", spec, err)
	}
	return resctrl.AllocRequest{Type: resctrl.ResourceType(parts[0]), HostID: hostID, Bytes: bytes}, nil
}

type allocSpecs []resctrl.AllocRequest

func (a *allocSpecs) String() string { return "" }
func (a *allocSpecs) Set(s string) error {
	req, err := parseAllocSpec(s)
	if err != nil {
		return err
	}
	*a = append(*a, req)
	return nil
}

type pidList []int

func (p *pidList) String() string { return "" }
func (p *pidList) Set(s string) error {
	pid, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid pid %q: %w", s, err)
	}
	*p = append(*p, pid)
	return nil
}

func subCmdAlloc(args []string) error {
	flags := flag.NewFlagSet("alloc", flag.ExitOnError)
	var allocs allocSpecs
	var pids pidList
	requestID := flags.String("id", "", "request id (UUID) to name the new group; a fresh one is generated if omitted")
	flags.Var(&allocs, "alloc", "TYPE:host_id=size, may be repeated")
	flags.Var(&pids, "pid", "pid to move into the new group, may be repeated")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if len(allocs) == 0 {
		return fmt.Errorf("at least one -alloc is required")
	}

	id := uuid.New()
	if *requestID != "" {
		parsed, err := uuid.Parse(*requestID)
		if err != nil {
			return fmt.Errorf("invalid -id: %w", err)
		}
		id = parsed
	}

	ctrl, err := newController()
	if err != nil {
		return fmt.Errorf("cache partitioning is not available: %w", err)
	}

	group, err := ctrl.SetCacheTunes(id, pids, allocs)
	if err != nil {
		return err
	}
	fmt.Printf("created group %s\n", group.ID)
	return nil
}

func subCmdUpdate(args []string) error {
	flags := flag.NewFlagSet("update", flag.ExitOnError)
	groupID := flags.String("group", "", "group id to update")
	var pids pidList
	flags.Var(&pids, "pid", "pid to move into the group, may be repeated")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *groupID == "" {
		return fmt.Errorf("-group is required")
	}
	id, err := uuid.Parse(*groupID)
	if err != nil {
		return fmt.Errorf("invalid -group: %w", err)
	}

	ctrl, err := newController()
	if err != nil {
		return fmt.Errorf("cache partitioning is not available: %w", err)
	}
	return ctrl.UpdateTasks(id, pids)
}

func subCmdFree(args []string) error {
	flags := flag.NewFlagSet("free", flag.ExitOnError)
	groupID := flags.String("group", "", "group id to remove")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *groupID == "" {
		return fmt.Errorf("-group is required")
	}
	id, err := uuid.Parse(*groupID)
	if err != nil {
		return fmt.Errorf("invalid -group: %w", err)
	}

	ctrl, err := newController()
	if err != nil {
		return fmt.Errorf("cache partitioning is not available: %w", err)
	}
	return ctrl.RemoveCacheTunes(id)
}

func subCmdMonitor(args []string) error {
	flags := flag.NewFlagSet("monitor", flag.ExitOnError)
	port := flags.Int("port", 9248, "port to serve metrics on")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctrl, err := newController()
	if err != nil {
		return fmt.Errorf("cache partitioning is not available: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(resctrl.NewCollector(ctrl))
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	fmt.Printf("Serving prometheus metrics at :%d/metrics\n", *port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), nil); err != nil {
		return fmt.Errorf("error running HTTP server: %w", err)
	}
	return nil
}

// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	logger "github.com/cops-sched/cops/pkg/log"
	"github.com/cops-sched/cops/pkg/metrics"
	_ "github.com/cops-sched/cops/pkg/metrics/collectors"
	"github.com/cops-sched/cops/pkg/percpu"
	"github.com/cops-sched/cops/pkg/prioqueue"
	"github.com/cops-sched/cops/pkg/registry"
	"github.com/cops-sched/cops/pkg/vdsoapi"
	"github.com/cops-sched/cops/pkg/vdsopage"
	"github.com/cops-sched/cops/pkg/version"
)

var log = logger.Default()

func main() {
	sharedPath := flag.String("shared", "", "Attach a POSIX shared-memory page at this path instead of a local, process-private one.")
	pageSize := flag.Int("page-size", 64*1024, "Size in bytes of a newly created page.")
	numCPU := flag.Int("cpus", 4, "Number of logical CPUs for the demo per-CPU ready-queue area.")
	httpAddr := flag.String("http", "", "If set, serve Prometheus metrics on this address (e.g. :9100) instead of exiting after the demo.")
	demo := flag.Bool("demo", false, "Run a canned scheduling scenario and print the outcome.")
	drain := flag.String("drain", "", "Drain-delete the scheduler with this hex id (e.g. 0x80000001), reporting abandoned tasks, then exit.")
	printVersion := flag.Bool("version", false, "Print version and exit.")
	flag.Parse()

	if *printVersion {
		fmt.Printf("vdsoctl %s (%s)\n", version.Version, version.Build)
		os.Exit(0)
	}

	page, err := openPage(*sharedPath, *pageSize)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	defer page.Close()

	api := vdsoapi.New(page)
	vdsoapi.SetDefault(api)

	area := percpu.NewArea(*numCPU)

	if err := registry.RegisterMetrics(api.Registry()); err != nil {
		log.Error("registering registry metrics: %v", err)
	}
	if err := percpu.RegisterMetrics(area); err != nil {
		log.Error("registering per-CPU metrics: %v", err)
	}

	if *drain != "" {
		id, err := strconv.ParseUint(*drain, 0, 64)
		if err != nil {
			log.Error("invalid -drain id %q: %v", *drain, err)
			os.Exit(1)
		}
		if err := drainAndDelete(api, uintptr(id)); err != nil {
			log.Warn("drain of scheduler %#x: %v", id, err)
		} else {
			log.Info("drained and removed scheduler %#x cleanly", id)
		}
		os.Exit(0)
	}

	if *demo {
		runDemo(api)
		dumpMetrics()
	}

	if *httpAddr != "" {
		serveMetrics(*httpAddr)
	}
}

// dumpMetrics debug-logs every registered metric family in Prometheus
// text exposition format, one DebugBlock-style line per family.
func dumpMetrics() {
	gatherer, err := metrics.NewGatherer(metrics.WithMetrics([]string{"*"}, nil))
	if err != nil {
		log.Error("creating metrics gatherer: %v", err)
		return
	}
	defer gatherer.Stop()

	families, err := gatherer.Gather()
	if err != nil {
		log.Error("gathering metrics: %v", err)
		return
	}
	for _, f := range families {
		buf := &bytes.Buffer{}
		if _, err := expfmt.MetricFamilyToText(buf, f); err != nil {
			continue
		}
		log.Debug("  <metric> %s", strings.TrimSpace(buf.String()))
	}
}

func openPage(sharedPath string, size int) (*vdsopage.Page, error) {
	if sharedPath == "" {
		return vdsopage.NewLocal(size)
	}
	if _, err := os.Stat(sharedPath); err == nil {
		return vdsopage.OpenShared(sharedPath)
	}
	return vdsopage.NewShared(sharedPath, size)
}

// runDemo exercises scenario 4 of this library's testable properties
// end to end, printing the outcome for manual inspection.
func runDemo(api *vdsoapi.API) {
	const (
		kernelSched = 0
		userSched   = 0x80000001
		proxyTask   = 0xcafe
		userTask    = 0x1
	)

	log.Info("add_scheduler(0, nil) -> %v", api.AddScheduler(kernelSched, nil))
	log.Info("add_scheduler(0x80000001, {ktask: 0xcafe, cpu: 0}) -> %v",
		api.AddScheduler(userSched, &prioqueue.KtaskInfo{KtaskPtr: proxyTask, CPUID: kernelSched}))

	log.Info("add_task(0, 0xcafe, 3) -> %v (admitted proxy, highest_prio overridden since U is empty)",
		api.AddTask(kernelSched, proxyTask, 3))
	log.Info("add_task(0x80000001, 0x1, 1) -> %v (lifts U.highest_prio, propagates to K)",
		api.AddTask(userSched, userTask, 1))
	log.Info("clear_current(0x80000001) -> %v (U.highest_prio unchanged, K stays put)",
		api.ClearCurrent(userSched))

	if sched, ok := api.Registry().Scheduler(kernelSched); ok {
		stats := sched.Stats()
		log.Info("scheduler 0 stats: queue_lengths=%v current_prio=%d highest_prio=%d",
			stats.QueueLengths, stats.CurrentPrio, stats.HighestPrio)
	}
}

func serveMetrics(addr string) {
	gatherer, err := metrics.NewGatherer(metrics.WithMetrics([]string{"*"}, nil))
	if err != nil {
		log.Error("creating metrics gatherer: %v", err)
		return
	}
	defer gatherer.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      log,
		ErrorHandling: promhttp.ContinueOnError,
	}))

	// net/http.Server.ErrorLog wants a stdlib *log.Logger, not an
	// slog.Handler; SetSlogLogger routes slog's default through our own
	// logger, and slog.NewLogLogger bridges that handler back to the
	// *log.Logger type http.Server expects, so a connection-level error
	// still ends up on our own logger rather than going to os.Stderr raw.
	logger.SetSlogLogger("http")
	srv := &http.Server{
		Addr:     addr,
		Handler:  mux,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	log.Info("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Error("metrics server: %v", err)
	}
}

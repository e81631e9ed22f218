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

package registry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cops-sched/cops/pkg/metrics"
	"github.com/cops-sched/cops/pkg/prioqueue"
)

// RegisterMetrics exposes r's scheduler count and per-scheduler queue
// depth/priority state as Prometheus collectors on the default metrics
// registry, polled on demand the way pkg/metrics polls every other
// collector in this library.
func RegisterMetrics(r *Registry) error {
	return RegisterMetricsTo(metrics.Default(), r)
}

// RegisterMetricsTo is RegisterMetrics against an explicit
// *metrics.Registry, for tests and for callers assembling their own
// gatherer instead of relying on the package default.
func RegisterMetricsTo(mr *metrics.Registry, r *Registry) error {
	count := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "schedulers_registered",
		Help: "Number of schedulers currently registered.",
	}, func() float64 { return float64(r.SchedulerCount()) })

	if err := mr.Register("scheduler_count", count, metrics.WithGroup("registry")); err != nil {
		return err
	}

	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_queue_length",
		Help: "Number of tasks queued at a given priority level in a scheduler.",
	}, []string{"scheduler", "priority"})

	highest := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_highest_priority",
		Help: "Current highest_prio of a scheduler (PrioNum means empty).",
	}, []string{"scheduler"})

	collector := &registryCollector{r: r, depth: depth, highest: highest}
	return mr.Register("scheduler_stats", collector, metrics.WithGroup("registry"))
}

// registryCollector walks every currently registered scheduler at
// collection time, rather than keeping the gauges up to date on every
// AddTask/PickNextTask call, so the hot path never touches Prometheus.
type registryCollector struct {
	r       *Registry
	depth   *prometheus.GaugeVec
	highest *prometheus.GaugeVec
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	c.depth.Describe(ch)
	c.highest.Describe(ch)
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	c.r.schedMu.Lock()
	snapshot := make(map[uintptr]*prioqueue.Scheduler, len(c.r.schedulers))
	for id, s := range c.r.schedulers {
		snapshot[id] = s
	}
	c.r.schedMu.Unlock()

	for id, sched := range snapshot {
		label := strconv.FormatUint(uint64(id), 16)
		stats := sched.Stats()
		for prio, n := range stats.QueueLengths {
			c.depth.WithLabelValues(label, strconv.Itoa(prio)).Set(float64(n))
		}
		c.highest.WithLabelValues(label).Set(float64(stats.HighestPrio))
	}

	c.depth.Collect(ch)
	c.highest.Collect(ch)
}

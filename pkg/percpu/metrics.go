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

package percpu

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cops-sched/cops/pkg/metrics"
)

// RegisterMetrics exposes a's per-CPU ready-queue depths as a Prometheus
// gauge vector on the default metrics registry, polled on demand rather
// than pushed, matching the collector/group idiom in pkg/metrics.
func RegisterMetrics(a *Area) error {
	return RegisterMetricsTo(metrics.Default(), a)
}

// RegisterMetricsTo is RegisterMetrics against an explicit
// *metrics.Registry, for tests and callers assembling their own
// gatherer instead of relying on the package default.
func RegisterMetricsTo(mr *metrics.Registry, a *Area) error {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ready_queue_length",
		Help: "Number of task_ptrs currently queued on a logical CPU's ready queue.",
	}, []string{"cpu"})

	collector := &areaCollector{area: a, gauge: gauge}
	return mr.Register("percpu_ready_queue", collector, metrics.WithGroup("percpu"))
}

// areaCollector adapts Area.QueueLen into a prometheus.Collector so it
// can be polled by pkg/metrics rather than updated eagerly on every
// AddTask/PickNextTask call on the hot path.
type areaCollector struct {
	area  *Area
	gauge *prometheus.GaugeVec
}

func (c *areaCollector) Describe(ch chan<- *prometheus.Desc) {
	c.gauge.Describe(ch)
}

func (c *areaCollector) Collect(ch chan<- prometheus.Metric) {
	for cpu := 0; cpu < c.area.NumCPU(); cpu++ {
		c.gauge.WithLabelValues(cpuLabel(cpu)).Set(float64(c.area.QueueLen(cpu)))
	}
	c.gauge.Collect(ch)
}

func cpuLabel(cpu int) string {
	return strconv.Itoa(cpu)
}

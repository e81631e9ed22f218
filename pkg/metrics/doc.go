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

package metrics

// The metrics package provides a simple framework for collecting and
// exporting Prometheus metrics. It groups prometheus.Collectors, lets a
// group be enabled/disabled and polled at runtime, and prefixes metric
// names with a namespace and/or group ("subsystem") name.
//
// Simple Usage
//
// package main
//
// import (
//     "github.com/prometheus/client_golang/prometheus"
//     "github.com/cops-sched/cops/pkg/metrics"
// )
//
// func MyMeteredCodeSetup() error {
//     r := metrics.Default()
//     return r.Register("queue_depth", myGauge, metrics.WithGroup("prioqueue"))
// }

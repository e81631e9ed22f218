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

//go:build cshared

// Package main builds as a C shared object (go build -buildmode=c-shared)
// exporting the five __vdso_* symbols spec.md §6 names, backed by
// pkg/vdsoapi's default API. It has no other purpose: all real logic
// lives in pkg/vdsoapi, pkg/registry, and pkg/prioqueue, which are
// tested directly as ordinary Go packages. This file is only the cgo
// export shim, built separately from cmd/vdsoctl's ordinary binary so
// that neither build mode drags in the other's dependencies.
package main

// #include <stdint.h>
//
// // ktask_info_t mirrors the Option<(usize, usize)> parameter of
// // __vdso_add_scheduler: present selects whether ktask_ptr/cpu_id are
// // meaningful.
// typedef struct {
//     uintptr_t ktask_ptr;
//     uintptr_t cpu_id;
//     int present;
// } ktask_info_t;
import "C"

import (
	"github.com/cops-sched/cops/pkg/prioqueue"
	"github.com/cops-sched/cops/pkg/vdsoapi"
)

//export __vdso_add_scheduler
func __vdso_add_scheduler(schedulerID C.uintptr_t, ktask C.ktask_info_t) C.int {
	var info *prioqueue.KtaskInfo
	if ktask.present != 0 {
		info = &prioqueue.KtaskInfo{
			KtaskPtr: uintptr(ktask.ktask_ptr),
			CPUID:    uintptr(ktask.cpu_id),
		}
	}
	return boolToC(vdsoapi.AddScheduler(uintptr(schedulerID), info))
}

//export __vdso_delete_scheduler
func __vdso_delete_scheduler(schedulerID C.uintptr_t) C.int {
	return boolToC(vdsoapi.DeleteScheduler(uintptr(schedulerID)))
}

//export __vdso_add_task
func __vdso_add_task(schedulerID, taskPtr, defaultTaskPrio C.uintptr_t) C.int {
	return boolToC(vdsoapi.AddTask(uintptr(schedulerID), uintptr(taskPtr), int(defaultTaskPrio)))
}

//export __vdso_clear_current
func __vdso_clear_current(schedulerID C.uintptr_t) C.int {
	return boolToC(vdsoapi.ClearCurrent(uintptr(schedulerID)))
}

// __vdso_pick_next_task returns the picked task_ptr via the out
// parameter and reports presence as its own C.int, the Go-cgo rendering
// of Option<usize> across the C ABI boundary.
//
//export __vdso_pick_next_task
func __vdso_pick_next_task(schedulerID C.uintptr_t, out *C.uintptr_t) C.int {
	task, ok := vdsoapi.PickNextTask(uintptr(schedulerID))
	if !ok {
		return 0
	}
	*out = C.uintptr_t(task)
	return 1
}

func boolToC(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func main() {}

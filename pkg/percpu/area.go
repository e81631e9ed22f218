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

import "sync/atomic"

// cacheLinePad keeps adjacent cpuSlots from false-sharing a cache line;
// a Queue[uintptr] is 24 bytes (two atomic.Pointer fields plus an
// atomic.Int64), so we pad out to 64.
const cacheLinePad = 64 - 24

type cpuSlot struct {
	queue Queue[uintptr]
	_     [cacheLinePad]byte
}

// Area is the per-CPU ready-queue area: one lock-free FIFO per logical
// CPU, addressed by index. The original ties this addressing to the
// architectural thread-pointer register (gp/GS/TPIDR_EL1) set once per
// CPU at init; Go code has no portable way to repurpose that register,
// so Area is addressed by an ordinary CPU index instead, with
// SetCurrentCPU/CurrentCPU standing in for "read my own thread pointer"
// (see DESIGN.md for why this substitution is faithful to spec.md §9's
// "implementers may alternatively ..." escape hatch).
type Area struct {
	slots []cpuSlot
}

// NewArea allocates a ready-queue Area for numCPU logical CPUs.
func NewArea(numCPU int) *Area {
	a := &Area{slots: make([]cpuSlot, numCPU)}
	for i := range a.slots {
		a.slots[i].queue.init()
	}
	return a
}

// NumCPU returns the number of logical CPUs this Area was sized for.
func (a *Area) NumCPU() int {
	return len(a.slots)
}

// PickNextTask dequeues the next ready task_ptr for the given CPU.
func (a *Area) PickNextTask(cpu int) (uintptr, bool) {
	return a.slots[cpu].queue.Pop()
}

// AddTask enqueues task_ptr onto the given CPU's ready queue.
func (a *Area) AddTask(cpu int, task uintptr) {
	a.slots[cpu].queue.Push(task)
}

// FirstAddTask enqueues task_ptr onto the least-loaded CPU's ready
// queue, measured by queue length, and returns the CPU index it chose.
// This is the Go rendering of the original's least-loaded-candidate
// first-admission policy, generalized from the teacher's CPU-topology
// scoring idiom to plain queue-depth scoring.
func (a *Area) FirstAddTask(task uintptr) int {
	cpu := selectLeastLoaded(a.slots)
	a.slots[cpu].queue.Push(task)
	return cpu
}

func selectLeastLoaded(slots []cpuSlot) int {
	best := 0
	bestLen := slots[0].queue.Len()
	for i := 1; i < len(slots); i++ {
		if l := slots[i].queue.Len(); l < bestLen {
			best, bestLen = i, l
		}
	}
	return best
}

// QueueLen returns the current approximate length of the given CPU's
// ready queue, for metrics.
func (a *Area) QueueLen(cpu int) int {
	return a.slots[cpu].queue.Len()
}

// currentCPUID substitutes for a real per-hardware-thread register: a
// single process-wide value set by whichever goroutine is acting as
// "the current CPU" at the moment. This is adequate for the in-process
// demo (cmd/vdsoctl) and for single-goroutine-per-CPU test harnesses; it
// is not a substitute for genuine per-hardware-thread storage in a
// multi-core kernel, which Go cannot express portably (see DESIGN.md).
var currentCPUID atomic.Int64

// SetCurrentCPU records which logical CPU the calling goroutine is
// acting as, analogous to setup_percpu writing the thread-pointer
// register.
func SetCurrentCPU(cpu int) {
	currentCPUID.Store(int64(cpu))
}

// CurrentCPU returns the logical CPU most recently set by SetCurrentCPU,
// analogous to reading the thread-pointer register.
func CurrentCPU() int {
	return int(currentCPUID.Load())
}

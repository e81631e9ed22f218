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

// Package prioqueue implements the four-level priority runqueue at the
// heart of the scheduling library, plus the cross-scheduler priority
// propagation that keeps a kernel proxy task's position in sync with the
// user scheduler it represents.
package prioqueue

import (
	"errors"

	"github.com/cops-sched/cops/pkg/vdsopage/spinlock"
)

const (
	// PrioNum is the number of priority levels. Lower numeric value means
	// higher scheduling priority.
	PrioNum = 4
	// NoPriority is the sentinel meaning "no task" / "no current task".
	NoPriority = PrioNum
)

// ErrTaskNotFound is returned by SetPriority when task_ptr is not
// currently queued in any of the scheduler's runqueues.
var ErrTaskNotFound = errors.New("prioqueue: task not currently queued")

// fifo is a plain FIFO sequence of opaque task handles. It stores no
// pointers of its own, only the uintptr handles callers hand us, so it
// carries none of the address-independence hazards spec.md warns about
// for pointer-linked containers.
type fifo struct {
	tasks []uintptr
}

func (q *fifo) pushBack(task uintptr) {
	q.tasks = append(q.tasks, task)
}

func (q *fifo) popFront() (uintptr, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		q.tasks = nil
	}
	return task, true
}

func (q *fifo) remove(task uintptr) bool {
	for i, t := range q.tasks {
		if t == task {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

func (q *fifo) empty() bool {
	return len(q.tasks) == 0
}

// Scheduler is a single priority runqueue: one per CPU for kernel
// schedulers, one per user thread for user schedulers. Every public
// method is guarded by the Scheduler's own Spinlock, never a
// sync.Mutex, so it stays safe to call with local preemption disabled.
type Scheduler struct {
	mu          spinlock.Spinlock
	queues      [PrioNum]fifo
	currentPrio int
	highestPrio int
}

// NewScheduler returns an empty Scheduler, current and highest priority
// both at the sentinel NoPriority.
func NewScheduler() *Scheduler {
	return &Scheduler{currentPrio: NoPriority, highestPrio: NoPriority}
}

// AddTask appends task to the queue for prio, reports whether a strictly
// higher-priority task than the one currently tracked as running now
// exists (a local reschedule signal).
func (s *Scheduler) AddTask(task uintptr, prio int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prio < s.highestPrio {
		s.highestPrio = prio
	}
	s.queues[prio].pushBack(task)
	return s.highestPrio < s.currentPrio
}

// PickNextTask scans priorities 0..PrioNum in order and returns the
// front of the first non-empty queue, updating current_prio and
// highest_prio per spec.md §4.C.
func (s *Scheduler) PickNextTask() (uintptr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		task   uintptr
		picked bool
		prio   int
	)
	for ; prio < PrioNum; prio++ {
		if t, ok := s.queues[prio].popFront(); ok {
			task, picked = t, true
			s.currentPrio = prio
			break
		}
	}
	for {
		if prio == PrioNum || !s.queues[prio].empty() {
			s.highestPrio = prio
			break
		}
		prio++
	}
	return task, picked
}

// ClearCurrent resets current_prio to NoPriority. Call this when the
// task most recently returned by PickNextTask has finished or been
// descheduled, before calling PickNextTask again.
func (s *Scheduler) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPrio = NoPriority
}

// SetPriority relocates task to newPrio, returning whether the scheduler
// now needs a reschedule, or ErrTaskNotFound if task isn't queued. No
// task can sit at a priority above highest_prio, so the search only
// scans queues[highest_prio:PrioNum].
func (s *Scheduler) SetPriority(task uintptr, newPrio int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for prio := s.highestPrio; prio < PrioNum; prio++ {
		if s.queues[prio].remove(task) {
			found = true
			break
		}
	}
	if !found {
		return false, ErrTaskNotFound
	}

	s.queues[newPrio].pushBack(task)

	lo := s.highestPrio
	if newPrio < lo {
		lo = newPrio
	}
	for prio := lo; prio <= newPrio; prio++ {
		if !s.queues[prio].empty() {
			s.highestPrio = prio
			return s.highestPrio < s.currentPrio, nil
		}
	}
	panic("prioqueue: inserted task vanished while recomputing highest_prio")
}

// Stats is a point-in-time snapshot of a Scheduler's state for metrics
// and inspection. It is never consulted by scheduling decisions.
type Stats struct {
	QueueLengths [PrioNum]int
	CurrentPrio  int
	HighestPrio  int
}

// Stats returns a snapshot of s's current state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for i := range s.queues {
		st.QueueLengths[i] = len(s.queues[i].tasks)
	}
	st.CurrentPrio = s.currentPrio
	st.HighestPrio = s.highestPrio
	return st
}

// EffectivePriority returns min(current_prio, highest_prio), the
// priority at which a user scheduler's proxy kernel task should run.
func (s *Scheduler) EffectivePriority() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectivePriorityLocked()
}

func (s *Scheduler) effectivePriorityLocked() int {
	if s.currentPrio < s.highestPrio {
		return s.currentPrio
	}
	return s.highestPrio
}

// HighestPrio returns the scheduler's current highest_prio without
// mutating anything, used by admission-time proxy-priority overrides.
func (s *Scheduler) HighestPrio() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestPrio
}

// KtaskInfo associates a user scheduler with the kernel proxy task that
// represents its work to the kernel scheduler named by CPUID.
type KtaskInfo struct {
	KtaskPtr uintptr
	CPUID    uintptr
}

// Propagator implements update_ktask_priority (spec.md §4.D) against
// caller-supplied scheduler and association lookups, so this package
// never needs to import the registry that owns those maps.
type Propagator struct {
	// Scheduler resolves a scheduler id to its Scheduler.
	Scheduler func(id uintptr) (*Scheduler, bool)
	// Association resolves a user scheduler id to its KtaskInfo.
	Association func(userSchedulerID uintptr) (KtaskInfo, bool)
}

// UpdateKtaskPriority recomputes the effective priority of the user
// scheduler userSchedulerID and, if it has a registered proxy task,
// relocates that task inside its kernel scheduler to match. It returns
// whether the kernel scheduler now needs to reschedule; NotFound results
// (no association, or the proxy not currently queued) are swallowed and
// reported as false, exactly as spec.md §4.D specifies.
//
// Lock order: U's lock is acquired and released to read its effective
// priority before S's lock is ever touched, so the two locks are never
// held nested.
func (p *Propagator) UpdateKtaskPriority(userSchedulerID uintptr) bool {
	u, ok := p.Scheduler(userSchedulerID)
	if !ok {
		return false
	}
	ktaskPrio := u.EffectivePriority()

	info, ok := p.Association(userSchedulerID)
	if !ok {
		return false
	}
	k, ok := p.Scheduler(info.CPUID)
	if !ok {
		return false
	}
	resched, err := k.SetPriority(info.KtaskPtr, ktaskPrio)
	if err != nil {
		return false
	}
	return resched
}

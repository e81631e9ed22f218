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

// Package vdsoapi is the thin entry-point layer a vDSO shared object
// exports: five operations over a package-level default registry held
// alongside a data page (the registry's maps live in process memory, not
// in the page), plus panics at the boundary for the cases the
// contract calls undefined caller behavior. cmd/vdso wraps these same
// functions behind cgo //export C symbols; cmd/vdsoctl and tests call
// them directly as ordinary Go functions.
package vdsoapi

import (
	logger "github.com/cops-sched/cops/pkg/log"
	"github.com/cops-sched/cops/pkg/prioqueue"
	"github.com/cops-sched/cops/pkg/registry"
	"github.com/cops-sched/cops/pkg/vdsopage"
)

var log = logger.Get("vdsoapi")

// API is one scheduling library instance: a registry of schedulers plus
// the shared page it is conceptually backed by. The package-level
// default functions (AddScheduler, AddTask, ...) operate on Default();
// most callers never need more than one API per process.
type API struct {
	page *vdsopage.Page
	reg  *registry.Registry
}

// New builds an API around an already-attached Page. Callers that don't
// need shared-memory attachment (tests, the in-process cmd/vdsoctl
// demo) can pass a vdsopage.NewLocal page.
func New(page *vdsopage.Page) *API {
	return &API{page: page, reg: registry.New()}
}

// Page returns the shared data page this API is bound to.
func (a *API) Page() *vdsopage.Page {
	return a.page
}

// Registry returns the underlying scheduler registry, mainly for
// metrics registration and inspection tooling.
func (a *API) Registry() *registry.Registry {
	return a.reg
}

// AddScheduler registers a new scheduler under schedulerID. If
// schedulerID names a user scheduler and ktaskInfo is non-nil, it
// records the association between that user scheduler and its proxy
// kernel task. Reports false without effect if schedulerID is already
// registered.
func (a *API) AddScheduler(schedulerID uintptr, ktaskInfo *prioqueue.KtaskInfo) bool {
	return a.reg.AddScheduler(schedulerID, ktaskInfo)
}

// DeleteScheduler removes schedulerID's scheduler and any association,
// reporting whether one was actually present. Tasks still queued in it
// are abandoned; see cmd/vdsoctl for a drain-checked variant.
func (a *API) DeleteScheduler(schedulerID uintptr) bool {
	return a.reg.DeleteScheduler(schedulerID)
}

// AddTask enqueues taskPtr into schedulerID's runqueue at
// defaultTaskPrio, unless taskPtr is the proxy kernel task of some user
// scheduler, in which case that user scheduler's current highest_prio
// overrides defaultTaskPrio — so a proxy's priority in the kernel
// always reflects its user scheduler's state even if it was never
// actively rescheduled while off the kernel runqueue. It returns
// whether schedulerID now needs a local reschedule.
//
// schedulerID must already be registered; calling this on an
// unregistered scheduler is caller error and panics, per spec's "caller
// must not invoke on a missing id" contract for this operation.
func (a *API) AddTask(schedulerID, taskPtr uintptr, defaultTaskPrio int) bool {
	taskPrio := defaultTaskPrio
	if uschedID, ok := a.reg.UserSchedulerForTask(taskPtr); ok {
		usched, ok := a.reg.Scheduler(uschedID)
		if !ok {
			log.Warn("user scheduler %#x associated with task %#x vanished", uschedID, taskPtr)
		} else {
			taskPrio = usched.HighestPrio()
			if taskPrio == prioqueue.NoPriority {
				// U is empty: there is no effective priority to
				// inherit yet, so the proxy is admitted at the
				// lowest usable level instead of indexing past the
				// end of the priority queues.
				taskPrio = prioqueue.PrioNum - 1
			}
		}
	}

	sched, err := a.reg.MustScheduler(schedulerID)
	if err != nil {
		panic(err)
	}

	resched := sched.AddTask(taskPtr, taskPrio)

	if registry.IsUserScheduler(schedulerID) {
		// Adding a task to a user scheduler can raise its effective
		// priority, which its proxy kernel task must pick up immediately
		// rather than waiting for the next clear_current. The kernel
		// reschedule decision this produces is only acted on at
		// clear_current time, so its result is discarded here.
		a.reg.Propagator().UpdateKtaskPriority(schedulerID)
	}
	return resched
}

// ClearCurrent resets schedulerID's current task to the sentinel. For a
// user scheduler this recomputes its proxy kernel task's priority and
// returns whether the kernel now needs to reschedule — the caller must
// trap into the kernel when this is true. For a kernel scheduler it
// always returns false: kernel reschedule was already signaled, if
// needed, by whatever call changed the proxy's priority.
//
// schedulerID must already be registered; calling this on an
// unregistered scheduler is caller error and panics.
func (a *API) ClearCurrent(schedulerID uintptr) bool {
	sched, err := a.reg.MustScheduler(schedulerID)
	if err != nil {
		panic(err)
	}
	sched.ClearCurrent()

	if !registry.IsUserScheduler(schedulerID) {
		return false
	}
	return a.reg.Propagator().UpdateKtaskPriority(schedulerID)
}

// PickNextTask dequeues and returns the next ready task for schedulerID.
//
// schedulerID must already be registered; calling this on an
// unregistered scheduler is caller error and panics.
func (a *API) PickNextTask(schedulerID uintptr) (uintptr, bool) {
	sched, err := a.reg.MustScheduler(schedulerID)
	if err != nil {
		panic(err)
	}
	return sched.PickNextTask()
}

var defaultAPI *API

// Default returns the package-level default API, creating one bound to
// a local, non-shared Page on first use. The package-level functions
// below, and through them cmd/vdso's exported C symbols, go through it;
// tests and cmd/vdsoctl build their own API with New (cmd/vdsoctl also
// installs it here with SetDefault).
func Default() *API {
	if defaultAPI == nil {
		page, err := vdsopage.NewLocal(defaultPageSize)
		if err != nil {
			panic(err)
		}
		defaultAPI = New(page)
	}
	return defaultAPI
}

// SetDefault replaces the package-level default API, e.g. to rebind it
// to a shared-memory Page produced by vdsopage.NewShared/OpenShared.
func SetDefault(a *API) {
	defaultAPI = a
}

// defaultPageSize is large enough to hold this library's bookkeeping
// for a modest number of schedulers in the in-process demo/test case;
// a real shared deployment sizes its Page explicitly via NewShared.
const defaultPageSize = 64 * 1024

// AddScheduler calls Default().AddScheduler.
func AddScheduler(schedulerID uintptr, ktaskInfo *prioqueue.KtaskInfo) bool {
	return Default().AddScheduler(schedulerID, ktaskInfo)
}

// DeleteScheduler calls Default().DeleteScheduler.
func DeleteScheduler(schedulerID uintptr) bool {
	return Default().DeleteScheduler(schedulerID)
}

// AddTask calls Default().AddTask.
func AddTask(schedulerID, taskPtr uintptr, defaultTaskPrio int) bool {
	return Default().AddTask(schedulerID, taskPtr, defaultTaskPrio)
}

// ClearCurrent calls Default().ClearCurrent.
func ClearCurrent(schedulerID uintptr) bool {
	return Default().ClearCurrent(schedulerID)
}

// PickNextTask calls Default().PickNextTask.
func PickNextTask(schedulerID uintptr) (uintptr, bool) {
	return Default().PickNextTask(schedulerID)
}

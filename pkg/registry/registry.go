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

// Package registry owns the two maps the scheduling library is built
// around: scheduler id to *prioqueue.Scheduler, and user-scheduler id to
// its associated kernel proxy task. Both maps are guarded by their own
// Spinlock, per spec.md §4.E and §5 ("the association map is guarded by
// its own lock").
package registry

import (
	"errors"
	"fmt"

	"github.com/cops-sched/cops/pkg/prioqueue"
	"github.com/cops-sched/cops/pkg/vdsopage/spinlock"
)

// ErrSchedulerNotFound is returned for operations against a scheduler id
// that isn't registered. Per spec.md §7 this is caller error, fatal:
// callers must not invoke scheduler operations on a missing id.
var ErrSchedulerNotFound = errors.New("registry: scheduler not registered")

// KernelIDMask partitions the scheduler id space: a clear top bit means a
// kernel scheduler, a set top bit means a user scheduler.
const KernelIDMask uintptr = 1 << 31

// IsUserScheduler reports whether id belongs to a user scheduler.
func IsUserScheduler(id uintptr) bool {
	return id&KernelIDMask != 0
}

// Registry is the scheduler-id -> Scheduler map plus the user-scheduler
// -> kernel-proxy association map, each behind its own coarse Spinlock —
// the simplest point in the design space spec.md §5 leaves open ("a
// single coarse lock on the registry is permissible").
type Registry struct {
	schedMu      spinlock.Spinlock
	schedulers   map[uintptr]*prioqueue.Scheduler
	assocMu      spinlock.Spinlock
	associations map[uintptr]prioqueue.KtaskInfo
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		schedulers:   make(map[uintptr]*prioqueue.Scheduler),
		associations: make(map[uintptr]prioqueue.KtaskInfo),
	}
}

// AddScheduler inserts a fresh Scheduler for id, and its association
// with ktask if supplied, unless id is already present. It returns false
// and does nothing if id already has a Scheduler.
func (r *Registry) AddScheduler(id uintptr, ktask *prioqueue.KtaskInfo) bool {
	r.schedMu.Lock()
	if _, exists := r.schedulers[id]; exists {
		r.schedMu.Unlock()
		return false
	}
	r.schedulers[id] = prioqueue.NewScheduler()
	r.schedMu.Unlock()

	if ktask != nil {
		r.assocMu.Lock()
		r.associations[id] = *ktask
		r.assocMu.Unlock()
	}
	return true
}

// DeleteScheduler removes id's Scheduler and any association, reporting
// whether a scheduler was actually removed. Tasks still queued in it are
// abandoned; spec.md §4.E leaves draining to the caller, as does this
// implementation (see cmd/vdsoctl for an additive drain-checked variant).
func (r *Registry) DeleteScheduler(id uintptr) bool {
	r.schedMu.Lock()
	_, existed := r.schedulers[id]
	delete(r.schedulers, id)
	r.schedMu.Unlock()

	if existed {
		r.assocMu.Lock()
		delete(r.associations, id)
		r.assocMu.Unlock()
	}
	return existed
}

// Scheduler returns the Scheduler registered for id.
func (r *Registry) Scheduler(id uintptr) (*prioqueue.Scheduler, bool) {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()
	s, ok := r.schedulers[id]
	return s, ok
}

// MustScheduler returns the Scheduler registered for id, or
// ErrSchedulerNotFound wrapped with id for context.
func (r *Registry) MustScheduler(id uintptr) (*prioqueue.Scheduler, error) {
	s, ok := r.Scheduler(id)
	if !ok {
		return nil, fmt.Errorf("scheduler %#x: %w", id, ErrSchedulerNotFound)
	}
	return s, nil
}

// Association returns the KtaskInfo registered for user scheduler id.
func (r *Registry) Association(id uintptr) (prioqueue.KtaskInfo, bool) {
	r.assocMu.Lock()
	defer r.assocMu.Unlock()
	info, ok := r.associations[id]
	return info, ok
}

// UserSchedulerForTask is the reverse lookup spec.md §9 flags as "a
// linear scan ... for large deployments a reverse index should be
// added": it walks the association map looking for the user scheduler
// whose proxy task is taskPtr.
func (r *Registry) UserSchedulerForTask(taskPtr uintptr) (uintptr, bool) {
	r.assocMu.Lock()
	defer r.assocMu.Unlock()
	for id, info := range r.associations {
		if info.KtaskPtr == taskPtr {
			return id, true
		}
	}
	return 0, false
}

// Propagator returns a prioqueue.Propagator bound to this Registry's
// lookups, ready to pass to UpdateKtaskPriority.
func (r *Registry) Propagator() *prioqueue.Propagator {
	return &prioqueue.Propagator{
		Scheduler:   r.Scheduler,
		Association: r.Association,
	}
}

// SchedulerCount returns the number of registered schedulers, for
// metrics.
func (r *Registry) SchedulerCount() int {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()
	return len(r.schedulers)
}

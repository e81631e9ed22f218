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

// Package spinlock implements a raw test-and-test-and-set spinlock. It is
// the only synchronization primitive allowed on the hot paths of
// pkg/prioqueue, pkg/registry, and pkg/vdsopage/alloc: callers of those
// packages are expected to have already disabled local preemption (an
// interrupt mask in the kernel, a signal mask in userspace) for the
// duration of a call, so a lock that could put the calling goroutine to
// sleep — sync.Mutex, a channel receive — is not an option. A spinning
// goroutine burns CPU instead of suspending, which is the correct
// trade-off under that calling discipline.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a non-reentrant, busy-wait mutual exclusion lock. The zero
// value is an unlocked Spinlock, ready to use.
type Spinlock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired. It never blocks the calling
// goroutine on a channel or on the Go runtime's internal sleep queues.
func (s *Spinlock) Lock() {
	for {
		if s.TryLock() {
			return
		}
		// Test-and-test-and-set: spin on a plain load first so contended
		// cores aren't all hammering the same cache line with CAS traffic.
		for s.held.Load() {
			runtime.Gosched()
		}
	}
}

// TryLock attempts to acquire the lock without spinning, reporting whether
// it succeeded.
func (s *Spinlock) TryLock() bool {
	return s.held.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an already-unlocked Spinlock, or one
// held by another caller, is a caller bug and leaves the lock state
// corrupted, exactly as an unbalanced raw spinlock would in the original
// kernel-side implementation.
func (s *Spinlock) Unlock() {
	s.held.Store(false)
}

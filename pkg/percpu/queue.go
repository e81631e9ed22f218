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

// Package percpu implements the kernel-only per-CPU ready-queue variant:
// a plain (non-priority) FIFO per logical CPU, lock-free so that no
// spinlock is needed on the hot picking/adding path. Unlike pkg/prioqueue
// and pkg/vdsopage/alloc, this queue embeds real pointers in its nodes
// (a Michael-Scott queue built on atomic.Pointer[T] generics), which is
// exactly the pattern spec.md §4.F and §9 call out as usable only inside
// a single address space — this package has no shared-memory backend and
// never will.
package percpu

import "sync/atomic"

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Queue is a lock-free, wait-free-under-no-contention Michael-Scott FIFO
// queue. The zero value is an empty queue ready to use: the first
// Push or Pop installs the dummy head node.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int64
}

func (q *Queue[T]) init() {
	if q.tail.Load() != nil {
		return
	}
	q.head.CompareAndSwap(nil, &node[T]{})
	q.tail.CompareAndSwap(nil, q.head.Load())
}

// Push enqueues v at the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.init()
	n := &node[T]{value: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.length.Add(1)
				return
			}
		} else {
			// Tail was lagging behind; help advance it before retrying.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// Pop dequeues and returns the front of the queue, or reports false if
// the queue was empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.init()
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				var zero T
				return zero, false
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)
			return v, true
		}
	}
}

// Len returns the queue's approximate current length. Under contention
// this may be stale by the time the caller acts on it; it exists for
// metrics and least-loaded selection, never for scheduling correctness.
func (q *Queue[T]) Len() int {
	return int(q.length.Load())
}

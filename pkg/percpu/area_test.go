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

package percpu_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cops-sched/cops/pkg/percpu"
)

func TestQueueFIFOOrder(t *testing.T) {
	var q percpu.Queue[uintptr]
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []uintptr{1, 2, 3} {
		got, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := q.Pop()
	require.False(t, ok, "queue should be empty after draining")
}

func TestQueueLenTracksPushPop(t *testing.T) {
	var q percpu.Queue[uintptr]
	require.Equal(t, 0, q.Len())

	q.Push(1)
	q.Push(2)
	require.Equal(t, 2, q.Len())

	_, _ = q.Pop()
	require.Equal(t, 1, q.Len())
}

func TestQueueConcurrentPushPop(t *testing.T) {
	var q percpu.Queue[uintptr]

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base uintptr) {
			defer wg.Done()
			for i := uintptr(0); i < perProducer; i++ {
				q.Push(base + i)
			}
		}(uintptr(p * perProducer))
	}
	wg.Wait()

	seen := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		seen++
	}
	require.Equal(t, producers*perProducer, seen)
}

func TestAreaPickNextTaskPerCPUIsolation(t *testing.T) {
	a := percpu.NewArea(2)
	a.AddTask(0, 0x100)
	a.AddTask(1, 0x200)

	got0, ok := a.PickNextTask(0)
	require.True(t, ok)
	require.EqualValues(t, 0x100, got0)

	got1, ok := a.PickNextTask(1)
	require.True(t, ok)
	require.EqualValues(t, 0x200, got1)

	_, ok = a.PickNextTask(0)
	require.False(t, ok)
}

func TestAreaFirstAddTaskPicksLeastLoaded(t *testing.T) {
	a := percpu.NewArea(3)
	a.AddTask(0, 0xaaa)
	a.AddTask(0, 0xbbb)
	a.AddTask(1, 0xccc)

	cpu := a.FirstAddTask(0xddd)
	require.Equal(t, 2, cpu, "CPU 2 is idle and should be chosen over CPUs 0 and 1")
	require.Equal(t, 1, a.QueueLen(2))
}

func TestAreaQueueLenReflectsState(t *testing.T) {
	a := percpu.NewArea(1)
	require.Equal(t, 0, a.QueueLen(0))

	a.AddTask(0, 0x1)
	a.AddTask(0, 0x2)
	require.Equal(t, 2, a.QueueLen(0))

	_, _ = a.PickNextTask(0)
	require.Equal(t, 1, a.QueueLen(0))
}

func TestCurrentCPURoundTrips(t *testing.T) {
	percpu.SetCurrentCPU(3)
	require.Equal(t, 3, percpu.CurrentCPU())

	percpu.SetCurrentCPU(0)
	require.Equal(t, 0, percpu.CurrentCPU())
}

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

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cops-sched/cops/pkg/prioqueue"
	"github.com/cops-sched/cops/pkg/registry"
	"github.com/cops-sched/cops/pkg/testutils"
)

func TestAddSchedulerRejectsDuplicate(t *testing.T) {
	r := registry.New()
	require.True(t, r.AddScheduler(0, nil))
	require.False(t, r.AddScheduler(0, nil))
}

func TestDeleteSchedulerRoundTrip(t *testing.T) {
	r := registry.New()
	require.True(t, r.AddScheduler(0x80000001, &prioqueue.KtaskInfo{KtaskPtr: 0xcafe, CPUID: 0}))

	require.True(t, r.DeleteScheduler(0x80000001))
	_, ok := r.Scheduler(0x80000001)
	require.False(t, ok)
	_, ok = r.Association(0x80000001)
	require.False(t, ok)

	require.False(t, r.DeleteScheduler(0x80000001), "deleting twice reports not removed")
}

func TestUserSchedulerForTaskReverseLookup(t *testing.T) {
	r := registry.New()
	require.True(t, r.AddScheduler(0x80000001, &prioqueue.KtaskInfo{KtaskPtr: 0xcafe, CPUID: 0}))

	assoc, ok := r.Association(0x80000001)
	require.True(t, ok)
	testutils.VerifyDeepEqual(t, "association", prioqueue.KtaskInfo{KtaskPtr: 0xcafe, CPUID: 0}, assoc)

	id, ok := r.UserSchedulerForTask(0xcafe)
	require.True(t, ok)
	require.EqualValues(t, 0x80000001, id)

	_, ok = r.UserSchedulerForTask(0xdead)
	require.False(t, ok)
}

// TestUserKernelPropagationOnClearCurrent is scenario 4 of spec.md §8.
func TestUserKernelPropagationOnClearCurrent(t *testing.T) {
	r := registry.New()
	require.True(t, r.AddScheduler(0, nil))
	require.True(t, r.AddScheduler(0x80000001, &prioqueue.KtaskInfo{KtaskPtr: 0xcafe, CPUID: 0}))

	kernel, _ := r.Scheduler(0)
	user, _ := r.Scheduler(0x80000001)

	// K is admitted into the kernel scheduler while its user scheduler is
	// empty: the admission-time override clamps to PrioNum-1, the lowest
	// usable level, per the resolved open question (see DESIGN.md).
	require.Equal(t, prioqueue.NoPriority, user.HighestPrio())
	overriddenPrio := prioqueue.PrioNum - 1
	kernel.AddTask(0xcafe, overriddenPrio)
	require.Equal(t, overriddenPrio, kernel.Stats().HighestPrio)

	p := r.Propagator()

	// Adding a task to the user scheduler lifts its highest_prio, which
	// must propagate K to the matching priority inside the kernel
	// scheduler.
	user.AddTask(0x1, 1)
	resched := p.UpdateKtaskPriority(0x80000001)
	require.True(t, resched)
	require.Equal(t, 1, kernel.Stats().HighestPrio)

	// clear_current on U doesn't change highest_prio here (U never had a
	// current task), so K stays at prio 1. The kernel scheduler still has
	// no current task, so K queued at prio 1 is reported as a kernel
	// reschedule.
	user.ClearCurrent()
	require.True(t, p.UpdateKtaskPriority(0x80000001))
	require.Equal(t, 1, kernel.Stats().HighestPrio)
}

// TestProxyNotResidentReturnsFalse is scenario 6 of spec.md §8.
func TestProxyNotResidentReturnsFalse(t *testing.T) {
	r := registry.New()
	require.True(t, r.AddScheduler(0, nil))
	require.True(t, r.AddScheduler(0x80000001, &prioqueue.KtaskInfo{KtaskPtr: 0xcafe, CPUID: 0}))

	kernel, _ := r.Scheduler(0)
	user, _ := r.Scheduler(0x80000001)

	kernel.AddTask(0xcafe, 2)
	kernel.PickNextTask() // K is now running, not resident in any queue

	user.AddTask(0x1, 1)

	p := r.Propagator()
	require.False(t, p.UpdateKtaskPriority(0x80000001))
}

func TestOperationsOnMissingSchedulerReportNotFound(t *testing.T) {
	r := registry.New()
	_, err := r.MustScheduler(0x1234)
	require.ErrorIs(t, err, registry.ErrSchedulerNotFound)
}

func TestIsUserScheduler(t *testing.T) {
	require.False(t, registry.IsUserScheduler(0))
	require.False(t, registry.IsUserScheduler(3))
	require.True(t, registry.IsUserScheduler(0x80000001))
}

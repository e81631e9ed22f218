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

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cops-sched/cops/pkg/testutils"
	"github.com/cops-sched/cops/pkg/vdsoapi"
	"github.com/cops-sched/cops/pkg/vdsopage"
)

func newTestAPI(t *testing.T) *vdsoapi.API {
	t.Helper()
	page, err := vdsopage.NewLocal(64 * 1024)
	require.NoError(t, err)
	return vdsoapi.New(page)
}

func TestDrainAndDeleteReportsAbandonedTasks(t *testing.T) {
	api := newTestAPI(t)
	require.True(t, api.AddScheduler(0, nil))
	api.AddTask(0, 0x1, 2)
	api.AddTask(0, 0x2, 2)

	err := drainAndDelete(api, 0)
	testutils.VerifyError(t, err, 2, []string{"0x1", "0x2"})

	_, ok := api.Registry().Scheduler(0)
	require.False(t, ok, "scheduler should be removed after drain")
}

func TestDrainAndDeleteCleanSchedulerReturnsNil(t *testing.T) {
	api := newTestAPI(t)
	require.True(t, api.AddScheduler(0, nil))

	require.NoError(t, drainAndDelete(api, 0))
}

func TestDrainAndDeleteUnregisteredSchedulerErrors(t *testing.T) {
	api := newTestAPI(t)
	require.Error(t, drainAndDelete(api, 0x1234))
}

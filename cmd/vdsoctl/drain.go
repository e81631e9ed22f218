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
	"fmt"

	"github.com/cops-sched/cops/pkg/multierror"
	"github.com/cops-sched/cops/pkg/vdsoapi"
)

// drainAndDelete empties schedulerID's runqueues before removing it,
// reporting every task_ptr it had to abandon. pkg/registry's
// DeleteScheduler itself never drains: this is additive operator
// tooling layered on top, not a change to that core semantics.
func drainAndDelete(api *vdsoapi.API, schedulerID uintptr) error {
	sched, err := api.Registry().MustScheduler(schedulerID)
	if err != nil {
		return err
	}

	var abandoned error
	for {
		task, ok := sched.PickNextTask()
		if !ok {
			break
		}
		abandoned = multierror.Append(abandoned, fmt.Errorf("abandoned task %#x on scheduler %#x", task, schedulerID))
	}

	if !api.DeleteScheduler(schedulerID) {
		return multierror.Append(abandoned, fmt.Errorf("scheduler %#x vanished during drain", schedulerID))
	}
	return abandoned
}

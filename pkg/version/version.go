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

// Package version holds build-time stamped version information. Both
// variables are overridden at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/cops-sched/cops/pkg/version.Version=v0.1.0 \
//	    -X github.com/cops-sched/cops/pkg/version.Build=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the released or development version of the build.
	Version = "unknown"
	// Build is the build identifier, typically a VCS commit hash.
	Build = "unknown"
)

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

// Package multierror provides a thin, repo-local wrapper over
// hashicorp/go-multierror, giving us one accumulation point for the
// non-fatal errors a drain-checked scheduler teardown can collect (a task
// still runnable, a ktask proxy left dangling, and so on) without forcing
// every caller to import hashicorp/go-multierror directly.
package multierror

import (
	hcmerr "github.com/hashicorp/go-multierror"
)

// Error is a collection of errors accumulated by Append, formatted as a
// single error by hashicorp/go-multierror's default ListFormatFunc.
type Error = hcmerr.Error

// New wraps err in an *Error if it isn't one already, or returns nil if
// err is nil. It mirrors hashicorp/go-multierror's own constructor shape,
// but never returns a nil *Error wrapped in a non-nil error value.
func New(err error) error {
	if err == nil {
		return nil
	}
	if merr, ok := err.(*hcmerr.Error); ok {
		return merr
	}
	return hcmerr.Append(nil, err)
}

// Append adds one or more errors to an accumulator, creating one if needed.
// A nil errs in the varargs is ignored, matching hashicorp/go-multierror.
func Append(accum error, errs ...error) error {
	merr := hcmerr.Append(nil, errs...)
	if accum != nil {
		if existing, ok := accum.(*hcmerr.Error); ok {
			return hcmerr.Append(existing, merr.Errors...)
		}
		return hcmerr.Append(nil, append([]error{accum}, merr.Errors...)...)
	}
	if len(merr.Errors) == 0 {
		return nil
	}
	return merr
}

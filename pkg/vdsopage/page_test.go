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

package vdsopage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cops-sched/cops/pkg/vdsopage"
)

func TestNewLocalHeapIsUsable(t *testing.T) {
	p, err := vdsopage.NewLocal(64 * 1024)
	require.NoError(t, err)
	defer p.Close()

	off, err := p.Heap().Alloc(128)
	require.NoError(t, err)
	require.NoError(t, p.Heap().Free(off, 128))
}

func TestReadHeaderReflectsFormat(t *testing.T) {
	p, err := vdsopage.NewLocal(64 * 1024)
	require.NoError(t, err)
	defer p.Close()

	h := p.ReadHeader()
	require.EqualValues(t, 1, h.Generation)
	require.EqualValues(t, 64*1024-32, h.HeapSize)
}

func TestSharedPageRoundTripsBetweenAttachers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdso-test-page")
	defer os.Remove(path)

	writer, err := vdsopage.NewShared(path, 64*1024)
	require.NoError(t, err)
	defer writer.Close()

	off, err := writer.Heap().Alloc(64)
	require.NoError(t, err)
	copy(writer.At(off, 5), []byte("hello"))

	reader, err := vdsopage.OpenShared(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, "hello", string(reader.At(off, 5)))
}

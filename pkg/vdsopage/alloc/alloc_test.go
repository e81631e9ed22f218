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

package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cops-sched/cops/pkg/vdsopage/alloc"
)

func TestNewRejectsUndersizedArena(t *testing.T) {
	_, err := alloc.New(make([]byte, 4))
	require.ErrorIs(t, err, alloc.ErrArenaTooSmall)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	arena := make([]byte, 64*1024)
	h, err := alloc.New(arena)
	require.NoError(t, err)

	off, err := h.Alloc(128)
	require.NoError(t, err)
	require.NotEqual(t, alloc.NoOffset, off)

	require.NoError(t, h.Free(off, 128))

	// Reallocating the same size should reuse the freed block.
	off2, err := h.Alloc(128)
	require.NoError(t, err)
	require.Equal(t, off, off2)
}

func TestAllocDistinctBlocksDoNotOverlap(t *testing.T) {
	arena := make([]byte, 64*1024)
	h, err := alloc.New(arena)
	require.NoError(t, err)

	seen := map[alloc.Offset]bool{}
	for i := 0; i < 16; i++ {
		off, err := h.Alloc(256)
		require.NoError(t, err)
		require.False(t, seen[off], "offset %d allocated twice", off)
		seen[off] = true
	}
}

func TestAllocFailureWhenExhausted(t *testing.T) {
	arena := make([]byte, 512)
	h, err := alloc.New(arena)
	require.NoError(t, err)

	var offs []alloc.Offset
	for {
		off, err := h.Alloc(32)
		if err != nil {
			require.ErrorIs(t, err, alloc.ErrOOM)
			break
		}
		offs = append(offs, off)
	}
	require.NotEmpty(t, offs)
}

func TestZeroSizeAllocIsRejected(t *testing.T) {
	arena := make([]byte, 4096)
	h, err := alloc.New(arena)
	require.NoError(t, err)

	_, err = h.Alloc(0)
	require.ErrorIs(t, err, alloc.ErrInvalidSize)
}

func TestSecondAttachObservesExistingState(t *testing.T) {
	arena := make([]byte, 64*1024)
	h1, err := alloc.New(arena)
	require.NoError(t, err)

	off, err := h1.Alloc(64)
	require.NoError(t, err)

	// A second Heap attaching the same bytes must see h1's allocation
	// already carved out of the free lists, not re-format the arena.
	h2, err := alloc.New(arena)
	require.NoError(t, err)

	off2, err := h2.Alloc(64)
	require.NoError(t, err)
	require.NotEqual(t, off, off2)
}

func TestBuddyMergeOnFree(t *testing.T) {
	arena := make([]byte, 64*1024)
	h, err := alloc.New(arena)
	require.NoError(t, err)

	a, err := h.Alloc(32)
	require.NoError(t, err)
	b, err := h.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, h.Free(a, 32))
	require.NoError(t, h.Free(b, 32))

	// After freeing both buddies, a large allocation that requires the
	// merged block to be reassembled should succeed.
	big, err := h.Alloc(32 * 1024)
	require.NoError(t, err)
	require.NotEqual(t, alloc.NoOffset, big)
}

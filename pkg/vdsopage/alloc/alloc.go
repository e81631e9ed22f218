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

// Package alloc implements a buddy-style heap whose internal bookkeeping
// is entirely offset-based: every pointer the allocator hands out, and
// every free-list link it keeps internally, is a byte Offset relative to
// the start of the arena it manages rather than an absolute address. A
// caller converts an Offset to a usable pointer in its own address space
// by adding that address space's copy of the arena's base address; the
// allocator itself never sees or stores a base address, which is what
// lets the same arena bytes be managed consistently from more than one
// mapping of the same shared memory.
//
// Free-list metadata lives inline in the arena itself (an intrusive
// singly-linked list threaded through the first word of each free block,
// plus a small head-pointer table at the very start of the arena) so that
// two processes attached to the same shared segment observe the same
// allocator state, not just the same allocated bytes.
package alloc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/cops-sched/cops/pkg/vdsopage/spinlock"
)

// Offset is a byte offset relative to the start of an arena. It is never
// an absolute pointer and is valid to interpret identically in any
// address space that maps the same arena.
type Offset uintptr

// NoOffset is the sentinel for "no block" in a free list.
const NoOffset Offset = ^Offset(0)

// ErrOOM is returned when the heap has no free block large enough to
// satisfy a request. Per the allocation-failure contract, this is fatal:
// callers are expected to treat it as a scheduler-operation failure, not
// retry it.
var ErrOOM = errors.New("alloc: heap exhausted")

// ErrInvalidSize is returned for a zero or negative allocation request.
var ErrInvalidSize = errors.New("alloc: size must be greater than zero")

// ErrArenaTooSmall is returned when an arena can't even hold the header
// and one minimum-sized block.
var ErrArenaTooSmall = errors.New("alloc: arena too small for a buddy heap")

const (
	// minBlockOrder is the smallest block size the heap ever hands out,
	// expressed as a power of two: 1<<minBlockOrder bytes.
	minBlockOrder = 5 // 32 bytes

	headerMagic = uint32(0xc0b5a110)
)

// headerSize returns the number of bytes reserved at the front of the
// arena for the magic/order fields and the per-order free-list heads.
func headerSize(maxOrder int) uintptr {
	return 8 + 8*uintptr(maxOrder+1)
}

// Heap is an address-independent buddy allocator over a caller-supplied
// arena. The arena is typically the heap region of a vdsopage.Page.
type Heap struct {
	mu       spinlock.Spinlock
	arena    []byte
	dataOff  Offset
	maxOrder int
}

// New attaches a Heap to arena, initializing its header if the arena does
// not already carry one (identified by headerMagic). A second caller that
// attaches the same bytes via New observes the first caller's state
// rather than re-formatting it.
func New(arena []byte) (*Heap, error) {
	maxOrder := maxOrderFor(len(arena))
	if maxOrder < 0 {
		return nil, ErrArenaTooSmall
	}
	h := &Heap{
		arena:    arena,
		dataOff:  Offset(headerSize(maxOrder)),
		maxOrder: maxOrder,
	}
	if binary.LittleEndian.Uint32(arena[0:4]) != headerMagic {
		h.format()
	}
	return h, nil
}

// maxOrderFor returns the largest order whose single top-level block,
// plus the header needed to describe it, still fits in size bytes, or -1
// if even the smallest block doesn't fit.
func maxOrderFor(size int) int {
	for order := 31; order >= 0; order-- {
		need := int(headerSize(order)) + (1 << uint(minBlockOrder+order))
		if need <= size {
			return order
		}
	}
	return -1
}

func (h *Heap) format() {
	binary.LittleEndian.PutUint32(h.arena[0:4], headerMagic)
	binary.LittleEndian.PutUint32(h.arena[4:8], uint32(h.maxOrder))
	for order := 0; order <= h.maxOrder; order++ {
		h.writeHead(order, NoOffset)
	}
	h.writeHead(h.maxOrder, h.dataOff)
	h.writeNext(h.dataOff, NoOffset)
}

func blockSize(order int) uintptr {
	return 1 << uint(minBlockOrder+order)
}

func orderForSize(size uintptr) int {
	blocks := (size + (1 << minBlockOrder) - 1) >> minBlockOrder
	if blocks <= 1 {
		return 0
	}
	return bits.Len(uint(blocks - 1))
}

func (h *Heap) headOffset(order int) uintptr {
	return 8 + 8*uintptr(order)
}

func (h *Heap) readHead(order int) Offset {
	o := h.headOffset(order)
	return Offset(binary.LittleEndian.Uint64(h.arena[o : o+8]))
}

func (h *Heap) writeHead(order int, v Offset) {
	o := h.headOffset(order)
	binary.LittleEndian.PutUint64(h.arena[o:o+8], uint64(v))
}

func (h *Heap) readNext(off Offset) Offset {
	return Offset(binary.LittleEndian.Uint64(h.arena[off : off+8]))
}

func (h *Heap) writeNext(off Offset, v Offset) {
	binary.LittleEndian.PutUint64(h.arena[off:off+8], uint64(v))
}

// Alloc reserves a block of at least size bytes and returns its Offset.
func (h *Heap) Alloc(size uintptr) (Offset, error) {
	if size == 0 {
		return NoOffset, ErrInvalidSize
	}
	order := orderForSize(size)
	if order > h.maxOrder {
		return NoOffset, ErrOOM
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocOrder(order)
}

func (h *Heap) allocOrder(order int) (Offset, error) {
	head := h.readHead(order)
	if head != NoOffset {
		h.writeHead(order, h.readNext(head))
		return head, nil
	}
	if order == h.maxOrder {
		return NoOffset, ErrOOM
	}
	parent, err := h.allocOrder(order + 1)
	if err != nil {
		return NoOffset, err
	}
	buddy := parent + Offset(blockSize(order))
	h.pushFree(order, buddy)
	return parent, nil
}

// Free releases a block previously returned by Alloc. size must be the
// same size passed to the corresponding Alloc call.
func (h *Heap) Free(off Offset, size uintptr) error {
	if size == 0 {
		return ErrInvalidSize
	}
	order := orderForSize(size)
	if order > h.maxOrder {
		return fmt.Errorf("alloc: size %d exceeds heap capacity", size)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.freeOrder(off, order)
	return nil
}

func (h *Heap) freeOrder(off Offset, order int) {
	if order < h.maxOrder {
		buddy := h.buddyOf(off, order)
		if h.unlinkFree(order, buddy) {
			merged := off
			if buddy < off {
				merged = buddy
			}
			h.freeOrder(merged, order+1)
			return
		}
	}
	h.pushFree(order, off)
}

func (h *Heap) buddyOf(off Offset, order int) Offset {
	rel := uintptr(off - h.dataOff)
	return h.dataOff + Offset(rel^blockSize(order))
}

func (h *Heap) pushFree(order int, off Offset) {
	h.writeNext(off, h.readHead(order))
	h.writeHead(order, off)
}

// unlinkFree removes target from order's free list if present.
func (h *Heap) unlinkFree(order int, target Offset) bool {
	head := h.readHead(order)
	if head == target {
		h.writeHead(order, h.readNext(head))
		return true
	}
	prev := head
	for prev != NoOffset {
		next := h.readNext(prev)
		if next == target {
			h.writeNext(prev, h.readNext(next))
			return true
		}
		prev = next
	}
	return false
}

// MaxOrder returns the largest block order this heap can satisfy.
func (h *Heap) MaxOrder() int {
	return h.maxOrder
}

// DataOffset returns the Offset of the first byte available for
// allocation, i.e. the end of the allocator's own header.
func (h *Heap) DataOffset() Offset {
	return h.dataOff
}

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

// Package vdsopage implements the fixed-layout shared data region that
// holds a bookkeeping Header and an address-independent allocator heap.
// A Page can be backed either by plain process memory (NewLocal, for
// in-process callers such as tests and the cmd/vdsoctl demo) or by a
// POSIX shared-memory segment mapped with golang.org/x/sys/unix.Mmap
// (NewShared/OpenShared), so that two independent OS processes can share
// the same heap bytes and allocator state. The scheduler registry and
// its association map (pkg/registry) are ordinary Go maps in process
// memory and are not stored in a Page, so two processes attached to one
// Page do not share scheduling state.
//
// Nothing in this package stores an absolute pointer anywhere a second
// attacher would read it back: every reference into a Page's heap is an
// Offset, resolved against that attacher's own copy of the bytes (At).
package vdsopage

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cops-sched/cops/pkg/vdsopage/alloc"
)

// Offset is a byte offset relative to the start of a Page's heap region
// (the bytes after the Header), as handed out by Page.Heap(). It is
// valid to interpret identically in every address space that attaches
// the same Page.
type Offset = alloc.Offset

const (
	// headerLen is the number of bytes at the front of a Page reserved
	// for bookkeeping (Header), ahead of the allocator heap region.
	headerLen = 32
)

// Header is the Page-level bookkeeping written into the first headerLen
// bytes of every Page: a generation counter, a layout version, and the
// configured heap size. NewLocal and NewShared write it with Generation
// 1 each time they format a Page; ReadHeader decodes it. OpenShared does
// not read or validate the header before attaching the heap.
type Header struct {
	Generation    uint32
	LayoutVersion uint32
	HeapSize      uint64
}

const currentLayoutVersion = 1

// Page is a fixed-layout, address-independent region of memory: a
// Header, followed by an alloc.Heap arena occupying the rest of the
// backing bytes.
type Page struct {
	bytes []byte
	heap  *alloc.Heap
	unmap func() error
}

// NewLocal creates a Page backed by ordinary process memory, sized size
// bytes. It is the right choice whenever "kernel" and "user" call sites
// are both Go code sharing one process, such as unit tests.
func NewLocal(size int) (*Page, error) {
	return newPage(make([]byte, size), nil)
}

// NewShared creates (or resizes) a POSIX shared memory segment at path,
// sized size bytes, writes a fresh Header, and maps it MAP_SHARED so
// that a second process calling OpenShared(path) observes the same
// bytes. An allocator heap already formatted in an existing segment is
// kept as it is, not reformatted. path is typically under /dev/shm.
func NewShared(path string, size int) (*Page, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vdsopage: create %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("vdsopage: truncate %s to %d: %w", path, size, err)
	}

	return mmapPage(f, size, true)
}

// OpenShared attaches an existing POSIX shared memory segment at path,
// previously created with NewShared, without reformatting it.
func OpenShared(path string) (*Page, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vdsopage: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("vdsopage: stat %s: %w", path, err)
	}

	return mmapPage(f, int(info.Size()), false)
}

func mmapPage(f *os.File, size int, format bool) (*Page, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("vdsopage: mmap %s: %w", f.Name(), err)
	}

	unmap := func() error { return unix.Munmap(data) }
	if format {
		return newPage(data, unmap)
	}

	p := &Page{bytes: data, unmap: unmap}
	heap, err := alloc.New(data[headerLen:])
	if err != nil {
		p.unmap()
		return nil, err
	}
	p.heap = heap
	return p, nil
}

func newPage(data []byte, unmap func() error) (*Page, error) {
	p := &Page{bytes: data, unmap: unmap}
	heap, err := alloc.New(data[headerLen:])
	if err != nil {
		return nil, err
	}
	p.heap = heap
	p.writeHeader(Header{
		Generation:    1,
		LayoutVersion: currentLayoutVersion,
		HeapSize:      uint64(len(data) - headerLen),
	})
	return p, nil
}

// Close releases any OS resources (the mmap mapping) backing the Page.
// It is a no-op for a NewLocal Page.
func (p *Page) Close() error {
	if p.unmap == nil {
		return nil
	}
	return p.unmap()
}

// Heap returns the address-independent allocator attached to this Page.
func (p *Page) Heap() *alloc.Heap {
	return p.heap
}

// Len returns the total size of the Page's backing bytes, header
// included.
func (p *Page) Len() int {
	return len(p.bytes)
}

// At resolves an Offset returned by this Page's Heap into a byte slice
// view into this attacher's copy of the Page, starting at off and
// extending n bytes. Heap offsets count from the start of the heap
// region, which begins headerLen bytes into the Page.
func (p *Page) At(off Offset, n int) []byte {
	start := headerLen + int(off)
	return p.bytes[start : start+n]
}

// Base returns the address, in this attacher's own address space, of the
// Page's first byte. It is the Go analogue of the PC-masking trick
// spec.md describes for self-locating the data page without relocation:
// here, the base is simply whatever Go's allocator (or the kernel, for
// an mmap'd Page) happened to place the backing bytes at in this
// process, resolved once at attach time rather than recomputed from the
// program counter on every call.
func (p *Page) Base() uintptr {
	return uintptr(unsafe.Pointer(&p.bytes[0]))
}

// ReadHeader decodes the Page's bookkeeping header.
func (p *Page) ReadHeader() Header {
	return Header{
		Generation:    binary.LittleEndian.Uint32(p.bytes[0:4]),
		LayoutVersion: binary.LittleEndian.Uint32(p.bytes[4:8]),
		HeapSize:      binary.LittleEndian.Uint64(p.bytes[8:16]),
	}
}

func (p *Page) writeHeader(h Header) {
	binary.LittleEndian.PutUint32(p.bytes[0:4], h.Generation)
	binary.LittleEndian.PutUint32(p.bytes[4:8], h.LayoutVersion)
	binary.LittleEndian.PutUint64(p.bytes[8:16], h.HeapSize)
}

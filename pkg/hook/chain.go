package hook

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Dasaav-dsv/RTTIHook/pkg/capability"
)

// fenceVar exists only so memoryFence has something to atomically add to.
// An atomic read-modify-write is a full hardware fence on amd64, standing
// in for the _mm_mfence the source issues before every cross-hook pointer
// publish and before re-reading a VFT slot a racing thread may have
// changed.
var fenceVar uint64

func memoryFence() {
	atomic.AddUint64(&fenceVar, 1)
}

// Chain installs and removes hooks against virtual function table slots
// reachable through a single capability. Every exported method is safe to
// call from any goroutine; serialization happens per hook chain, not per
// Chain value, by locking the topmost hook's mutex.
type Chain struct {
	cap capability.Capability
}

func NewChain(cap capability.Capability) *Chain {
	return &Chain{cap: cap}
}

// HookHandle identifies one installed trampoline. Its zero value is not
// usable; obtain one from Chain.Install.
type HookHandle struct {
	chain  *Chain
	record uintptr
	size   uintptr
}

func readUintptrAt(addr uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint64(recordBytes(addr, 8)))
}

func writeUintptrAt(addr uintptr, v uintptr) {
	binary.LittleEndian.PutUint64(recordBytes(addr, 8), uint64(v))
}

func magicAt(addr uintptr) uint64 {
	return binary.LittleEndian.Uint64(recordBytes(addr, 8))
}

// rdataWrite writes a single pointer-sized value to a potentially
// read-only location, restoring the prior protection afterwards. A memory
// fence precedes the store so other threads walking the chain concurrently
// observe either the old or the new value, never a torn one.
func rdataWrite(cap capability.Capability, addr uintptr, value uintptr) error {
	old, err := cap.Protect(addr, unsafe.Sizeof(value), capability.PageExecuteReadWrite)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtectFailed, err)
	}
	memoryFence()
	writeUintptrAt(addr, value)
	if _, err := cap.Protect(addr, unsafe.Sizeof(value), old); err != nil {
		return fmt.Errorf("%w: %v", ErrProtectFailed, err)
	}
	return nil
}

// findHead walks previous-pointers starting at addr until the next hop's
// magic fails to match, meaning that hop is the anchor (the VFT slot
// itself, whose stored bytes are an ordinary function pointer) rather than
// another hook record. Reading magic at an arbitrary address this way is
// memory-unsafe by construction: the walk never dereferences further than
// a single 8-byte read, by design, as the only way to distinguish a chained
// hook from the original slot without extra bookkeeping.
func findHead(addr uintptr) uintptr {
	for {
		next := readPtrField(addr, offPrevious)
		if magicAt(next) != recordMagic {
			return addr
		}
		addr = next
	}
}

// Install places tmpl at slotAddr (the address of one pointer-sized VFT
// entry), redirecting it to call fnNew. If slotAddr already holds another
// hook's trampoline, the new hook is chained above it rather than
// replacing it outright.
func (c *Chain) Install(slotAddr uintptr, fnNew uintptr, tmpl Template) (*HookHandle, error) {
	if slotAddr == 0 {
		return nil, ErrNilSlot
	}

	total := headerSize + len(tmpl.Body)
	base, err := c.cap.AllocExec(uintptr(total))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}

	body := recordBytes(base+headerSize, len(tmpl.Body))
	copy(body, tmpl.Body)

	lock := &sync.Mutex{}
	registerLock(base, lock)

	if tmpl.UsesContext {
		ctx := &Context{}
		registerContext(base, ctx)
		writePtrField(base, offContext, uintptr(unsafe.Pointer(ctx)))
	}

	writePtrField(base, offMagic, uintptr(recordMagic))
	writePtrField(base, offPrevious, slotAddr)
	writePtrField(base, offFnNew, fnNew)

	fnHooked := readUintptrAt(slotAddr)
	writePtrField(base, offFnHooked, fnHooked)

	patch(base, tmpl)

	bodyAddr := base + headerSize
	prevRecord := fnHooked - headerSize

	if fnHooked != 0 && magicAt(prevRecord) == recordMagic {
		prevLock := lookupLock(prevRecord)
		if prevLock == nil {
			// prevRecord's registry entry is gone (already uninstalled by a
			// racing thread); fall back to treating the slot as the anchor.
			if err := rdataWrite(c.cap, slotAddr, bodyAddr); err != nil {
				unregisterLock(base)
				c.cap.FreeExec(base)
				return nil, err
			}
			return &HookHandle{chain: c, record: base, size: uintptr(total)}, nil
		}

		prevLock.Lock()
		// every hook in a chain shares the chain's mutex, so whichever
		// record is topmost hands the same lock to Install and Uninstall.
		registerLock(base, prevLock)
		memoryFence()
		if current := readUintptrAt(slotAddr); current != fnHooked {
			fnHooked = current
			writePtrField(base, offFnHooked, fnHooked)
			prevRecord = fnHooked - headerSize
		}
		// the chain may have been drained while waiting for the lock; the
		// slot is then the anchor and there is no record to link to.
		if fnHooked != 0 && magicAt(prevRecord) == recordMagic {
			if err := rdataWrite(c.cap, prevRecord+offPrevious, base); err != nil {
				prevLock.Unlock()
				unregisterLock(base)
				c.cap.FreeExec(base)
				return nil, err
			}
		}
		if err := rdataWrite(c.cap, slotAddr, bodyAddr); err != nil {
			prevLock.Unlock()
			unregisterLock(base)
			c.cap.FreeExec(base)
			return nil, err
		}
		prevLock.Unlock()
	} else {
		memoryFence()
		if current := readUintptrAt(slotAddr); current != fnHooked {
			fnHooked = current
			writePtrField(base, offFnHooked, fnHooked)
		}
		if err := rdataWrite(c.cap, slotAddr, bodyAddr); err != nil {
			unregisterLock(base)
			c.cap.FreeExec(base)
			return nil, err
		}
	}

	return &HookHandle{chain: c, record: base, size: uintptr(total)}, nil
}

// Close uninstalls h through the Chain it was created from. It implements
// io.Closer so callers can defer hook removal the same way they would any
// other acquired resource.
func (h *HookHandle) Close() error {
	return h.chain.Uninstall(h)
}

// Uninstall removes h from whatever position it occupies in its chain,
// bridging the neighbors on either side of it, and frees its trampoline
// page. Any node may be removed, not only the most recently installed one.
func (c *Chain) Uninstall(h *HookHandle) error {
	base := h.record
	head := findHead(base)
	lock := lookupLock(head)
	if lock == nil {
		return ErrNotInstalled
	}
	lock.Lock()
	defer lock.Unlock()

	fnHooked := readPtrField(base, offFnHooked)
	previous := readPtrField(base, offPrevious)
	nextRecord := fnHooked - headerSize

	if magicAt(nextRecord) == recordMagic {
		if err := rdataWrite(c.cap, nextRecord+offPrevious, previous); err != nil {
			return err
		}
	}

	if magicAt(previous) == recordMagic {
		if err := rdataWrite(c.cap, previous+offFnHooked, fnHooked); err != nil {
			return err
		}
	} else {
		// previous is the VFT slot address itself: unhook directly.
		if err := rdataWrite(c.cap, previous, fnHooked); err != nil {
			return err
		}
	}

	unregisterLock(base)
	unregisterContext(base)
	return c.cap.FreeExec(base)
}

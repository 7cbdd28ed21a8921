package hook

import (
	"encoding/binary"
	"sync"
	"unsafe"
)

// recordMagic tags the first 8 bytes of every HookRecord. A chain walk
// reads this field at an unaligned absolute offset and treats a match as
// "this is another hook" — anything else is the anchor (the VFT slot
// itself). "UniHook\0" is the richer HookTemplates.h family's constant;
// VFTHook.h's simpler single-template source uses a different 8 bytes for
// the same purpose, but this package only ever installs one family of
// record, so one magic is enough.
const recordMagic uint64 = 0x6B6F6F48696E55 // "UniHook\0" little-endian, trailing NUL

// headerSize is the fixed prefix before a template's patched body: Magic,
// ChainLock, Context, Previous, FnNew, FnHooked, Extra, each a pointer-sized
// (8-byte) slot in that exact order, mirroring HookTemplates.h's HookData
// (magic, mutex, context, previous, fnNew, fnHooked, extra) one field at a
// time. Field order is load-bearing: record.go's offsets below and every
// patch offset in template.go assume it.
const headerSize = 56

const (
	offMagic     = 0
	offChainLock = 8
	offContext   = 16
	offPrevious  = 24
	offFnNew     = 32
	offFnHooked  = 40
	offExtra     = 48
)

// registry keeps Go-typed objects referenced from native (VirtualAlloc'd,
// non-GC-scanned) memory alive. Only a *Context's uintptr bit pattern is
// stored in a record's header (its Context field, which the trampolines
// read). The chain's *sync.Mutex is kept only here, keyed by record base,
// and the ChainLock header field stays zero — the executed trampoline bytes
// never touch the lock, only this package's own Install/Uninstall logic
// does, so the indirection through a registry map costs nothing at
// hook-execution time. Mirrors the
// teacher's dllRegistry/registryMutex pattern in pkg/pe/dll.go.
var (
	registryMu sync.RWMutex
	locks      = map[uintptr]*sync.Mutex{}
	contexts   = map[uintptr]*Context{}
)

func registerLock(recordBase uintptr, l *sync.Mutex) {
	registryMu.Lock()
	locks[recordBase] = l
	registryMu.Unlock()
}

func lookupLock(recordBase uintptr) *sync.Mutex {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return locks[recordBase]
}

func unregisterLock(recordBase uintptr) {
	registryMu.Lock()
	delete(locks, recordBase)
	registryMu.Unlock()
}

func registerContext(recordBase uintptr, c *Context) {
	registryMu.Lock()
	contexts[recordBase] = c
	registryMu.Unlock()
}

func unregisterContext(recordBase uintptr) {
	registryMu.Lock()
	delete(contexts, recordBase)
	registryMu.Unlock()
}

// recordBytes is a []byte view over the native header + patched trampoline
// body at addr, for field get/set without additional unsafe at call sites.
func recordBytes(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

func readPtrField(addr uintptr, off int) uintptr {
	b := recordBytes(addr, headerSize)
	return uintptr(binary.LittleEndian.Uint64(b[off:]))
}

func writePtrField(addr uintptr, off int, v uintptr) {
	b := recordBytes(addr, headerSize)
	binary.LittleEndian.PutUint64(b[off:], uint64(v))
}

// patch rewrites every disp32 a template's body declares, so the
// RIP-relative reference lands on the field's absolute address within this
// particular allocation. disp32 = fieldAddr - instrEnd, where instrEnd is
// the address of the byte immediately following the 4-byte displacement
// (the next instruction's first byte), per x86-64 RIP-relative addressing.
// Computing this per-install rather than baking a single fixed offset is
// the documented fix for assuming a uniform record size across templates.
func patch(recordBase uintptr, t Template) {
	body := recordBytes(recordBase+headerSize, len(t.Body))
	bodyAddr := recordBase + headerSize

	for _, p := range t.patches {
		var fieldOff int
		switch p.field {
		case refContext:
			fieldOff = offContext
		case refFnNew:
			fieldOff = offFnNew
		case refFnHooked:
			fieldOff = offFnHooked
		case refExtra:
			fieldOff = offExtra
		}
		fieldAddr := recordBase + uintptr(fieldOff)
		instrEnd := bodyAddr + uintptr(p.offset) + 4
		disp32 := int32(int64(fieldAddr) - int64(instrEnd))
		binary.LittleEndian.PutUint32(body[p.offset:], uint32(disp32))
	}
}

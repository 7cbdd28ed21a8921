package vfthook

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/Dasaav-dsv/RTTIHook/pkg/hook"
	"github.com/Dasaav-dsv/RTTIHook/pkg/rtti"
)

// stubCapability satisfies capability.Capability with plain Go memory for
// AllocExec/FreeExec/Protect; ModuleBaseAndSize and Demangle are unused by
// these tests, which build an Index directly rather than through Open.
type stubCapability struct {
	mu   sync.Mutex
	live map[uintptr][]byte
}

func newStubCapability() *stubCapability {
	return &stubCapability{live: map[uintptr][]byte{}}
}

func (s *stubCapability) ModuleBaseAndSize(name string) (uintptr, uint32, error) {
	return 0, 0, errors.New("stubCapability: not implemented")
}

func (s *stubCapability) AllocExec(size uintptr) (uintptr, error) {
	buf := make([]byte, size)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	s.mu.Lock()
	s.live[addr] = buf
	s.mu.Unlock()
	return addr, nil
}

func (s *stubCapability) FreeExec(addr uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, addr)
	return nil
}

func (s *stubCapability) Protect(addr, length uintptr, newFlags uint32) (uint32, error) {
	return 0x04, nil
}

func (s *stubCapability) Demangle(mangled string) (string, error) {
	return mangled, nil
}

// vft emulates a virtual function table living in module memory: a run of
// pointer-sized slots, V[20] being the one these tests hook.
type vft struct {
	buf []byte
}

func newVft(slots int, original uintptr, atIndex int) *vft {
	buf := make([]byte, slots*8)
	v := &vft{buf: buf}
	v.setSlot(atIndex, original)
	return v
}

func (v *vft) addr() uintptr {
	return uintptr(unsafe.Pointer(&v.buf[0]))
}

func (v *vft) setSlot(index int, value uintptr) {
	b := v.buf[index*8:]
	for i := 0; i < 8; i++ {
		b[i] = byte(value >> (8 * i))
	}
}

func (v *vft) slot(index int) uintptr {
	var out uintptr
	b := v.buf[index*8:]
	for i := 0; i < 8; i++ {
		out |= uintptr(b[i]) << (8 * i)
	}
	return out
}

// originalFn stands in for the function a slot pointed at before any hook.
// Uninstall reads an 8-byte magic field at fn_hooked-headerSize even once
// the walk reaches a plain function pointer (chain-head detection is
// memory-unsafe by construction), so this needs real, padded memory rather
// than an arbitrary sentinel value.
type originalFn struct {
	buf []byte
}

func newOriginalFn() *originalFn {
	return &originalFn{buf: make([]byte, 128)}
}

func (f *originalFn) addr() uintptr {
	return uintptr(unsafe.Pointer(&f.buf[64]))
}

// TestInstallByNameSuccess is seed scenario 3: RttiIndex containing
// "CS::PlayerIns" -> {vft_addr=V}, V[20]=F0; install("CS::PlayerIns", 20,
// fn) must resolve the class and leave V[20] pointing at a non-null
// trampoline, and closing the handle must restore F0. The trampoline
// header fields themselves are checked by pkg/hook's
// TestInstallSetsHeaderFields.
func TestInstallByNameSuccess(t *testing.T) {
	orig := newOriginalFn()
	f0 := orig.addr()
	v := newVft(32, f0, 20)

	index := rtti.NewIndex(rtti.Record{VftAddr: v.addr(), Name: "CS::PlayerIns"})

	capb := newStubCapability()
	eng := New(capb, nil, index)

	const fnNew = uintptr(0x41414141)
	h, err := eng.Install("CS::PlayerIns", 20, fnNew, trivialTemplate())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := v.slot(20); got == 0 {
		t.Fatalf("V[20] was not updated to point at a trampoline")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := v.slot(20); got != f0 {
		t.Errorf("V[20] after unhook = %#x, want original %#x", got, f0)
	}
	runtime.KeepAlive(v)
	runtime.KeepAlive(orig)
}

// TestInstallByNameClassNotFound is seed scenario 4: installing against a
// class absent from the index fails with ErrClassNotFound and leaks
// nothing.
func TestInstallByNameClassNotFound(t *testing.T) {
	index := rtti.NewIndex()
	capb := newStubCapability()
	eng := New(capb, nil, index)

	if _, err := eng.Install("Nope", 0, 0x1, trivialTemplate()); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("Install(\"Nope\", ...): got %v, want %v", err, ErrClassNotFound)
	}
	if len(capb.live) != 0 {
		t.Errorf("failed Install leaked %d allocation(s)", len(capb.live))
	}
}

func trivialTemplate() hook.Template {
	return hook.Template{Name: "trivial", Body: make([]byte, 16)}
}

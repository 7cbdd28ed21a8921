package rtti

import (
	"encoding/binary"
	"testing"

	"github.com/Dasaav-dsv/RTTIHook/pkg/image"
)

// stubDemangler mimics dbghelp's UnDecorateSymbolName just enough for
// tests: it strips the "?AV"/"@@" MSVC mangling markers this package's
// fixtures use, the way the real demangler would for a simple class name.
type stubDemangler struct {
	calls []string
}

func (d *stubDemangler) Demangle(mangled string) (string, error) {
	d.calls = append(d.calls, mangled)
	// mangled form used by the fixtures below: "?AVFoo@@"
	s := mangled
	if len(s) >= 3 && s[:3] == "?AV" {
		s = s[3:]
	}
	if len(s) >= 2 && s[len(s)-2:] == "@@" {
		s = s[:len(s)-2]
	}
	if s == "" {
		return "", nil
	}
	return s, nil
}

// layout fabricates a tiny image with one class's RTTI wired together:
// a .text section holding the lea/mov constructor pattern (strategy A)
// and a .rdata section holding the vtable, COL, TD, CHD and BCD records
// it points at (also independently discoverable by strategy B).
type layout struct {
	base       uintptr
	data       []byte
	textStart  uintptr
	rdataStart uintptr
}

func newLayout(t *testing.T) *layout {
	t.Helper()
	const base = 0x140000000
	const size = 0x10000
	const textStart = base + 0x1000
	const rdataStart = base + 0x3000

	data := make([]byte, size)

	// --- .rdata layout ---
	// BCD at rdataStart+0x000 (only the fields validateCandidate reads).
	bcdAddr := rdataStart + 0x000
	// TD at rdataStart+0x040: vftablePtr, spare, name "?AVFoo@@\0".
	tdAddr := rdataStart + 0x040
	// CHD at rdataStart+0x080.
	chdAddr := rdataStart + 0x080
	// BCD array (one IBO32 entry, pointing at bcdAddr) at rdataStart+0x0C0.
	bcdArrayAddr := rdataStart + 0x0C0
	// COL at rdataStart+0x100.
	colAddr := rdataStart + 0x100
	// vtable at rdataStart+0x140: slot -8 holds &COL, slot 0 holds the
	// first virtual function pointer (into .text).
	vftAddr := rdataStart + 0x140

	put32 := func(addr uintptr, v uint32) {
		binary.LittleEndian.PutUint32(data[addr-base:], v)
	}
	put64 := func(addr uintptr, v uint64) {
		binary.LittleEndian.PutUint64(data[addr-base:], v)
	}

	name := "?AVFoo@@\x00"
	copy(data[tdAddr-base+16:], name)

	put32(uintptr(chdAddr), 0)                                          // signature
	put32(uintptr(chdAddr+4), 0)                                        // flags
	put32(uintptr(chdAddr+8), 1)                                        // numBaseClasses
	put32(uintptr(chdAddr+12), uint32(int32(int64(bcdArrayAddr)-base))) // ibo_base_class_array

	put32(uintptr(bcdArrayAddr), uint32(int32(int64(bcdAddr)-base))) // first BCD entry IBO

	put32(uintptr(colAddr), 1)                                     // signature
	put32(uintptr(colAddr+4), 0)                                   // offset
	put32(uintptr(colAddr+8), 0)                                   // constructorDisp
	put32(uintptr(colAddr+12), uint32(int32(int64(tdAddr)-base)))  // ibo_td
	put32(uintptr(colAddr+16), uint32(int32(int64(chdAddr)-base))) // ibo_chd

	put64(uintptr(vftAddr-8), uint64(colAddr))
	put64(uintptr(vftAddr), uint64(textStart)) // first virtual function points into .text

	// --- .text layout ---
	// the lea/mov pattern at textStart+0x10: lea rax,[rip+disp32] ; mov [rax],rax
	// disp32 chosen so that vft_addr = P + 7 + disp32 == vftAddr.
	p := uintptr(textStart + 0x10)
	disp32 := int32(int64(vftAddr) - int64(p+7))
	data[p-base+0] = 0x48
	data[p-base+1] = 0x8D
	data[p-base+2] = 0x05
	binary.LittleEndian.PutUint32(data[p-base+3:], uint32(disp32))
	data[p-base+7] = 0x48
	data[p-base+8] = 0x89
	data[p-base+9] = 0x00

	return &layout{base: base, data: data, textStart: textStart, rdataStart: rdataStart}
}

func (l *layout) imageMap(t *testing.T) *image.ImageMap {
	t.Helper()
	// image.Parse isn't used here: constructing an ImageMap directly
	// through a synthetic section list keeps this fixture independent of
	// image package internals. Sections cover generous ranges so every
	// fabricated address above resolves.
	secs := []image.Section{
		{Name: ".text", VirtualSize: 0x2000, Start: image.FromAbs(l.base, l.base+0x1000), End: image.FromAbs(l.base, l.base+0x3000)},
		{Name: ".rdata", VirtualSize: 0x2000, Start: image.FromAbs(l.base, l.base+0x3000), End: image.FromAbs(l.base, l.base+0x5000)},
	}
	m, err := image.Parse(l.base, uint32(len(l.data)), minimalPEFor(l.base, len(l.data), secs))
	if err != nil {
		t.Fatalf("building fixture ImageMap: %v", err)
	}
	return m
}

// minimalPEFor builds just enough of an MZ/PE header + section table for
// image.Parse to recover the given sections; the rest of the data buffer
// (already populated by newLayout) is left untouched.
func minimalPEFor(base uintptr, size int, secs []image.Section) []byte {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:], 0x5A4D)
	const peOff = 0x80
	binary.LittleEndian.PutUint32(buf[0x3C:], peOff)
	binary.LittleEndian.PutUint32(buf[peOff:], 0x00004550)
	const optionalHeaderSize = 0xF0
	binary.LittleEndian.PutUint16(buf[peOff+0x06:], uint16(len(secs)))
	binary.LittleEndian.PutUint16(buf[peOff+0x14:], optionalHeaderSize)

	sectionTable := peOff + 0x18 + optionalHeaderSize
	for i, s := range secs {
		hdr := sectionTable + i*40
		copy(buf[hdr:hdr+8], s.Name)
		binary.LittleEndian.PutUint32(buf[hdr+0x08:], s.VirtualSize)
		binary.LittleEndian.PutUint32(buf[hdr+0x0C:], uint32(s.Start))
	}
	return buf
}

func TestScanFindsSeededClass(t *testing.T) {
	l := newLayout(t)
	img := l.imageMap(t)
	d := &stubDemangler{}

	scanner := NewScanner(img, l.data, d)
	idx, err := scanner.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if idx.Len() != 1 {
		t.Fatalf("expected exactly 1 entry, got %d", idx.Len())
	}

	rec, ok := idx.Get("Foo")
	if !ok {
		t.Fatalf("expected class %q to be indexed", "Foo")
	}
	if rec.VftAddr != l.rdataStart+0x140 {
		t.Errorf("unexpected VftAddr: got %#x", rec.VftAddr)
	}
}

func TestScanRejectsBadSignature(t *testing.T) {
	l := newLayout(t)
	// corrupt the COL signature so every candidate fails step 1 of 4.2-V.
	binary.LittleEndian.PutUint32(l.data[l.rdataStart+0x100-l.base:], 0)

	img := l.imageMap(t)
	d := &stubDemangler{}
	scanner := NewScanner(img, l.data, d)
	idx, err := scanner.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected 0 entries with a corrupted signature, got %d", idx.Len())
	}
}

// TestWindowMatchersAgree checks windowMatchesWide's 8-byte-word compare
// against windowMatchesScalar's byte-by-byte one for a handful of windows,
// including the exact pattern, a masked-off byte perturbed, and a
// significant-byte perturbed. hasSSE2 selects between the two at scan
// time; both must classify every window identically or the fast path
// would silently change scan results on SSE2 hardware.
func TestWindowMatchersAgree(t *testing.T) {
	base := make([]byte, 16)
	copy(base, patternBytes[:])
	// clear the disp32 and trailing mask-exempt bytes patternMask leaves
	// unconstrained so this fixture is a genuine full-mask match.
	for i := range base {
		base[i] &= patternMask[i]
	}

	perturbMasked := append([]byte(nil), base...)
	perturbMasked[3] ^= 0xFF // disp32 byte, unconstrained by patternMask

	perturbSignificant := append([]byte(nil), base...)
	perturbSignificant[0] ^= 0x01 // low bit of the lea REX prefix, constrained by patternMask

	cases := []struct {
		name   string
		window []byte
	}{
		{"exact", base},
		{"masked-byte-changed", perturbMasked},
		{"significant-byte-changed", perturbSignificant},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			scalar := windowMatchesScalar(c.window)
			wide := windowMatchesWide(c.window)
			if scalar != wide {
				t.Errorf("windowMatchesScalar=%v windowMatchesWide=%v disagree on %x", scalar, wide, c.window)
			}
		})
	}
}

func TestScanInitFailedWithoutSections(t *testing.T) {
	secs := []image.Section{{Name: ".rdata"}}
	buf := minimalPEFor(0x140000000, 0x1000, secs)
	img, err := image.Parse(0x140000000, uint32(len(buf)), buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scanner := NewScanner(img, buf, &stubDemangler{})
	if _, err := scanner.Scan(); err != ErrScanInitFailed {
		t.Fatalf("expected ErrScanInitFailed, got %v", err)
	}
}

package rtti

import (
	"encoding/binary"

	"github.com/Dasaav-dsv/RTTIHook/pkg/image"
	"github.com/klauspost/cpuid/v2"
)

// Demangler turns a decorated TypeDescriptor name into a plain class name.
// An empty result with a nil error means the name could not be decoded and
// the candidate should be rejected, mirroring capability.Capability's
// Demangle contract without importing that package from here.
type Demangler interface {
	Demangle(mangled string) (string, error)
}

// Scanner walks one mapped image looking for Microsoft C++ RTTI records.
type Scanner struct {
	img       *image.ImageMap
	data      []byte
	demangler Demangler
}

// NewScanner builds a Scanner over data, a byte view of the image mapped
// at img.Base() spanning at least img.Size() bytes.
func NewScanner(img *image.ImageMap, data []byte, demangler Demangler) *Scanner {
	return &Scanner{img: img, data: data, demangler: demangler}
}

func (s *Scanner) offsetOf(addr uintptr) (int, bool) {
	off := int64(addr) - int64(s.img.Base())
	if off < 0 || off >= int64(len(s.data)) {
		return 0, false
	}
	return int(off), true
}

func (s *Scanner) u32(addr uintptr) (uint32, bool) {
	off, ok := s.offsetOf(addr)
	if !ok || off+4 > len(s.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(s.data[off:]), true
}

func (s *Scanner) i32(addr uintptr) (int32, bool) {
	v, ok := s.u32(addr)
	return int32(v), ok
}

func (s *Scanner) uptr(addr uintptr) (uintptr, bool) {
	off, ok := s.offsetOf(addr)
	if !ok || off+8 > len(s.data) {
		return 0, false
	}
	return uintptr(binary.LittleEndian.Uint64(s.data[off:])), true
}

func (s *Scanner) cstring(addr uintptr, maxLen int) (string, bool) {
	off, ok := s.offsetOf(addr)
	if !ok {
		return "", false
	}
	end := off
	limit := off + maxLen
	if limit > len(s.data) {
		limit = len(s.data)
	}
	for end < limit && s.data[end] != 0 {
		end++
	}
	if end == limit {
		return "", false
	}
	return string(s.data[off:end]), true
}

func (s *Scanner) inSection(addr uintptr, name string) bool {
	off := image.FromAbs(s.img.Base(), addr)
	for _, sec := range s.img.SectionsByName(name) {
		if sec.Contains(off) {
			return true
		}
	}
	return false
}

func (s *Scanner) dataLikeSection(addr uintptr) bool {
	return s.inSection(addr, ".data") || s.inSection(addr, ".rdata")
}

// Scan runs strategy B (mandatory) over every .rdata section and strategy
// A (should) over every .text section, merging both into one Index.
func (s *Scanner) Scan() (*Index, error) {
	if len(s.img.SectionsByName(".text")) == 0 || len(s.img.SectionsByName(".rdata")) == 0 {
		return nil, ErrScanInitFailed
	}

	idx := &Index{byName: map[string]Record{}}

	s.scanRdataSweep(idx)
	s.scanTextPattern(idx)

	return idx, nil
}

// --- Strategy B: .rdata pointer sweep ---

func (s *Scanner) scanRdataSweep(idx *Index) {
	base := s.img.Base()
	for _, sec := range s.img.SectionsByName(".rdata") {
		start := sec.Start.Abs(base)
		end := sec.End.Abs(base)
		for slot := start; slot+8 <= end; slot += 8 {
			col, ok := s.uptr(slot)
			if !ok || col == 0 || !s.inSection(col, ".rdata") {
				continue
			}
			firstVfunc, ok := s.uptr(slot + 8)
			if !ok || !s.inSection(firstVfunc, ".text") {
				continue
			}
			s.validateCandidate(idx, col, slot+8)
		}
	}
}

// --- Strategy A: constructor instruction pattern scan (.text) ---

var patternBytes = [16]byte{
	0x48, 0x8D, 0x05, 0x00, 0x00, 0x00, 0x00,
	0x48, 0x89, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var patternMask = [16]byte{
	0b11111011, 0xFF, 0b11000111, 0x00, 0x00, 0x00, 0x00,
	0b11111010, 0xFF, 0b11000000,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var (
	patternWord0 = binary.LittleEndian.Uint64(patternBytes[0:8])
	patternWord1 = binary.LittleEndian.Uint64(patternBytes[8:16])
	maskWord0    = binary.LittleEndian.Uint64(patternMask[0:8])
	maskWord1    = binary.LittleEndian.Uint64(patternMask[8:16])
)

// windowMatcher is the shape both compare strategies below share, so
// scanTextPattern can pick one once per scan instead of branching per
// window.
type windowMatcher func(window []byte) bool

// windowMatchesScalar compares a 16-byte window against patternBytes under
// patternMask one byte at a time: XOR against the pattern, AND with the
// mask, reject on the first nonzero lane.
func windowMatchesScalar(window []byte) bool {
	for i := range patternBytes {
		if window[i]&patternMask[i] != patternBytes[i]&patternMask[i] {
			return false
		}
	}
	return true
}

// windowMatchesWide does the same masked comparison two 8-byte words at a
// time instead of sixteen single-byte ones — the general-purpose-register
// analogue of the SSE2 PCMPEQB-and-PMOVMSKB sequence a real intrinsics
// build would reach for, gated on the same feature check.
func windowMatchesWide(window []byte) bool {
	w0 := binary.LittleEndian.Uint64(window[0:8])
	w1 := binary.LittleEndian.Uint64(window[8:16])
	return (w0^patternWord0)&maskWord0 == 0 && (w1^patternWord1)&maskWord1 == 0
}

// consistencyOK applies the three post-match register-agreement checks
// spec'd for the lea/mov instruction pair.
func consistencyOK(window []byte) bool {
	movModRM := window[9]
	mod := movModRM >> 6
	rm := movModRM & 0x7
	if mod == 0 && rm == 5 {
		return false // RIP-relative degenerate mov
	}
	if rm == 4 {
		return false // SIB byte present
	}
	leaRex := window[0]
	movRex := window[7]
	if leaRex&0x04 != movRex&0x04 {
		return false // REX.R disagreement
	}
	leaReg := (window[2] >> 3) & 0x7
	movReg := (movModRM >> 3) & 0x7
	return leaReg == movReg
}

// hasSSE2 picks scanTextPattern's compare strategy: windowMatchesWide on a
// CPU that reports SSE2 (every amd64 target in practice, but checked
// rather than assumed), windowMatchesScalar otherwise. Both must agree on
// every input — the wide path is a speed, not correctness, choice between
// two already-equivalent comparisons.
func hasSSE2() bool {
	return cpuid.CPU.Supports(cpuid.SSE2)
}

func (s *Scanner) scanTextPattern(idx *Index) {
	matches := windowMatcher(windowMatchesScalar)
	if hasSSE2() {
		matches = windowMatchesWide
	}

	base := s.img.Base()
	for _, sec := range s.img.SectionsByName(".text") {
		start := sec.Start.Abs(base)
		end := sec.End.Abs(base)
		startOff, ok := s.offsetOf(start)
		if !ok {
			continue
		}
		endOff, ok := s.offsetOf(end)
		if !ok || endOff > len(s.data) {
			endOff = len(s.data)
		}

		region := s.data[startOff:endOff]
		for p := 0; p+16 <= len(region); p++ {
			window := region[p : p+16]
			if !matches(window) {
				continue
			}
			if !consistencyOK(window) {
				continue
			}

			addr := start + uintptr(p)
			disp32, ok := s.i32(addr + 3)
			if !ok {
				continue
			}
			vftAddr := addr + 7 + uintptr(disp32)

			colPtr, ok := s.uptr(vftAddr - 8)
			if !ok || colPtr == 0 || !s.inSection(colPtr, ".rdata") {
				continue
			}

			s.validateCandidate(idx, colPtr, vftAddr)
		}
	}
}

// --- 4.2-V validation and record construction ---

func (s *Scanner) validateCandidate(idx *Index, colAddr, vftAddr uintptr) {
	sig, ok := s.u32(colAddr)
	if !ok || sig != 1 {
		return
	}
	iboTD, ok := s.i32(colAddr + 12)
	if !ok {
		return
	}
	iboCHD, ok := s.i32(colAddr + 16)
	if !ok {
		return
	}

	base := s.img.Base()
	tdAddr := image.IBO32(iboTD).Abs(base)
	chdAddr := image.IBO32(iboCHD).Abs(base)

	if !s.dataLikeSection(tdAddr) {
		return
	}
	if !s.inSection(chdAddr, ".rdata") {
		return
	}

	if _, ok := s.u32(chdAddr + 8); !ok {
		return
	}
	iboBcdArray, ok := s.i32(chdAddr + 12)
	if !ok {
		return
	}
	bcdArrayAddr := image.IBO32(iboBcdArray).Abs(base)
	if !s.inSection(bcdArrayAddr, ".rdata") {
		return
	}
	firstBcdIBO, ok := s.i32(bcdArrayAddr)
	if !ok {
		return
	}
	bcdAddr := image.IBO32(firstBcdIBO).Abs(base)

	mangled, ok := s.cstring(tdAddr+16, 512)
	if !ok {
		return
	}
	if len(mangled) > 0 && mangled[0] == '.' {
		mangled = mangled[1:]
	}
	if mangled == "" {
		return
	}

	name, err := s.demangler.Demangle(mangled)
	if err != nil || name == "" {
		return
	}

	idx.insert(Record{
		VftAddr: vftAddr,
		ColAddr: colAddr,
		TdAddr:  tdAddr,
		ChdAddr: chdAddr,
		BcdAddr: bcdAddr,
		Name:    name,
	})
}

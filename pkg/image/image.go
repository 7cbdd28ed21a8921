// Package image reads just enough of a loaded PE image's section table to
// answer "what section, if any, owns this image-base-relative offset" —
// nothing else about the image is modeled.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrNotAnImage is returned when the MZ or PE\0\0 signature is missing.
var ErrNotAnImage = errors.New("image: missing MZ/PE signature")

// ErrTruncated is returned when the buffer is too short to hold a field
// Parse needs to read next.
var ErrTruncated = errors.New("image: buffer truncated")

// IBO32 is a signed, 32-bit, image-base-relative offset: `base + IBO32`
// gives an absolute address, same arithmetic whether the offset is
// positive or negative.
type IBO32 int32

// Abs resolves the offset against an absolute module base.
func (o IBO32) Abs(base uintptr) uintptr {
	return uintptr(int64(base) + int64(o))
}

// FromAbs computes the offset of an absolute address from base.
func FromAbs(base, addr uintptr) IBO32 {
	return IBO32(int64(addr) - int64(base))
}

// Section is one entry of the PE section table, canonicalized: name
// trimmed of trailing NULs, end derived from start+virtual_size so the
// invariant can never drift out of sync with the fields it was built from.
type Section struct {
	Name        string
	VirtualSize uint32
	Start       IBO32
	End         IBO32
}

// Contains reports whether an image-base-relative offset falls in
// [Start, End).
func (s Section) Contains(off IBO32) bool {
	return off >= s.Start && off < s.End
}

// ImageMap is the ordered section table of one loaded module. It never
// changes after Parse returns, so it is safe to share across goroutines
// without further synchronization.
type ImageMap struct {
	base     uintptr
	size     uint32
	sections []Section
}

// Base returns the module's load address.
func (m *ImageMap) Base() uintptr { return m.base }

// Size returns the module's mapped size in bytes.
func (m *ImageMap) Size() uint32 { return m.size }

// Sections returns every section in on-disk order.
func (m *ImageMap) Sections() []Section {
	out := make([]Section, len(m.sections))
	copy(out, m.sections)
	return out
}

// SectionsByName returns every section sharing the given name, in on-disk
// order; a PE can legally repeat a section name.
func (m *ImageMap) SectionsByName(name string) []Section {
	var out []Section
	for _, s := range m.sections {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// ContainsIBO reports whether off falls inside any known section.
func (m *ImageMap) ContainsIBO(off IBO32) bool {
	_, ok := m.SectionOf(off)
	return ok
}

// SectionOf returns the section owning an image-base-relative offset, if
// any.
func (m *ImageMap) SectionOf(off IBO32) (Section, bool) {
	for _, s := range m.sections {
		if s.Contains(off) {
			return s, true
		}
	}
	return Section{}, false
}

// ContainsAddr reports whether an absolute address falls inside any known
// section of this image.
func (m *ImageMap) ContainsAddr(addr uintptr) bool {
	return m.ContainsIBO(FromAbs(m.base, addr))
}

// reader is a view of the mapped image bytes at base, sized to the module's
// reported length; every offset Parse reads is checked against it before
// use so a malformed or truncated header cannot walk off the end.
type reader struct {
	data []byte
}

func (r reader) u16(off int) (uint16, error) {
	if off < 0 || off+2 > len(r.data) {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint16(r.data[off:]), nil
}

func (r reader) u32(off int) (uint32, error) {
	if off < 0 || off+4 > len(r.data) {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

func (r reader) i32(off int) (int32, error) {
	v, err := r.u32(off)
	return int32(v), err
}

func (r reader) bytes(off, n int) ([]byte, error) {
	if off < 0 || off+n > len(r.data) {
		return nil, ErrTruncated
	}
	return r.data[off : off+n], nil
}

// Parse reads the section table of the image mapped at [base, base+size)
// in the current process and builds an ImageMap from it. data must be a
// []byte view over that same range (callers typically build one with
// unsafe.Slice over the module base returned by a capability).
func Parse(base uintptr, size uint32, data []byte) (*ImageMap, error) {
	r := reader{data: data}

	mz, err := r.u16(0)
	if err != nil {
		return nil, fmt.Errorf("image: reading MZ signature: %w", err)
	}
	if mz != 0x5A4D { // "MZ"
		return nil, fmt.Errorf("%w: bad MZ signature", ErrNotAnImage)
	}

	peOffI, err := r.i32(0x3C)
	if err != nil {
		return nil, fmt.Errorf("image: reading e_lfanew: %w", err)
	}
	peOff := int(peOffI)

	peSig, err := r.u32(peOff)
	if err != nil {
		return nil, fmt.Errorf("image: reading PE signature: %w", err)
	}
	if peSig != 0x00004550 { // "PE\0\0"
		return nil, fmt.Errorf("%w: bad PE signature", ErrNotAnImage)
	}

	sectionCount, err := r.u16(peOff + 0x06)
	if err != nil {
		return nil, fmt.Errorf("image: reading section count: %w", err)
	}
	optionalHeaderSize, err := r.u16(peOff + 0x14)
	if err != nil {
		return nil, fmt.Errorf("image: reading optional header size: %w", err)
	}
	sectionTable := peOff + 0x18 + int(optionalHeaderSize)

	sections := make([]Section, 0, sectionCount)
	for i := 0; i < int(sectionCount); i++ {
		hdr := sectionTable + i*40

		nameBytes, err := r.bytes(hdr, 8)
		if err != nil {
			return nil, fmt.Errorf("image: reading section %d name: %w", i, err)
		}
		name := strings.TrimRight(string(nameBytes), "\x00")

		virtualSize, err := r.u32(hdr + 0x08)
		if err != nil {
			return nil, fmt.Errorf("image: reading section %d virtual size: %w", i, err)
		}
		virtualAddr, err := r.u32(hdr + 0x0C)
		if err != nil {
			return nil, fmt.Errorf("image: reading section %d virtual address: %w", i, err)
		}

		start := IBO32(virtualAddr)
		sections = append(sections, Section{
			Name:        name,
			VirtualSize: virtualSize,
			Start:       start,
			End:         start + IBO32(virtualSize),
		})
	}

	return &ImageMap{base: base, size: size, sections: sections}, nil
}

package image

import (
	"bytes"
	"encoding/binary"
	"testing"

	bpe "github.com/Binject/debug/pe"
)

// buildImage assembles a minimal synthetic PE byte buffer with an MZ
// header, a PE\0\0 signature at peOff, and one 40-byte section header per
// entry in sections. Only the fields this package's Parse and
// Binject/debug/pe both read are populated; everything else is left zero.
func buildImage(t *testing.T, size int, peOff int, sections []Section) []byte {
	t.Helper()
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:], 0x5A4D) // "MZ"
	binary.LittleEndian.PutUint32(buf[0x3C:], uint32(peOff))

	binary.LittleEndian.PutUint32(buf[peOff:], 0x00004550) // "PE\0\0"

	const optionalHeaderSize = 0xF0 // PE32+ optional header size
	binary.LittleEndian.PutUint16(buf[peOff+0x04:], 0x8664) // IMAGE_FILE_MACHINE_AMD64
	binary.LittleEndian.PutUint16(buf[peOff+0x06:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(buf[peOff+0x14:], optionalHeaderSize)

	optHdr := peOff + 0x18
	binary.LittleEndian.PutUint16(buf[optHdr:], 0x20B) // PE32+ magic
	// SizeOfImage lives at a fixed offset within the PE32+ optional header;
	// Binject's parser wants a plausible value, not zero.
	binary.LittleEndian.PutUint32(buf[optHdr+0x38:], uint32(size))
	binary.LittleEndian.PutUint16(buf[peOff+0x10:], optionalHeaderSize) // COFF NumberOfSymbols (+0x10); PointerToSymbolTable stays 0

	sectionTable := peOff + 0x18 + optionalHeaderSize
	for i, s := range sections {
		hdr := sectionTable + i*40
		copy(buf[hdr:hdr+8], s.Name)
		binary.LittleEndian.PutUint32(buf[hdr+0x08:], s.VirtualSize)
		binary.LittleEndian.PutUint32(buf[hdr+0x0C:], uint32(s.Start))
		// PointerToRawData / SizeOfRawData: point within the buffer so
		// Binject's reader doesn't choke reading section bytes.
		binary.LittleEndian.PutUint32(buf[hdr+0x10:], 0)
		binary.LittleEndian.PutUint32(buf[hdr+0x14:], 0)
	}
	return buf
}

func TestParseTrivialImage(t *testing.T) {
	// Seed scenario 1: 0x400-byte buffer, MZ@0, PE signature@0x80, one
	// .text section claiming virtual_size=0x1000, virtual_addr=0x1000.
	const peOff = 0x80
	buf := buildImage(t, 0x400, peOff, []Section{
		{Name: ".text", VirtualSize: 0x1000, Start: 0x1000},
	})

	m, err := Parse(0x140000000, uint32(len(buf)), buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	secs := m.Sections()
	if len(secs) != 1 {
		t.Fatalf("expected 1 section, got %d", len(secs))
	}
	if secs[0].Name != ".text" {
		t.Errorf("expected name .text, got %q", secs[0].Name)
	}

	if !m.ContainsIBO(0x1500) {
		t.Errorf("expected ContainsIBO(0x1500) == true")
	}
	if m.ContainsIBO(0x2001) {
		t.Errorf("expected ContainsIBO(0x2001) == false")
	}
}

func TestParseRejectsBadSignatures(t *testing.T) {
	buf := make([]byte, 0x400)
	if _, err := Parse(0, uint32(len(buf)), buf); err == nil {
		t.Fatalf("expected ErrNotAnImage for an all-zero buffer")
	}
}

func TestParseTruncated(t *testing.T) {
	buf := make([]byte, 4)
	// a valid MZ signature gets Parse past the first check, so the failure
	// comes from reading e_lfanew at 0x3C beyond the 4-byte buffer.
	binary.LittleEndian.PutUint16(buf, 0x5A4D)
	if _, err := Parse(0, uint32(len(buf)), buf); err == nil {
		t.Fatalf("expected an error for a truncated buffer")
	}
}

// TestParseAgreesWithBinject cross-validates the manual-offset parser
// against an independent implementation instead of only checking
// self-consistency: both must agree on section names and virtual ranges
// for the same synthetic image.
func TestParseAgreesWithBinject(t *testing.T) {
	const peOff = 0x80
	want := []Section{
		{Name: ".text", VirtualSize: 0x1000, Start: 0x1000},
		{Name: ".rdata", VirtualSize: 0x2000, Start: 0x2000},
	}
	buf := buildImage(t, 0x1000, peOff, want)

	m, err := Parse(0x140000000, uint32(len(buf)), buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	bf, err := bpe.NewFile(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Binject/debug/pe.NewFile: %v", err)
	}

	got := m.Sections()
	if len(got) != len(bf.Sections) {
		t.Fatalf("section count mismatch: image.Parse=%d Binject=%d", len(got), len(bf.Sections))
	}
	for i, s := range got {
		bs := bf.Sections[i]
		wantName := want[i].Name
		if s.Name != wantName || bs.Name != wantName {
			t.Errorf("section %d name mismatch: image=%q binject=%q want=%q", i, s.Name, bs.Name, wantName)
		}
		if uint32(s.Start) != bs.VirtualAddress {
			t.Errorf("section %d start mismatch: image=%#x binject=%#x", i, uint32(s.Start), bs.VirtualAddress)
		}
		if s.VirtualSize != bs.VirtualSize {
			t.Errorf("section %d size mismatch: image=%#x binject=%#x", i, s.VirtualSize, bs.VirtualSize)
		}
	}
}

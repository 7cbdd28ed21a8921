package hook

// Context is the register-save area a context-style trampoline fills in
// before calling the user callback. Field order is load-bearing: every
// offset here is baked as an immediate displacement into the machine code
// in template.go, so reordering or resizing a field corrupts every
// context-style template silently.
type Context struct {
	RAX, RBX, RCX, RDX uint64
	RSP, RBP, RSI, RDI uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// XMM holds one 32-byte slot per XMM/YMM register (xmm0-xmm15); only
	// the low 16 bytes are written by the movaps-based templates, the rest
	// mirrors the "imm256" padding the original assembly reserves for a
	// future AVX widening. The 32-byte stride is load-bearing: template.go's
	// vectorcall variants address this field at +0x80, +0xA0, +0xC0, ...,
	// one imm256 apart, not one xmm (16 bytes) apart.
	XMM [16][8]uint32
}

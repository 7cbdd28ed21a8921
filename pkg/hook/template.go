package hook

// fieldRef names a HookRecord header field that a trampoline body reaches
// by RIP-relative indirection. The installer patches one disp32 per
// reference so it resolves to the field's address in the freshly allocated
// record, no matter where that allocation landed.
type fieldRef int

const (
	refContext fieldRef = iota
	refFnNew
	refFnHooked
	refExtra
)

// patchSite is a single disp32 operand inside a Template's Body that the
// installer must rewrite to an absolute field address at install time.
// offset is the byte index, within Body, of the 4-byte displacement field
// immediately preceding the instruction boundary it is relative to.
type patchSite struct {
	offset int
	field  fieldRef
}

// Template models a trampoline shape as a value, per the chosen fix for the
// "sizeof assumed identical across variants" pitfall: every cross-reference
// into the header lives in the template as a patch site, resolved per
// install. The header itself is the same fixed headerSize prefix (record.go)
// for every template.
type Template struct {
	Name        string
	Body        []byte
	patches     []patchSite
	UsesContext bool
}

func entryHookVFT() Template {
	return Template{
		Name: "entry",
		Body: []byte{
			0x48, 0x8D, 0x44, 0x24, 0xA0, // lea    rax,[rsp-0x60]
			0x24, 0xF0, // and    al,0xF0
			0x0F, 0x29, 0x40, 0x50, // movaps [rax+0x50],xmm0
			0x0F, 0x29, 0x48, 0x40, // movaps [rax+0x40],xmm1
			0x0F, 0x29, 0x50, 0x30, // movaps [rax+0x30],xmm2
			0x0F, 0x29, 0x58, 0x20, // movaps [rax+0x20],xmm3
			0x0F, 0x29, 0x60, 0x10, // movaps [rax+0x10],xmm4
			0x0F, 0x29, 0x28, // movaps [rax],xmm5
			0x48, 0x89, 0x60, 0xF0, // mov    [rax-0x10],rsp
			0x48, 0x89, 0x48, 0xE8, // mov    [rax-0x18],rcx
			0x48, 0x89, 0x50, 0xE0, // mov    [rax-0x20],rdx
			0x4C, 0x89, 0x40, 0xD8, // mov    [rax-0x28],r8
			0x4C, 0x89, 0x48, 0xD0, // mov    [rax-0x30],r9
			0x48, 0x8D, 0x60, 0xB0, // lea    rsp,[rax-0x50]
			0xFF, 0x15, 0xAC, 0xFF, 0xFF, 0xFF, // call   [fnNew]
			0x48, 0x8D, 0x44, 0x24, 0x50, // lea    rax,[rsp+0x50]
			0x4C, 0x8B, 0x48, 0xD0, // mov    r9,[rax-0x30]
			0x4C, 0x8B, 0x40, 0xD8, // mov    r8,[rax-0x28]
			0x48, 0x8B, 0x50, 0xE0, // mov    rdx,[rax-0x20]
			0x48, 0x8B, 0x48, 0xE8, // mov    rcx,[rax-0x18]
			0x0F, 0x28, 0x28, // movaps xmm5,[rax]
			0x0F, 0x28, 0x60, 0x10, // movaps xmm4,[rax+0x10]
			0x0F, 0x28, 0x58, 0x20, // movaps xmm3,[rax+0x20]
			0x0F, 0x28, 0x50, 0x30, // movaps xmm2,[rax+0x30]
			0x0F, 0x28, 0x48, 0x40, // movaps xmm1,[rax+0x40]
			0x0F, 0x28, 0x40, 0x50, // movaps xmm0,[rax+0x50]
			0x48, 0x8B, 0x60, 0xF0, // mov    rsp,[rax-0x10]
			0xFF, 0x25, 0x7E, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
		},
		patches: []patchSite{
			{offset: 56, field: refFnNew},
			{offset: 110, field: refFnHooked},
		},
	}
}

func entryHook() Template {
	return Template{
		Name: "entry-context",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x49, 0x8D, 0x42, 0x54, // lea    rax,[r10+0x54]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0xBC, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
			0x4C, 0x8B, 0x15, 0xA5, 0xFF, 0xFF, 0xFF, // mov    r10,[context]
			0x49, 0x8B, 0x4A, 0x10, // mov    rcx,[r10+0x10]
			0x49, 0x8B, 0x52, 0x18, // mov    rdx,[r10+0x18]
			0x4D, 0x8B, 0x42, 0x40, // mov    r8,[r10+0x40]
			0x4D, 0x8B, 0x4A, 0x48, // mov    r9,[r10+0x48]
			0xFF, 0x35, 0xAF, 0xFF, 0xFF, 0xFF, // push   [extra]
			0xFF, 0x25, 0xA1, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 40, field: refFnNew},
			{offset: 47, field: refContext},
			{offset: 69, field: refExtra},
			{offset: 75, field: refFnHooked},
		},
		UsesContext: true,
	}
}

func exitHook() Template {
	return Template{
		Name: "exit",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x49, 0x8D, 0x42, 0x54, // lea    rax,[r10+0x54]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0xC4, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
			0x4C, 0x8B, 0x15, 0xA5, 0xFF, 0xFF, 0xFF, // mov    r10,[context]
			0x49, 0x89, 0x02, // mov    [r10],rax
			0x49, 0x8B, 0x4A, 0x10, // mov    rcx,[r10+0x10]
			0x49, 0x8B, 0x52, 0x18, // mov    rdx,[r10+0x18]
			0x4D, 0x8B, 0x42, 0x40, // mov    r8,[r10+0x40]
			0x4D, 0x8B, 0x4A, 0x48, // mov    r9,[r10+0x48]
			0xFF, 0x15, 0x9C, 0xFF, 0xFF, 0xFF, // call   [fnNew]
			0x48, 0x8B, 0x05, 0x85, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
			0x48, 0x8B, 0x00, // mov    rax,[rax]
			0xFF, 0x25, 0x9C, 0xFF, 0xFF, 0xFF, // jmp    [extra]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 40, field: refFnHooked},
			{offset: 47, field: refContext},
			{offset: 72, field: refFnNew},
			{offset: 79, field: refContext},
			{offset: 88, field: refExtra},
		},
		UsesContext: true,
	}
}

func returnHook() Template {
	return Template{
		Name: "return",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x49, 0x8D, 0x42, 0x54, // lea    rax,[r10+0x54]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0xC4, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
			0x4C, 0x8B, 0x15, 0xA5, 0xFF, 0xFF, 0xFF, // mov    r10,[context]
			0x49, 0x8B, 0x4A, 0x10, // mov    rcx,[r10+0x10]
			0x49, 0x8B, 0x52, 0x18, // mov    rdx,[r10+0x18]
			0x4D, 0x8B, 0x42, 0x40, // mov    r8,[r10+0x40]
			0x4D, 0x8B, 0x4A, 0x48, // mov    r9,[r10+0x48]
			0xFF, 0x35, 0xAF, 0xFF, 0xFF, 0xFF, // push   [extra]
			0xFF, 0x25, 0x99, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 40, field: refFnHooked},
			{offset: 47, field: refContext},
			{offset: 69, field: refExtra},
			{offset: 75, field: refFnNew},
		},
		UsesContext: true,
	}
}

func contextHook() Template {
	body := []byte{
		0x50, // push   rax
		0x48, 0x8B, 0x05, 0xD0, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
		0x8F, 0x00, // pop    [rax]
		0x48, 0x89, 0x58, 0x08, // mov    [rax+0x08],rbx
		0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
		0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
		0x48, 0x89, 0x60, 0x20, // mov    [rax+0x20],rsp
		0x48, 0x89, 0x68, 0x28, // mov    [rax+0x28],rbp
		0x48, 0x89, 0x70, 0x30, // mov    [rax+0x30],rsi
		0x48, 0x89, 0x78, 0x38, // mov    [rax+0x38],rdi
		0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
		0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
		0x4C, 0x89, 0x50, 0x50, // mov    [rax+0x50],r10
		0x4C, 0x89, 0x58, 0x58, // mov    [rax+0x58],r11
		0x4C, 0x89, 0x60, 0x60, // mov    [rax+0x60],r12
		0x4C, 0x89, 0x68, 0x68, // mov    [rax+0x68],r13
		0x4C, 0x89, 0x70, 0x70, // mov    [rax+0x70],r14
		0x4C, 0x89, 0x78, 0x78, // mov    [rax+0x78],r15
		0x48, 0x89, 0xC1, // mov    rcx,rax
		0x48, 0x8D, 0x05, 0x11, 0x00, 0x00, 0x00, // lea    rax,[new_return]
		0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
		0x48, 0x87, 0x05, 0x9D, 0xFF, 0xFF, 0xFF, // xchg   [extra],rax
		0xFF, 0x25, 0x87, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
		0x48, 0x8B, 0x05, 0x70, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
		0x48, 0x8B, 0x58, 0x08, // mov    rbx,[rax+0x08]
		0x48, 0x8B, 0x48, 0x10, // mov    rcx,[rax+0x10]
		0x48, 0x8B, 0x50, 0x18, // mov    rdx,[rax+0x18]
		0x48, 0x8B, 0x68, 0x28, // mov    rbp,[rax+0x28]
		0x48, 0x8B, 0x70, 0x30, // mov    rsi,[rax+0x30]
		0x48, 0x8B, 0x78, 0x38, // mov    rdi,[rax+0x38]
		0x4C, 0x8B, 0x40, 0x40, // mov    r8,[rax+0x40]
		0x4C, 0x8B, 0x48, 0x48, // mov    r9,[rax+0x48]
		0x4C, 0x8B, 0x60, 0x60, // mov    r12,[rax+0x60]
		0x4C, 0x8B, 0x68, 0x68, // mov    r13,[rax+0x68]
		0x4C, 0x8B, 0x70, 0x70, // mov    r14,[rax+0x70]
		0x4C, 0x8B, 0x78, 0x78, // mov    r15,[rax+0x78]
		0xFF, 0x35, 0x5A, 0xFF, 0xFF, 0xFF, // push   [extra]
		0xFF, 0x25, 0x4C, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
	}
	// the source declares this body with 4 bytes of trailing slack
	// (asmRaw[168] against a 164-byte initializer); mirror it so the
	// allocation size matches the verbatim original, though control never
	// reaches the pad.
	body = append(body, make([]byte, 168-len(body))...)
	return Template{
		Name: "context",
		Body: body,
		patches: []patchSite{
			{offset: 4, field: refContext},
			{offset: 87, field: refExtra},
			{offset: 93, field: refFnNew},
			{offset: 100, field: refContext},
			{offset: 154, field: refExtra},
			{offset: 160, field: refFnHooked},
		},
		UsesContext: true,
	}
}

func entryHookV() Template {
	return Template{
		Name: "entry-vectorcall",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x0F, 0x29, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps [rax+0x80],xmm0
			0x0F, 0x29, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps [rax+0xA0],xmm1
			0x0F, 0x29, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps [rax+0xC0],xmm2
			0x0F, 0x29, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps [rax+0xE0],xmm3
			0x0F, 0x29, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps [rax+0x100],xmm4
			0x0F, 0x29, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps [rax+0x120],xmm5
			0x49, 0x8D, 0x42, 0x7E, // lea    rax,[r10+0x7E]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0x92, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
			0x48, 0x8B, 0x05, 0x7B, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
			0x48, 0x8B, 0x48, 0x10, // mov    rcx,[rax+0x10]
			0x48, 0x8B, 0x50, 0x18, // mov    rdx,[rax+0x18]
			0x4C, 0x8B, 0x40, 0x40, // mov    r8,[rax+0x40]
			0x4C, 0x8B, 0x48, 0x48, // mov    r9,[rax+0x48]
			0x0F, 0x28, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps xmm0,[rax+0x80]
			0x0F, 0x28, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps xmm1,[rax+0xA0]
			0x0F, 0x28, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps xmm2,[rax+0xC0]
			0x0F, 0x28, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps xmm3,[rax+0xE0]
			0x0F, 0x28, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps xmm4,[rax+0x100]
			0x0F, 0x28, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps xmm5,[rax+0x120]
			0xFF, 0x35, 0x5B, 0xFF, 0xFF, 0xFF, // push   [extra]
			0xFF, 0x25, 0x4D, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 82, field: refFnNew},
			{offset: 89, field: refContext},
			{offset: 153, field: refExtra},
			{offset: 159, field: refFnHooked},
		},
		UsesContext: true,
	}
}

func exitHookV() Template {
	return Template{
		Name: "exit-vectorcall",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x0F, 0x29, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps [rax+0x80],xmm0
			0x0F, 0x29, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps [rax+0xA0],xmm1
			0x0F, 0x29, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps [rax+0xC0],xmm2
			0x0F, 0x29, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps [rax+0xE0],xmm3
			0x0F, 0x29, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps [rax+0x100],xmm4
			0x0F, 0x29, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps [rax+0x120],xmm5
			0x49, 0x8D, 0x42, 0x7E, // lea    rax,[r10+0x7E]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0x9A, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
			0x4C, 0x8B, 0x15, 0x7B, 0xFF, 0xFF, 0xFF, // mov    r10,[context]
			0x49, 0x89, 0x02, // mov    [r10],rax
			0x49, 0x8B, 0x4A, 0x10, // mov    rcx,[r10+0x10]
			0x49, 0x8B, 0x52, 0x18, // mov    rdx,[r10+0x18]
			0x4D, 0x8B, 0x42, 0x40, // mov    r8,[r10+0x40]
			0x4D, 0x8B, 0x4A, 0x48, // mov    r9,[r10+0x48]
			0x4C, 0x89, 0xD0, // mov    rax,r10
			0x0F, 0x29, 0x80, 0x40, 0x01, 0x00, 0x00, // movaps [rax+0x140],xmm0
			0x0F, 0x29, 0x88, 0x60, 0x01, 0x00, 0x00, // movaps [rax+0x160],xmm1
			0x0F, 0x29, 0x90, 0x80, 0x01, 0x00, 0x00, // movaps [rax+0x180],xmm2
			0x0F, 0x29, 0x98, 0xA0, 0x01, 0x00, 0x00, // movaps [rax+0x1A0],xmm3
			0x0F, 0x28, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps xmm0,[rax+0x80]
			0x0F, 0x28, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps xmm1,[rax+0xA0]
			0x0F, 0x28, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps xmm2,[rax+0xC0]
			0x0F, 0x28, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps xmm3,[rax+0xE0]
			0x0F, 0x28, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps xmm4,[rax+0x100]
			0x0F, 0x28, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps xmm5,[rax+0x120]
			0xFF, 0x15, 0x45, 0xFF, 0xFF, 0xFF, // call   [fnNew]
			0x48, 0x8B, 0x05, 0x12, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
			0x0F, 0x28, 0x80, 0x40, 0x01, 0x00, 0x00, // movaps xmm0,[rax+0x140]
			0x0F, 0x28, 0x88, 0x60, 0x01, 0x00, 0x00, // movaps xmm1,[rax+0x160]
			0x0F, 0x28, 0x90, 0x80, 0x01, 0x00, 0x00, // movaps xmm2,[rax+0x180]
			0x0F, 0x28, 0x98, 0xA0, 0x01, 0x00, 0x00, // movaps xmm3,[rax+0x1A0]
			0x48, 0x8B, 0x00, // mov    rax,[rax]
			0xFF, 0x25, 0x0D, 0xFF, 0xFF, 0xFF, // jmp    [extra]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 82, field: refFnHooked},
			{offset: 89, field: refContext},
			{offset: 187, field: refFnNew},
			{offset: 194, field: refContext},
			{offset: 231, field: refExtra},
		},
		UsesContext: true,
	}
}

func returnHookV() Template {
	return Template{
		Name: "return-vectorcall",
		Body: []byte{
			0x4C, 0x8D, 0x15, 0xD1, 0xFF, 0xFF, 0xFF, // lea    r10,[context]
			0x49, 0x8B, 0x02, // mov    rax,[r10]
			0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
			0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
			0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
			0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
			0x0F, 0x29, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps [rax+0x80],xmm0
			0x0F, 0x29, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps [rax+0xA0],xmm1
			0x0F, 0x29, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps [rax+0xC0],xmm2
			0x0F, 0x29, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps [rax+0xE0],xmm3
			0x0F, 0x29, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps [rax+0x100],xmm4
			0x0F, 0x29, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps [rax+0x120],xmm5
			0x49, 0x8D, 0x42, 0x7E, // lea    rax,[r10+0x7E]
			0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
			0x49, 0x89, 0x42, 0x20, // mov    [r10+0x20],rax
			0xFF, 0x25, 0x9A, 0xFF, 0xFF, 0xFF, // jmp    [fnHooked]
			0x4C, 0x8B, 0x15, 0x7B, 0xFF, 0xFF, 0xFF, // mov    r10,[context]
			0x49, 0x89, 0x02, // mov    [r10],rax
			0x49, 0x8B, 0x4A, 0x10, // mov    rcx,[r10+0x10]
			0x49, 0x8B, 0x52, 0x18, // mov    rdx,[r10+0x18]
			0x4D, 0x8B, 0x42, 0x40, // mov    r8,[r10+0x40]
			0x4D, 0x8B, 0x4A, 0x48, // mov    r9,[r10+0x48]
			0x4C, 0x89, 0xD0, // mov    rax,r10
			0x0F, 0x28, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps xmm0,[rax+0x80]
			0x0F, 0x28, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps xmm1,[rax+0xA0]
			0x0F, 0x28, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps xmm2,[rax+0xC0]
			0x0F, 0x28, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps xmm3,[rax+0xE0]
			0x0F, 0x28, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps xmm4,[rax+0x100]
			0x0F, 0x28, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps xmm5,[rax+0x120]
			0xFF, 0x35, 0x55, 0xFF, 0xFF, 0xFF, // push   [extra]
			0xFF, 0x25, 0x3F, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
		},
		patches: []patchSite{
			{offset: 3, field: refContext},
			{offset: 82, field: refFnHooked},
			{offset: 89, field: refContext},
			{offset: 159, field: refExtra},
			{offset: 165, field: refFnNew},
		},
		UsesContext: true,
	}
}

func contextHookV() Template {
	body := []byte{
		0x50, // push   rax
		0x48, 0x8B, 0x05, 0xD0, 0xFF, 0xFF, 0xFF, // mov    rax,[context]
		0x8F, 0x00, // pop    [rax]
		0x48, 0x89, 0x58, 0x08, // mov    [rax+0x08],rbx
		0x48, 0x89, 0x48, 0x10, // mov    [rax+0x10],rcx
		0x48, 0x89, 0x50, 0x18, // mov    [rax+0x18],rdx
		0x48, 0x89, 0x60, 0x20, // mov    [rax+0x20],rsp
		0x48, 0x89, 0x68, 0x28, // mov    [rax+0x28],rbp
		0x48, 0x89, 0x70, 0x30, // mov    [rax+0x30],rsi
		0x48, 0x89, 0x78, 0x38, // mov    [rax+0x38],rdi
		0x4C, 0x89, 0x40, 0x40, // mov    [rax+0x40],r8
		0x4C, 0x89, 0x48, 0x48, // mov    [rax+0x48],r9
		0x4C, 0x89, 0x50, 0x50, // mov    [rax+0x50],r10
		0x4C, 0x89, 0x58, 0x58, // mov    [rax+0x58],r11
		0x4C, 0x89, 0x60, 0x60, // mov    [rax+0x60],r12
		0x4C, 0x89, 0x68, 0x68, // mov    [rax+0x68],r13
		0x4C, 0x89, 0x70, 0x70, // mov    [rax+0x70],r14
		0x4C, 0x89, 0x78, 0x78, // mov    [rax+0x78],r15
		0x0F, 0x29, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps [rax+0x80],xmm0
		0x0F, 0x29, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps [rax+0xA0],xmm1
		0x0F, 0x29, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps [rax+0xC0],xmm2
		0x0F, 0x29, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps [rax+0xE0],xmm3
		0x0F, 0x29, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps [rax+0x100],xmm4
		0x0F, 0x29, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps [rax+0x120],xmm5
		0x0F, 0x29, 0xB0, 0x40, 0x01, 0x00, 0x00, // movaps [rax+0x140],xmm6
		0x0F, 0x29, 0xB8, 0x60, 0x01, 0x00, 0x00, // movaps [rax+0x160],xmm7
		0x44, 0x0F, 0x29, 0x80, 0x80, 0x01, 0x00, 0x00, // movaps [rax+0x180],xmm8
		0x44, 0x0F, 0x29, 0x88, 0xA0, 0x01, 0x00, 0x00, // movaps [rax+0x1A0],xmm9
		0x44, 0x0F, 0x29, 0x90, 0xC0, 0x01, 0x00, 0x00, // movaps [rax+0x1C0],xmm10
		0x44, 0x0F, 0x29, 0x98, 0xE0, 0x01, 0x00, 0x00, // movaps [rax+0x1E0],xmm11
		0x44, 0x0F, 0x29, 0xA0, 0x00, 0x02, 0x00, 0x00, // movaps [rax+0x200],xmm12
		0x44, 0x0F, 0x29, 0xA8, 0x20, 0x02, 0x00, 0x00, // movaps [rax+0x220],xmm13
		0x44, 0x0F, 0x29, 0xB0, 0x40, 0x02, 0x00, 0x00, // movaps [rax+0x240],xmm14
		0x44, 0x0F, 0x29, 0xB8, 0x60, 0x02, 0x00, 0x00, // movaps [rax+0x260],xmm15
		0x48, 0x89, 0xC1, // mov    rcx,rax
		0x48, 0x8D, 0x05, 0x11, 0x00, 0x00, 0x00, // lea    rax,[new_return]
		0x48, 0x87, 0x04, 0x24, // xchg   [rsp],rax
		0x48, 0x87, 0x05, 0x25, 0xFF, 0xFF, 0xFF, // xchg   [extra],rax
		0xFF, 0x25, 0x0F, 0xFF, 0xFF, 0xFF, // jmp    [fnNew]
		0x48, 0x8B, 0x05, 0xF8, 0xFE, 0xFF, 0xFF, // mov    rax,[context]
		0x48, 0x8B, 0x58, 0x08, // mov    rbx,[rax+0x08]
		0x48, 0x8B, 0x48, 0x10, // mov    rcx,[rax+0x10]
		0x48, 0x8B, 0x50, 0x18, // mov    rdx,[rax+0x18]
		0x48, 0x8B, 0x68, 0x28, // mov    rbp,[rax+0x28]
		0x48, 0x8B, 0x70, 0x30, // mov    rsi,[rax+0x30]
		0x48, 0x8B, 0x78, 0x38, // mov    rdi,[rax+0x38]
		0x4C, 0x8B, 0x40, 0x40, // mov    r8,[rax+0x40]
		0x4C, 0x8B, 0x48, 0x48, // mov    r9,[rax+0x48]
		0x4C, 0x8B, 0x60, 0x60, // mov    r12,[rax+0x60]
		0x4C, 0x8B, 0x68, 0x68, // mov    r13,[rax+0x68]
		0x4C, 0x8B, 0x70, 0x70, // mov    r14,[rax+0x70]
		0x4C, 0x8B, 0x78, 0x78, // mov    r15,[rax+0x78]
		0x0F, 0x28, 0x80, 0x80, 0x00, 0x00, 0x00, // movaps xmm0,[rax+0x80]
		0x0F, 0x28, 0x88, 0xA0, 0x00, 0x00, 0x00, // movaps xmm1,[rax+0xA0]
		0x0F, 0x28, 0x90, 0xC0, 0x00, 0x00, 0x00, // movaps xmm2,[rax+0xC0]
		0x0F, 0x28, 0x98, 0xE0, 0x00, 0x00, 0x00, // movaps xmm3,[rax+0xE0]
		0x0F, 0x28, 0xA0, 0x00, 0x01, 0x00, 0x00, // movaps xmm4,[rax+0x100]
		0x0F, 0x28, 0xA8, 0x20, 0x01, 0x00, 0x00, // movaps xmm5,[rax+0x120]
		0x0F, 0x28, 0xB0, 0x40, 0x01, 0x00, 0x00, // movaps xmm6,[rax+0x140]
		0x0F, 0x28, 0xB8, 0x60, 0x01, 0x00, 0x00, // movaps xmm7,[rax+0x160]
		0x44, 0x0F, 0x28, 0x80, 0x80, 0x01, 0x00, 0x00, // movaps xmm8,[rax+0x180]
		0x44, 0x0F, 0x28, 0x88, 0xA0, 0x01, 0x00, 0x00, // movaps xmm9,[rax+0x1A0]
		0x44, 0x0F, 0x28, 0x90, 0xC0, 0x01, 0x00, 0x00, // movaps xmm10,[rax+0x1C0]
		0x44, 0x0F, 0x28, 0x98, 0xE0, 0x01, 0x00, 0x00, // movaps xmm11,[rax+0x1E0]
		0x44, 0x0F, 0x28, 0xA0, 0x00, 0x02, 0x00, 0x00, // movaps xmm12,[rax+0x200]
		0x44, 0x0F, 0x28, 0xA8, 0x20, 0x02, 0x00, 0x00, // movaps xmm13,[rax+0x220]
		0x44, 0x0F, 0x28, 0xB0, 0x40, 0x02, 0x00, 0x00, // movaps xmm14,[rax+0x240]
		0x44, 0x0F, 0x28, 0xB8, 0x60, 0x02, 0x00, 0x00, // movaps xmm15,[rax+0x260]
		0xFF, 0x35, 0x6A, 0xFE, 0xFF, 0xFF, // push   [extra]
		0xFF, 0x25, 0x5C, 0xFE, 0xFF, 0xFF, // jmp    [fnHooked]
	}
	// matches a 4-byte trailing pad present in the original 408-byte
	// declaration versus its 404-byte initializer list.
	body = append(body, make([]byte, 408-len(body))...)
	return Template{
		Name: "context-vectorcall",
		Body: body,
		patches: []patchSite{
			{offset: 4, field: refContext},
			{offset: 207, field: refExtra},
			{offset: 213, field: refFnNew},
			{offset: 220, field: refContext},
			{offset: 394, field: refExtra},
			{offset: 400, field: refFnHooked},
		},
		UsesContext: true,
	}
}

// EntryHook is the floor this package commits to: save the argument
// registers (RCX, RDX, R8, R9, XMM0-5), call the user callback, restore
// them, and jump to the
// function the hook replaced. It has no context block, so it is the
// cheapest template and the one a class that isn't vectorcall wants.
var EntryHook = entryHookVFT()

// EntryHookContext, ExitHook, ReturnHook, ContextHook, EntryHookV, ExitHookV,
// ReturnHookV and ContextHookV are the richer variants: the first three
// mirror EntryHook/ExitHook/ReturnHook but route register access through a
// heap Context the callback can inspect, the V-suffixed four add XMM0-5 (or
// XMM0-15 for Context) handling for vectorcall targets.
var (
	EntryHookContext = entryHook()
	ExitHook         = exitHook()
	ReturnHook       = returnHook()
	ContextHook      = contextHook()
	EntryHookV       = entryHookV()
	ExitHookV        = exitHookV()
	ReturnHookV      = returnHookV()
	ContextHookV     = contextHookV()
)

// Package capability defines the host-OS services the rest of this module
// needs injected rather than calling platform APIs directly: where a module
// sits in memory, how to carve out and release executable pages, how to
// flip page protection, and how to turn a mangled RTTI name into a
// readable one. pkg/rtti and pkg/hook depend only on the Capability
// interface; three concrete implementations below wire it to three
// different ways of reaching the Windows API, reusing whichever dependency
// stack fits.
package capability

// Capability is the narrow surface core packages call through. Nothing in
// pkg/image, pkg/rtti or pkg/hook imports a Windows package directly.
type Capability interface {
	// ModuleBaseAndSize returns the load address and mapped size of the
	// named module ("" means the main executable module of the calling
	// process).
	ModuleBaseAndSize(moduleName string) (base uintptr, size uint32, err error)

	// AllocExec reserves and commits a page-aligned region of read-write-
	// execute memory at least size bytes long and returns its base address.
	AllocExec(size uintptr) (uintptr, error)

	// FreeExec releases a region previously returned by AllocExec.
	FreeExec(addr uintptr) error

	// Protect changes the page protection flags of [addr, addr+length) and
	// returns the flags that were in effect beforehand.
	Protect(addr uintptr, length uintptr, newFlags uint32) (oldFlags uint32, err error)

	// Demangle turns a decorated C++ name (as stored in a TypeDescriptor)
	// into a human-readable class name. An empty result (with a nil error)
	// means the underlying API could not decode the name; callers treat
	// that the same as a rejected RTTI candidate.
	Demangle(mangled string) (string, error)
}

// Windows VirtualAlloc/VirtualProtect protection and allocation-type flags,
// shared by every Capability implementation so call sites don't each
// import golang.org/x/sys/windows just for the constants.
const (
	MemCommit  = 0x00001000
	MemReserve = 0x00002000
	MemRelease = 0x00008000

	PageReadWrite        = 0x04
	PageExecuteReadWrite = 0x40
)

// UnDecorateSymbolName flags matching the spec's demangling contract:
// name only, no argument list, no Microsoft keywords, no leading
// underscore, 32-bit decoration rules (RTTI names are always encoded this
// way regardless of process bitness).
const (
	undnameNoArguments        = 0x2000
	undnameNameOnly           = 0x1000
	undnameNoMsKeywords       = 0x0002
	undnameNoLeadingUnderscores = 0x0001
	undname32BitDecode        = 0x0800

	demangleFlags = undnameNoArguments | undnameNameOnly | undnameNoMsKeywords |
		undnameNoLeadingUnderscores | undname32BitDecode
)

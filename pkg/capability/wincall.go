package capability

import (
	"fmt"
	"unsafe"

	api "github.com/carved4/go-wincall"
)

// WincallCapability resolves every Windows API it calls through
// go-wincall (api.LoadLibraryW to load a module, api.Call for every
// exported function it invokes), the same indirect-resolution
// stack the teacher's pkg/pe uses throughout pe.go and dll.go.
type WincallCapability struct {
	dbghelp uintptr
}

// NewWincallCapability resolves dbghelp.dll once up front so Demangle does
// not pay a LoadLibraryW round trip on every call.
func NewWincallCapability() *WincallCapability {
	return &WincallCapability{dbghelp: api.LoadLibraryW("dbghelp.dll")}
}

func (c *WincallCapability) ModuleBaseAndSize(moduleName string) (uintptr, uint32, error) {
	var h uintptr
	if moduleName == "" {
		base, err := api.Call("kernel32.dll", "GetModuleHandleW", uintptr(0))
		if err != nil || base == 0 {
			return 0, 0, fmt.Errorf("[ERROR] GetModuleHandleW failed: %v", err)
		}
		h = base
	} else {
		h = api.LoadLibraryW(moduleName)
		if h == 0 {
			return 0, 0, fmt.Errorf("[ERROR] LoadLibraryW failed for %s", moduleName)
		}
	}

	var info struct {
		BaseOfDll   uintptr
		SizeOfImage uint32
		EntryPoint  uintptr
	}
	proc, err := api.Call("kernel32.dll", "GetCurrentProcess")
	if err != nil {
		return 0, 0, fmt.Errorf("[ERROR] GetCurrentProcess failed: %v", err)
	}
	_, err = api.Call("psapi.dll", "GetModuleInformation", proc, h, uintptr(unsafe.Pointer(&info)), uintptr(unsafe.Sizeof(info)))
	if err != nil {
		return 0, 0, fmt.Errorf("[ERROR] GetModuleInformation failed: %v", err)
	}
	return info.BaseOfDll, info.SizeOfImage, nil
}

func (c *WincallCapability) AllocExec(size uintptr) (uintptr, error) {
	addr, err := api.Call("kernel32.dll", "VirtualAlloc", 0, size, uintptr(MemCommit|MemReserve), uintptr(PageExecuteReadWrite))
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("[ERROR] VirtualAlloc failed: %v", err)
	}
	return addr, nil
}

func (c *WincallCapability) FreeExec(addr uintptr) error {
	_, err := api.Call("kernel32.dll", "VirtualFree", addr, uintptr(0), uintptr(MemRelease))
	if err != nil {
		return fmt.Errorf("[ERROR] VirtualFree failed: %v", err)
	}
	return nil
}

func (c *WincallCapability) Protect(addr, length uintptr, newFlags uint32) (uint32, error) {
	var oldProt uint32
	_, err := api.Call("kernel32.dll", "VirtualProtect", addr, length, uintptr(newFlags), uintptr(unsafe.Pointer(&oldProt)))
	if err != nil {
		return 0, fmt.Errorf("[ERROR] VirtualProtect failed: %v", err)
	}
	return oldProt, nil
}

func (c *WincallCapability) Demangle(mangled string) (string, error) {
	if c.dbghelp == 0 {
		return "", fmt.Errorf("[ERROR] dbghelp.dll not loaded")
	}
	in := append([]byte(mangled), 0)
	out := make([]byte, 1024)
	n, err := api.Call("dbghelp.dll", "UnDecorateSymbolName",
		uintptr(unsafe.Pointer(&in[0])),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(len(out)),
		uintptr(demangleFlags))
	if err != nil || n == 0 {
		return "", nil
	}
	return string(out[:n]), nil
}

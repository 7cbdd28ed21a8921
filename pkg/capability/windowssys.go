package capability

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsSysCapability is the plain, non-evasive implementation: every call
// goes through golang.org/x/sys/windows's typed syscall wrappers, the same
// package stavinski-winhook builds its VirtualAlloc/VirtualProtect trampoline
// allocation on. Useful for development and for targets that don't care
// about usermode hook detection, where resolving kernel32 indirectly buys
// nothing.
type WindowsSysCapability struct {
	dbghelp *windows.LazyDLL
}

func NewWindowsSysCapability() *WindowsSysCapability {
	return &WindowsSysCapability{dbghelp: windows.NewLazySystemDLL("dbghelp.dll")}
}

func (c *WindowsSysCapability) ModuleBaseAndSize(moduleName string) (uintptr, uint32, error) {
	var h windows.Handle
	var err error
	if moduleName == "" {
		err = windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &h)
	} else {
		var name *uint16
		name, err = windows.UTF16PtrFromString(moduleName)
		if err == nil {
			err = windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, name, &h)
		}
		if err != nil {
			h, err = windows.LoadLibrary(moduleName)
		}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("[ERROR] resolving module %q: %w", moduleName, err)
	}

	var info windows.ModuleInfo
	proc := windows.CurrentProcess()
	if err := windows.GetModuleInformation(proc, h, &info, uint32(unsafe.Sizeof(info))); err != nil {
		return 0, 0, fmt.Errorf("[ERROR] GetModuleInformation failed: %w", err)
	}
	return info.BaseOfDll, info.SizeOfImage, nil
}

func (c *WindowsSysCapability) AllocExec(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("[ERROR] VirtualAlloc failed: %w", err)
	}
	return addr, nil
}

func (c *WindowsSysCapability) FreeExec(addr uintptr) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("[ERROR] VirtualFree failed: %w", err)
	}
	return nil
}

func (c *WindowsSysCapability) Protect(addr, length uintptr, newFlags uint32) (uint32, error) {
	var oldProt uint32
	if err := windows.VirtualProtect(addr, length, newFlags, &oldProt); err != nil {
		return 0, fmt.Errorf("[ERROR] VirtualProtect failed: %w", err)
	}
	return oldProt, nil
}

func (c *WindowsSysCapability) Demangle(mangled string) (string, error) {
	proc := c.dbghelp.NewProc("UnDecorateSymbolName")
	in := append([]byte(mangled), 0)
	out := make([]byte, 1024)
	n, _, callErr := proc.Call(
		uintptr(unsafe.Pointer(&in[0])),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(len(out)),
		uintptr(demangleFlags),
	)
	if n == 0 {
		if callErr != nil && callErr != windows.ERROR_SUCCESS {
			return "", nil
		}
		return "", nil
	}
	return string(out[:n]), nil
}

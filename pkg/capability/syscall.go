package capability

import (
	"fmt"

	sys "github.com/carved4/go-native-syscall"
)

// SyscallCapability issues Nt* syscalls directly through go-native-syscall,
// the teacher's direct-syscall dependency used throughout dllremote.go and
// remoteload.go for exactly the page-commit/protect/write work rdataWrite
// needs. Module enumeration and demangling still go through a resolved
// kernel32.dll/dbghelp.dll handle, so this embeds a WincallCapability for
// those two methods rather than duplicating their resolution logic.
type SyscallCapability struct {
	*WincallCapability
}

func NewSyscallCapability() *SyscallCapability {
	return &SyscallCapability{WincallCapability: NewWincallCapability()}
}

const currentProcess = ^uintptr(0)

func (c *SyscallCapability) AllocExec(size uintptr) (uintptr, error) {
	var base uintptr
	region := size
	status, err := sys.NtAllocateVirtualMemory(currentProcess, &base, 0, &region, MemCommit|MemReserve, PageExecuteReadWrite)
	if err != nil || status != 0 {
		return 0, fmt.Errorf("[ERROR] NtAllocateVirtualMemory failed: status=0x%X err=%v", status, err)
	}
	return base, nil
}

func (c *SyscallCapability) FreeExec(addr uintptr) error {
	base := addr
	var region uintptr
	status, err := sys.NtFreeVirtualMemory(currentProcess, &base, &region, MemRelease)
	if err != nil || status != 0 {
		return fmt.Errorf("[ERROR] NtFreeVirtualMemory failed: status=0x%X err=%v", status, err)
	}
	return nil
}

func (c *SyscallCapability) Protect(addr, length uintptr, newFlags uint32) (uint32, error) {
	base := addr
	region := length
	var oldProt uintptr
	status, err := sys.NtProtectVirtualMemory(currentProcess, &base, &region, uintptr(newFlags), &oldProt)
	if err != nil || status != 0 {
		return 0, fmt.Errorf("[ERROR] NtProtectVirtualMemory failed: status=0x%X err=%v", status, err)
	}
	return uint32(oldProt), nil
}

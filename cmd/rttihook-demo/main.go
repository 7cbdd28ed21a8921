// Command rttihook-demo ports original_source/example/dllmain.cpp: scan the
// running process for RTTI, hook CS::PlayerIns's 20th virtual function, flip
// a bone's vertical offset and quaternion on every call, then unhook.
//
// A real injected DLL would do this from DllMain's DLL_PROCESS_ATTACH and
// reverse it on DLL_PROCESS_DETACH; a standalone exe does the same thing
// linearly for demonstration, narrating each step the way the teacher's old
// cmd/main.go did for its own pe.LoadDLL/pe.Melt walkthrough.
package main

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/Dasaav-dsv/RTTIHook/pkg/capability"
	"github.com/Dasaav-dsv/RTTIHook/pkg/hook"
	"github.com/Dasaav-dsv/RTTIHook/pkg/vfthook"
)

// chasePointer reads the pointer-sized value stored at base+offset and
// returns it as the base for the next hop. Ported as-is from dllmain.cpp's
// p(): not a good example of a pointer traversal function, it's here just
// for the sake of the demonstration.
func chasePointer(base uintptr, offset int) uintptr {
	return *(*uintptr)(unsafe.Pointer(base + uintptr(offset)))
}

// exampleHook turns the player character (and other NPCs) upside down.
// Virtual functions are thiscall by definition, so the first argument is
// always a class instance; since CS::PlayerIns is hooked, playerIns is an
// instance of that class.
func exampleHook(playerIns uintptr) uintptr {
	// this pointer goes through many structs, besides the point of this
	// demo, before reaching the struct holding root bone coordinates
	base := chasePointer(playerIns, 0x190)
	base = chasePointer(base, 0x28)
	base = chasePointer(base, 0x10)
	base = chasePointer(base, 0x30)
	base = chasePointer(base, 0x38)
	base = chasePointer(base, 0x0)

	// the offset to the root bone coordinates from the struct offset
	offset := *(*int32)(unsafe.Pointer(base + 0x54))
	rootPos := (*[8]float32)(unsafe.Pointer(base + uintptr(offset)))

	// raise the bone coordinates by 1.6 units
	rootPos[1] += 1.6

	// store quaternion components of the bone's orientation, invert Z
	// (FromSoftware operates in an XZYW coordinate system)
	qZ := rootPos[5] * -1.0
	qW := rootPos[7]

	// clear quaternion
	for i := 0; i < 4; i++ {
		rootPos[4+i] = 0.0
	}

	// write components, -Z to X and W to Y
	rootPos[4] = qZ
	rootPos[6] = qW

	return 0
}

func placeExampleHook(eng *vfthook.Engine) (*hook.HookHandle, error) {
	callback := syscall.NewCallback(exampleHook)
	return eng.Install("CS::PlayerIns", 20, callback, hook.EntryHook)
}

func removeExampleHook(h *hook.HookHandle) error {
	return h.Close()
}

func main() {
	cap := capability.NewWincallCapability()

	// scan the main executable module's RTTI. Only one Engine is needed
	// per module; it can install any number of hooks after the scan.
	eng, err := vfthook.Open(cap, "")
	if err != nil {
		fmt.Println("failed to scan process for RTTI:", err)
		return
	}
	fmt.Printf("RTTI scan recovered %d classes\n", eng.Index().Len())

	h, err := placeExampleHook(eng)
	if err != nil {
		fmt.Println("failed to place hook:", err)
		return
	}
	fmt.Println("successfully hooked CS::PlayerIns[20]")

	// leave the hook installed for a while so it can actually be hit by a
	// call to CS::PlayerIns's 20th virtual function before unhooking.
	time.Sleep(10 * time.Second)

	if err := removeExampleHook(h); err != nil {
		fmt.Println("failed to remove hook:", err)
		return
	}
	fmt.Println("successfully unhooked CS::PlayerIns[20]")
}

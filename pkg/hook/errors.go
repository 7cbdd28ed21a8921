package hook

import "errors"

// ErrAllocFailed is returned when the capability cannot carve out an
// executable page for a new trampoline. Install never partially succeeds:
// a failed allocation leaves the target VFT slot untouched.
var ErrAllocFailed = errors.New("hook: executable page allocation failed")

// ErrProtectFailed is returned when rdataWrite's VirtualProtect call fails.
// Per design, this aborts the write outright rather than retrying.
var ErrProtectFailed = errors.New("hook: page protection change failed")

// ErrNilSlot is returned when Install is given a zero VFT slot pointer.
var ErrNilSlot = errors.New("hook: nil vft slot")

// ErrNotInstalled is returned by Uninstall when the handle's record no
// longer appears in its chain (already uninstalled, or never installed).
var ErrNotInstalled = errors.New("hook: handle is not installed")

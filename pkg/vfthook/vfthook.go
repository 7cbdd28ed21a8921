// Package vfthook is the process-level convenience layer over pkg/image,
// pkg/rtti and pkg/hook: scan a loaded module once, then install hooks by
// class name instead of juggling an ImageMap, an Index and a Chain by
// hand. This mirrors what original_source/example/dllmain.cpp does around
// a single static RTTIScanner and VFTHook instance, generalized to any
// number of hooks sharing one scan.
package vfthook

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Dasaav-dsv/RTTIHook/pkg/capability"
	"github.com/Dasaav-dsv/RTTIHook/pkg/hook"
	"github.com/Dasaav-dsv/RTTIHook/pkg/image"
	"github.com/Dasaav-dsv/RTTIHook/pkg/rtti"
)

// ErrClassNotFound is returned when Install names a class the scan never
// recovered.
var ErrClassNotFound = errors.New("vfthook: class not found in RTTI index")

// Engine bundles one scanned module with the hook chain installing against
// it. The zero value is not usable; build one with Open or New.
type Engine struct {
	cap   capability.Capability
	img   *image.ImageMap
	index *rtti.Index
	chain *hook.Chain
}

// New wraps an already-built ImageMap and Index with a hook chain using
// cap for page allocation and protection. Most callers want Open instead,
// which performs the scan itself.
func New(cap capability.Capability, img *image.ImageMap, index *rtti.Index) *Engine {
	return &Engine{cap: cap, img: img, index: index, chain: hook.NewChain(cap)}
}

// Open resolves moduleName's base and size through cap, reads its mapped
// bytes directly out of this process's own address space, parses its
// section table and scans it for RTTI, then returns an Engine ready to
// install hooks by class name. moduleName == "" targets the main
// executable module, matching capability.Capability.ModuleBaseAndSize.
func Open(cap capability.Capability, moduleName string) (*Engine, error) {
	base, size, err := cap.ModuleBaseAndSize(moduleName)
	if err != nil {
		return nil, fmt.Errorf("vfthook: resolving module: %w", err)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)

	img, err := image.Parse(base, size, data)
	if err != nil {
		return nil, fmt.Errorf("vfthook: parsing image: %w", err)
	}

	scanner := rtti.NewScanner(img, data, cap)
	index, err := scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("vfthook: scanning RTTI: %w", err)
	}

	return New(cap, img, index), nil
}

// Index returns the RTTI index the Engine was built from, for callers that
// want to inspect or enumerate recovered classes directly.
func (e *Engine) Index() *rtti.Index {
	return e.index
}

// Install places fn at className's vftIndex'th virtual function table
// slot. It resolves className through the Engine's Index, then installs
// (or chains above an existing hook) exactly as Chain.Install does.
func (e *Engine) Install(className string, vftIndex uint32, fn uintptr, tmpl hook.Template) (*hook.HookHandle, error) {
	rec, ok := e.index.Get(className)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrClassNotFound, className)
	}
	slotAddr := rec.VftAddr + uintptr(vftIndex)*8
	return e.chain.Install(slotAddr, fn, tmpl)
}

// InstallRaw places fn at vftIndex'th slot of a virtual function table
// whose address is already known, bypassing RTTI lookup entirely.
func (e *Engine) InstallRaw(vftAddr uintptr, vftIndex uint32, fn uintptr, tmpl hook.Template) (*hook.HookHandle, error) {
	return e.chain.Install(vftAddr+uintptr(vftIndex)*8, fn, tmpl)
}

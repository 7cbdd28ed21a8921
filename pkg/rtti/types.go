// Package rtti scans a mapped PE image for Microsoft C++ RTTI records and
// resolves them to demangled class names, using either a constructor
// instruction-pattern scan of .text or a plain pointer sweep of .rdata.
package rtti

import "github.com/Dasaav-dsv/RTTIHook/pkg/image"

// CompleteObjectLocator is the fixed-layout x86-64 COL: 20 bytes, no
// trailing pSelf field (that variant belongs to the 32-bit ABI, out of
// scope here). Signature is always 1 on x86-64.
type CompleteObjectLocator struct {
	Signature       uint32
	Offset          uint32
	ConstructorDisp uint32
	IBOTypeDescriptor            image.IBO32
	IBOClassHierarchyDescriptor  image.IBO32
}

// TypeDescriptor holds a class's RTTI name. Name is read as a
// nul-terminated byte run following the two leading pointer-sized fields;
// its mangled form may start with a single '.' the demangler should skip.
type TypeDescriptor struct {
	VftablePtr uintptr
	Spare      uintptr
	Name       string
}

// ClassHierarchyDescriptor lists a class's base classes.
type ClassHierarchyDescriptor struct {
	Signature            uint32
	Flags                uint32
	NumBaseClasses       uint32
	IBOBaseClassArray    image.IBO32
}

// BaseClassDescriptor is one entry of a ClassHierarchyDescriptor's base
// class array.
type BaseClassDescriptor struct {
	IBOTypeDescriptor  image.IBO32
	NumContainedBases  uint32
	Displacements      [3]int32 // mdisp, pdisp, vdisp
	Attributes         uint32
	IBOClassHierarchyDescriptor image.IBO32
}

// Record is the public, resolved form of one RTTI hit: every address is
// absolute, keyed for lookup by its demangled class name.
type Record struct {
	VftAddr  uintptr
	ColAddr  uintptr
	TdAddr   uintptr
	ChdAddr  uintptr
	BcdAddr  uintptr
	Name     string
}

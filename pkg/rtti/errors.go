package rtti

import "errors"

// ErrScanInitFailed is returned when the image is missing a section a scan
// strategy requires (.text for strategy A, .rdata for both, a data-like
// section for TypeDescriptor resolution).
var ErrScanInitFailed = errors.New("rtti: scan initialization failed")

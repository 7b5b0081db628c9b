// Package core defines sentinel errors and shared frame types.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// Pre-run errors, fatal for the session
	ErrResolution = errors.New("pcapdump: interface resolution failed")
	ErrOpen       = errors.New("pcapdump: capture handle open failed")
	ErrFilter     = errors.New("pcapdump: filter compile failed")
	ErrSinkOpen   = errors.New("pcapdump: dump file open failed")

	// Per-task errors, captured into the session report
	ErrCaptureIO = errors.New("pcapdump: capture read failed")
	ErrCancelled = errors.New("pcapdump: capture cancelled")

	// Session lifecycle errors
	ErrSessionUsed = errors.New("pcapdump: session already used")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapdump: invalid configuration")
)

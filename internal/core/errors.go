// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Table outcomes (full, not found, end of table, invalid
// entry) are ordinary results handled by callers, not failures.
var (
	// Argument errors
	ErrInvalidPort   = errors.New("swctl: invalid port")
	ErrInvalidLength = errors.New("swctl: invalid frame length")

	// Forwarding database outcomes
	ErrTableFull    = errors.New("swctl: table full")
	ErrNotFound     = errors.New("swctl: entry not found")
	ErrInvalidEntry = errors.New("swctl: invalid entry")
	ErrEndOfTable   = errors.New("swctl: end of table")

	// Capability errors
	ErrUnsupported = errors.New("swctl: operation not supported")

	// Hardware errors
	ErrHardwareTimeout = errors.New("swctl: hardware did not complete")
	ErrWrongDevice     = errors.New("swctl: unexpected device identification")

	// Controller errors
	ErrNotReady = errors.New("swctl: controller not ready")
)

// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers.
var (
	// ErrNotFound reports that a remote file does not exist on the device.
	ErrNotFound = errors.New("remote file not found")
	// ErrTransfer reports any other failure while reading a remote file.
	ErrTransfer = errors.New("remote transfer failed")
	// ErrInvalidPath reports a remote database path that cannot be snapshotted.
	ErrInvalidPath = errors.New("invalid remote path")
)

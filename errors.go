package safebox

import (
	"errors"
	"os"
)

// Common storage errors. Where possible, these alias os package errors
// for compatibility with os.IsNotExist, errors.Is(err, fs.ErrNotExist), etc.
var (
	ErrNotFound = os.ErrNotExist
	ErrInvalid  = os.ErrInvalid

	// ErrIO reports that a driver write, read or delete failed.
	ErrIO = errors.New("safebox: I/O failure")

	// ErrIntegrity reports that a recomputed hash does not match the stored one.
	ErrIntegrity = errors.New("safebox: integrity mismatch")

	// ErrUnimplemented is returned by every operation in ModeHashVerifiedWithBackup.
	ErrUnimplemented = errors.New("safebox: mode not implemented")

	// ErrInvalidMode reports a mode outside the recognized set.
	ErrInvalidMode = errors.New("safebox: invalid storage mode")

	ErrNilDriver    = errors.New("safebox: driver must not be nil")
	ErrNameTooLong  = errors.New("safebox: file name too long")
	ErrNotReady     = errors.New("safebox: driver not ready")
	ErrNotSupported = errors.New("safebox: feature not supported by this driver")
)

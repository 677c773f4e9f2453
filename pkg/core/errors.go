package core

import "errors"

// Sentinel errors shared across the system. Callers match these with
// errors.Is rather than string comparison.
var (
	// ErrSubjectNotFound is returned when no subject directory or index row
	// matches the requested identifier.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrTagNotFound is returned when a DICOM tag keyword is absent from a
	// subject's metadata.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNoMeta is returned when a subject directory exists but its metadata
	// file has not been written yet. Most operations degrade gracefully.
	ErrNoMeta = errors.New("subject metadata not found")

	// ErrNoServer is returned when an operation needs a DICOM server and no
	// server address is configured.
	ErrNoServer = errors.New("no dicom server configured")

	// ErrActionNotFound is returned when a named action is not registered.
	ErrActionNotFound = errors.New("action not found")
)

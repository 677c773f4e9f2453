// Package core defines the shared language of the zfmrf system.
//
// This package contains:
//   - Domain entities (Meta, Series, Tags, SubjectRecord, ActionRun)
//   - Service interfaces (Store)
//   - Action metadata (ActionInfo) surfaced by the CLI and web UI
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core

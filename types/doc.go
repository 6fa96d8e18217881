// Package types provides unified type definitions for the StudyFlow core.
//
// It contains the shared error taxonomy, the memory record model used by
// the dual-layer memory subsystem, and the chat-turn request/response
// shapes exposed to the surrounding application. The package has no
// dependencies on other StudyFlow packages so that every layer can share
// these definitions without import cycles.
package types

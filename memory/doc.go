// Package memory provides the dual-layer memory subsystem.
//
// Memory is partitioned into two scopes: session memory, tied to one
// conversation and expired on a short horizon, and universal memory,
// tied to the user across all conversations and retained long-term or
// permanently. New records are classified by a pure lexical heuristic
// (Classify), persisted through a Store, and retrieved either by
// conversation (newest-first) or semantically through the Retriever,
// which ranks universal records by cosine similarity to the query
// embedding.
//
// Semantic retrieval is best-effort context, never a hard dependency of
// a chat turn: any embedding or store failure degrades to an empty
// result set and is logged.
package memory

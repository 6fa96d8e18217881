// Package chat implements the chat-turn API exposed to the surrounding
// application.
//
// One turn flows through three stages: the Assembler gathers memory
// context (session slice and universal semantic slice, fetched
// concurrently, each best-effort), the fallback orchestrator executes
// the completion against the tiered provider list, and the Service
// classifies and persists the finished turn as a new memory record.
// Persistence is fire-and-forget: a failure after the response has been
// produced is logged, never surfaced.
package chat

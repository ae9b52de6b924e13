// Package engine provides the core types for the opsplan operation plan engine.
//
// # Overview
//
// An OperationPlan is a reviewable, auditable unit of proposed infrastructure
// change, authored by a human or an AI assistant. Plans move through a small
// state machine:
//
//	pending ──execute──▶ executed ──▶ reverted
//	   │                    ▲
//	   ├──▶ confirmed ──────┘
//	   └──▶ failed ◀── confirmed
//
// Only pending→executed is driven by an operation (see package lifecycle);
// the other edges exist so that stores and read models can represent them.
// Status.CanTransition is the single source of truth for legal moves.
//
// # Core Domain Types
//
//   - OperationPlan: the plan record, persisted copy-on-write
//   - ResourceRef: the target, including the resourceVersion concurrency token
//   - DiffSnapshot / PatchOp: RFC6902 patch against a before snapshot
//   - Risk: scored assessment (see package risk)
//   - Audit / Timestamps: actors and lifecycle instants
//   - AuditEvent: append-only lifecycle event
//
// # Error Classification
//
// Errors carry a kind so callers can react without string matching:
//
//   - not_found: unknown plan id
//   - validation: missing or mismatched resourceVersion / idempotencyKey,
//     with the offending field and expected-vs-received values
//   - conflict: the status changed underneath the caller
//   - unavailable: the repository failed
//
// None of these are retried internally.
//
//	if engine.IsValidation(err) {
//	    // re-fetch live state and re-draft
//	}
//
// # Idempotency
//
// DeriveIdempotencyKey hashes the resource identity, action and diff so that
// identical retried drafts collide on purpose.
package engine

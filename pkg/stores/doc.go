// Package stores provides persistence for operation plans and their audit
// trail.
//
// Repository is the plan store contract. Writes are whole-record: Create
// inserts a new plan and Replace swaps a stored plan for a new version only
// if its status still equals the expected status, which makes the
// pending→executed transition a compare-and-swap. Three implementations are
// provided:
//
//   - MemoryStore: mutex-guarded maps, used by tests and the CLI default
//   - SQLiteStore: modernc SQLite with embedded golang-migrate migrations
//   - DynamoDBStore: conditional writes on the status attribute
//
// All implementations copy plans on the way in and on the way out, so
// callers never share memory with the store.
package stores

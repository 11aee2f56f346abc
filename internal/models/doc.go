// Package models defines the core domain model for MySplit.
//
// # Models
//
//   - Group: a shared-expense ledger owned by one member
//   - Member: a participant in a group, possibly awaiting approval
//   - Expense: one payment made by a member and split among members
//
// A Group is a self-contained snapshot: it carries its full member and
// expense lists and is persisted, transferred, and replaced as a whole.
// All timestamps are unix milliseconds.
//
// # Design Principles
//
//  1. Snapshots are values: mutation helpers return errors instead of
//     partially applying, and callers Clone before transforming when the
//     original must stay observable.
//  2. Relationships use ID strings, never pointers, so snapshots survive
//     JSON round-trips between the local cache and a remote backend.
//  3. JSON field names match the original wire format of the remote store
//     (`paidBy`, `splitAmong`, `imageUrl`, ...); changing them breaks
//     every already-cached snapshot.
package models

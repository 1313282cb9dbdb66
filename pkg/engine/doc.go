// Package engine implements the composable configuration document engine
// at the heart of strata.
//
// # Overview
//
// Documents are UTF-8 JSON files that may declare inheritance from a base
// document ($extends) and may splice reusable array fragments into
// list-valued properties ($include). Every read composes the document
// fresh and validates the result against the document type's schema shape
// before it is trusted:
//
//  1. Load - Parse the requested file into an untyped tree
//  2. Expand - Splice fragment includes, recursively (Expander)
//  3. Inherit - Resolve the $extends chain bottom-up and merge (Resolver)
//  4. Validate - Check the composed tree against the schema shape
//  5. Repair - Sanitize drifted settings documents (Sanitize)
//  6. Decode - Produce the caller's typed value
//
// # Core Types
//
//   - Store: the façade; reads, writes, and freshness checks per document type
//   - PathResolver: resolves directive references and enforces root containment
//   - Resolver: recursive $extends resolution with cycle detection
//   - Expander: recursive $include expansion with cycle detection
//   - EngineError: classified failures carrying path, directive, chain, and violations
//
// # Behavior Modes
//
// Every document type is bound to one of three behavior modes:
//
//   - settings: user-edited files; missing files are populated with the
//     schema default and the read fails asking for review, drifted files
//     are sanitized and healed rather than rejected
//   - state: machine-owned files; missing files are populated with the
//     schema default and returned, validation is strict
//   - output: write-only artifacts; reads are disallowed, writes skip
//     validation
//
// # Composition Rules
//
// Merging is child-wins: for a key present in both base and child, object
// values merge recursively and everything else, arrays included, is
// replaced wholesale by the child. Fragment items are spliced in file
// order, and a fragment may include further fragments. Both composition
// mechanisms detect cycles and report the full chain that produced them.
//
// Every directive reference is resolved against the referencing file's
// directory and proven to stay inside the configured root before any file
// I/O touches it.
//
// # Error Classification
//
// Failures carry an ErrorClass naming the exact condition, the offending
// file, and the directive responsible. Use the predicate helpers to
// branch on a class:
//
//	value, err := store.Read(ctx, "profiles/dark")
//	if engine.IsDefaultCreated(err) {
//	    // A default file was written; ask the user to review it.
//	}
//
// # Concurrency
//
// The engine is synchronous and holds no cross-call state. It assumes at
// most one caller mutates a given file at a time and performs no file
// locking.
package engine

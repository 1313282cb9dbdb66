// Package workspace ties the document engine to a directory tree
// described by a strata.yaml file.
//
// A workspace declares its document root, the document types that live
// under it (each with a doublestar pattern, a behavior mode, and a
// schema manifest), and the optional facilities around them: revision
// history, policy gates, CUE constraints, remotes, and telemetry.
// Opening a workspace compiles the schemas, builds one store per
// document type, and wires the history database and policy engine.
//
// The workspace also provides the cross-document operations a single
// store cannot: mapping file paths to document types, building the
// inheritance and fragment dependency graph, batch validation in
// dependency order, drift reporting, and filesystem watching.
package workspace

// Package policy provides Open Policy Agent (OPA) integration for strata.
//
// This package gates document operations on Rego policies. Every write
// that flows through a document store can be evaluated against a loaded
// policy set before it reaches disk, and generated documents can be
// checked before they are handed to a store. It includes built-in
// policies for common governance requirements and supports custom policy
// loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a pending write:
//
//	content := engine.Document{
//	    "Theme":    "dark",
//	    "Language": "en-US",
//	}
//
//	result, err := eng.EvaluateWrite(ctx, "editor", "EditorSettings",
//	    engine.ModeSettings, content, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/strata/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = eng.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. document-naming - Enforces document ID naming conventions
//  2. reserved-directives - Rejects composed content still carrying $extends or $include
//  3. state-write-guard - Warns on state overwrites in production
//  4. empty-content - Warns when a write would produce an empty document
//  5. oversized-document - Warns when a document should be split into fragments
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files. The
// evaluation input carries the operation, the document coordinates, and
// the composed content:
//
//	package custom.policies.ownership
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.operation == "write"
//	    input.context.environment == "production"
//	    not input.content.Owner
//
//	    violation := {
//	        "message": "Production documents must declare an Owner property",
//	        "severity": "error",
//	        "document": input.document_id,
//	    }
//	}
//
// Rego files may carry annotations in their leading comment block:
//
//	# Rejects documents without an owner.
//	# severity: error
//	# tags: ownership, governance
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block operations
//   - error: Issues that block operations
//   - critical: Severe issues requiring immediate attention
//
// A result is not Allowed when any violation is error or critical.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.ApplyPolicies(ctx, policies)
//	})
//
// # Performance
//
// Each policy's deny query is prepared once at compile time with OPA's
// PreparedEvalQuery and reused for every evaluation. The loader caches
// parsed files and invalidates entries when the watcher reports changes.
//
// # Context Injection
//
// Policy evaluations can include context information:
//
//   - User: Who initiated the operation
//   - Environment: Target environment (production, staging, etc.)
//   - Workspace: The workspace the operation runs in
//   - Timestamp: When the evaluation occurred
//   - Dry run: Whether this is a dry-run evaluation
//
// This context allows policies to make environment-aware decisions.
package policy

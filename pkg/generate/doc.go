// Package generate evaluates Starlark scripts that produce document
// trees.
//
// A generation script is ordinary Starlark. It must define a module-level
// dict named documents mapping document IDs to trees; everything the
// script exports ends up in the Result, with documents extracted and
// normalized so the trees carry the same value kinds as documents decoded
// from disk.
//
// # Script Contract
//
// A minimal script:
//
//	documents = {
//	    "editor": {
//	        "Theme":    "dark",
//	        "FontSize": 14,
//	    },
//	}
//
// Parameters passed to Evaluate appear as global names:
//
//	documents = {
//	    "profiles/" + user: {"Name": user, "Shell": shell},
//	}
//
// # Builtins
//
// Besides the standard Starlark universe (range, len, str, ...), scripts
// see:
//
//   - struct: starlarkstruct constructor, converted to objects on export
//   - merge(base, overlay): child-wins deep merge, recursing through
//     objects while arrays and scalars replace wholesale
//   - fragment(items): wraps a list into the {"Items": [...]} object
//     shape fragment files carry
//
// # Sandbox
//
// Scripts run on their own goroutine under a deadline. On timeout the
// interpreter is cancelled rather than abandoned. print() output is
// routed to the debug log.
package generate

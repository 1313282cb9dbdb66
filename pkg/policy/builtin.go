package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		documentNamingPolicy(),
		reservedDirectivesPolicy(),
		stateWriteGuardPolicy(),
		emptyContentPolicy(),
		oversizedDocumentPolicy(),
	}
}

// documentNamingPolicy enforces document ID naming conventions.
func documentNamingPolicy() Policy {
	return Policy{
		Name:        "document-naming",
		Description: "Enforces document ID naming conventions (lowercase, alphanumeric, limited separators)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package strata.policies.naming

import rego.v1

# Document IDs must not be empty
deny contains violation if {
	input.document_id == ""
	violation := {
		"message": "Document ID must not be empty",
		"severity": "error",
	}
}

# IDs are lowercase alphanumeric with /, ., _ and - separators
deny contains violation if {
	input.document_id != ""
	not regex.match("^[a-z0-9][a-z0-9/._-]*$", input.document_id)
	violation := {
		"message": sprintf("Document ID '%s' must be lowercase alphanumeric with '/', '.', '_' or '-' separators", [input.document_id]),
		"severity": "error",
		"document": input.document_id,
	}
}

# IDs map to file paths, keep them short
deny contains violation if {
	count(input.document_id) > 128
	violation := {
		"message": sprintf("Document ID '%s' exceeds 128 characters", [input.document_id]),
		"severity": "error",
		"document": input.document_id,
	}
}`,
	}
}

// reservedDirectivesPolicy rejects composed content that still carries
// composition directives.
func reservedDirectivesPolicy() Policy {
	return Policy{
		Name:        "reserved-directives",
		Description: "Rejects composed content that still contains $extends or $include directives",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"composition", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package strata.policies.directives

import rego.v1

reserved := {"$extends", "$include"}

# Directives must be consumed during composition, never written back out
deny contains violation if {
	walk(input.content, [_, value])
	is_object(value)
	some key in object.keys(value)
	key in reserved
	violation := {
		"message": sprintf("Composed content must not contain the '%s' directive", [key]),
		"severity": "error",
		"document": input.document_id,
	}
}`,
	}
}

// stateWriteGuardPolicy warns when state documents are overwritten in
// production environments.
func stateWriteGuardPolicy() Policy {
	return Policy{
		Name:        "state-write-guard",
		Description: "Warns when machine-owned state documents are overwritten in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"state", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package strata.policies.state

import rego.v1

# State writes in production deserve a second look
deny contains violation if {
	input.operation == "write"
	input.mode == "state"
	input.context.environment == "production"
	not input.context.dry_run
	violation := {
		"message": sprintf("State document '%s' is being overwritten in production", [input.document_id]),
		"severity": "warning",
		"document": input.document_id,
	}
}`,
	}
}

// emptyContentPolicy warns when a write would produce an empty document.
func emptyContentPolicy() Policy {
	return Policy{
		Name:        "empty-content",
		Description: "Warns when a write would produce a document with no properties",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"content"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package strata.policies.content

import rego.v1

# An empty document is usually an upstream mistake
deny contains violation if {
	input.operation == "write"
	count(object.keys(input.content)) == 0
	violation := {
		"message": sprintf("Document '%s' would be written with no properties", [input.document_id]),
		"severity": "warning",
		"document": input.document_id,
	}
}`,
	}
}

// oversizedDocumentPolicy warns when a document grows past a manageable
// size.
func oversizedDocumentPolicy() Policy {
	return Policy{
		Name:        "oversized-document",
		Description: "Warns when a document carries an unmanageable number of top-level properties",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"size", "maintainability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package strata.policies.size

import rego.v1

# Large documents should be split into fragments
deny contains violation if {
	count(object.keys(input.content)) > 256
	violation := {
		"message": sprintf("Document '%s' has over 256 top-level properties, consider splitting it into fragments", [input.document_id]),
		"severity": "warning",
		"document": input.document_id,
	}
}`,
	}
}

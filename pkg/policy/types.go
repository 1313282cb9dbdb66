package policy

import (
	"time"

	"github.com/strataconf/strata/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Document is the ID of the document that violated the policy.
	Document string `json:"document,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]any `json:"details,omitempty"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the operation is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the decision.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyInput represents the input data for policy evaluation. It is the
// document visible to Rego rules as `input`.
type PolicyInput struct {
	// Operation is the store operation being gated (e.g. "write", "generate").
	Operation string `json:"operation"`

	// DocumentID is the workspace-relative document identifier.
	DocumentID string `json:"document_id"`

	// DocumentType is the configured document type name.
	DocumentType string `json:"type,omitempty"`

	// Mode is the behavior mode of the document's store.
	Mode engine.BehaviorMode `json:"mode,omitempty"`

	// Content is the document tree the operation will persist.
	// Empty documents serialize as {}, not as an absent key.
	Content engine.Document `json:"content"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// User is the user performing the operation.
	User string `json:"user,omitempty"`

	// Environment is the environment (e.g., "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Workspace is the workspace root the operation targets.
	Workspace string `json:"workspace,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`

	// Metadata contains additional context metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}

// PolicySummary provides aggregate statistics for policy evaluation.
type PolicySummary struct {
	// TotalPolicies is the total number of policies evaluated.
	TotalPolicies int `json:"total_policies"`

	// TotalViolations is the total number of violations.
	TotalViolations int `json:"total_violations"`

	// ViolationsBySeverity breaks down violations by severity.
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`

	// AllowedOperations is the number of allowed operations.
	AllowedOperations int `json:"allowed_operations"`

	// BlockedOperations is the number of blocked operations.
	BlockedOperations int `json:"blocked_operations"`

	// EvaluationDuration is the total evaluation time.
	EvaluationDuration time.Duration `json:"evaluation_duration"`
}

// Summarize aggregates evaluation results into a summary.
func Summarize(results []*PolicyResult) *PolicySummary {
	summary := &PolicySummary{
		ViolationsBySeverity: make(map[Severity]int),
	}

	seen := make(map[string]struct{})
	for _, result := range results {
		for _, name := range result.EvaluatedPolicies {
			seen[name] = struct{}{}
		}

		summary.TotalViolations += len(result.Violations)
		for _, v := range result.Violations {
			summary.ViolationsBySeverity[v.Severity]++
		}

		if result.Allowed {
			summary.AllowedOperations++
		} else {
			summary.BlockedOperations++
		}

		summary.EvaluationDuration += result.Duration
	}

	summary.TotalPolicies = len(seen)
	return summary
}

package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/engine"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"document-naming",
		"reserved-directives",
		"state-write-guard",
		"empty-content",
		"oversized-document",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateWrite_NamingPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	content := engine.Document{"Theme": "dark"}

	tests := []struct {
		name            string
		documentID      string
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name:            "valid document ID",
			documentID:      "editor/settings",
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "empty document ID",
			documentID:      "",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "uppercase in ID",
			documentID:      "Editor",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "space in ID",
			documentID:      "editor settings",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "ID too long",
			documentID:      strings.Repeat("a", 140),
			expectAllowed:   false,
			expectViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateWrite(context.Background(), tt.documentID, "EditorSettings", engine.ModeSettings, content, nil)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := false
			for _, v := range result.Violations {
				if v.Policy == "document-naming" {
					hasViolation = true
					break
				}
			}
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected naming violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluateWrite_ReservedDirectives(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		content         engine.Document
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name: "composed content without directives",
			content: engine.Document{
				"Theme":   "dark",
				"Plugins": []any{"core", "spell-check"},
			},
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name: "extends directive at the root",
			content: engine.Document{
				"$extends": "base",
				"Theme":    "dark",
			},
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name: "include directive inside an array element",
			content: engine.Document{
				"Plugins": []any{
					map[string]any{"$include": "plugins/core"},
				},
			},
			expectAllowed:   false,
			expectViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateWrite(context.Background(), "editor", "EditorSettings", engine.ModeSettings, tt.content, nil)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := false
			for _, v := range result.Violations {
				if v.Policy == "reserved-directives" {
					hasViolation = true
					break
				}
			}
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected directive violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluateWrite_StateWriteGuard(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	content := engine.Document{"WindowState": "maximized"}

	tests := []struct {
		name            string
		mode            engine.BehaviorMode
		pctx            *PolicyContext
		expectViolation bool
	}{
		{
			name:            "state write in production",
			mode:            engine.ModeState,
			pctx:            &PolicyContext{Environment: "production"},
			expectViolation: true,
		},
		{
			name:            "state dry run in production",
			mode:            engine.ModeState,
			pctx:            &PolicyContext{Environment: "production", DryRun: true},
			expectViolation: false,
		},
		{
			name:            "state write in staging",
			mode:            engine.ModeState,
			pctx:            &PolicyContext{Environment: "staging"},
			expectViolation: false,
		},
		{
			name:            "settings write in production",
			mode:            engine.ModeSettings,
			pctx:            &PolicyContext{Environment: "production"},
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateWrite(context.Background(), "session", "SessionState", tt.mode, content, tt.pctx)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			// The guard emits a warning, so writes stay allowed either way
			if !result.Allowed {
				t.Errorf("Expected write to stay allowed. Violations: %+v", result.Violations)
			}

			hasViolation := false
			for _, v := range result.Violations {
				if v.Policy == "state-write-guard" {
					hasViolation = true
					if v.Severity != SeverityWarning {
						t.Errorf("Expected warning severity, got %s", v.Severity)
					}
				}
			}
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected guard violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluateWrite_EmptyContent(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	result, err := eng.EvaluateWrite(context.Background(), "editor", "EditorSettings", engine.ModeSettings, engine.Document{}, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Empty content should only warn. Violations: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "empty-content" {
			found = true
			if v.Severity != SeverityWarning {
				t.Errorf("Expected warning severity, got %s", v.Severity)
			}
			if v.Document != "editor" {
				t.Errorf("Expected violation for document 'editor', got '%s'", v.Document)
			}
		}
	}
	if !found {
		t.Error("Expected an empty-content violation")
	}
}

func TestApplyPolicies_CustomPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	custom := Policy{
		Name:        "require-owner",
		Description: "Production documents must declare an owner",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package custom.policies.ownership

import rego.v1

deny contains violation if {
	input.operation == "write"
	input.context.environment == "production"
	not input.content.Owner
	violation := {
		"message": "Production documents must declare an Owner property",
		"severity": "error",
		"document": input.document_id,
	}
}`,
	}

	if err := eng.ApplyPolicies(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("Failed to apply custom policy: %v", err)
	}

	pctx := &PolicyContext{Environment: "production"}

	// Without an owner the write is blocked
	result, err := eng.EvaluateWrite(context.Background(), "editor", "EditorSettings", engine.ModeSettings,
		engine.Document{"Theme": "dark"}, pctx)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("Expected write without Owner to be blocked")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "require-owner" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a require-owner violation, got: %+v", result.Violations)
	}

	// With an owner the write goes through
	result, err = eng.EvaluateWrite(context.Background(), "editor", "EditorSettings", engine.ModeSettings,
		engine.Document{"Theme": "dark", "Owner": "platform-team"}, pctx)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Expected write with Owner to be allowed. Violations: %+v", result.Violations)
	}
}

func TestApplyPolicies_InvalidRego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	broken := Policy{
		Name:     "broken",
		Severity: SeverityError,
		Enabled:  true,
		Rego:     "this is not rego",
	}

	if err := eng.ApplyPolicies(context.Background(), []Policy{broken}); err == nil {
		t.Error("Expected error for invalid Rego")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "document-naming"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	policy, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if policy.Enabled {
		t.Error("Policy should be disabled")
	}

	// Evaluate an invalid ID, should pass because the policy is disabled
	result, err := eng.EvaluateWrite(context.Background(), "INVALID ID", "EditorSettings", engine.ModeSettings,
		engine.Document{"Theme": "dark"}, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("Disabled policy should not generate violations")
		}
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	policy, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled")
	}
}

func TestGetPolicy_NotFound(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if _, err := eng.GetPolicy("does-not-exist"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	// Install a custom policy, then reload back to the built-in set
	custom := Policy{
		Name:     "temporary",
		Severity: SeverityInfo,
		Enabled:  true,
		Rego:     "package custom.policies.temporary\n\nimport rego.v1\n\ndeny contains msg if {\n\tfalse\n\tmsg := \"never\"\n}",
	}
	if err := eng.ApplyPolicies(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("Failed to apply policy: %v", err)
	}

	if len(eng.ListPolicies()) != initialCount+1 {
		t.Errorf("Expected %d policies after apply, got %d", initialCount+1, len(eng.ListPolicies()))
	}

	err = eng.ReloadPolicies(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	if len(eng.ListPolicies()) != initialCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, len(eng.ListPolicies()))
	}

	if _, err := eng.GetPolicy("temporary"); err == nil {
		t.Error("Custom policy should be gone after reload")
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}

func TestEvaluate_ResultMetadata(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	result, err := eng.EvaluateWrite(context.Background(), "editor", "EditorSettings", engine.ModeSettings,
		engine.Document{"Theme": "dark"}, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if len(result.EvaluatedPolicies) != len(eng.ListPolicies()) {
		t.Errorf("Expected %d evaluated policies, got %d",
			len(eng.ListPolicies()), len(result.EvaluatedPolicies))
	}

	if result.EvaluatedAt.IsZero() {
		t.Error("EvaluatedAt should be set")
	}
}

func TestSummarize(t *testing.T) {
	results := []*PolicyResult{
		{
			Allowed:           true,
			EvaluatedPolicies: []string{"document-naming", "empty-content"},
			Violations: []PolicyViolation{
				{Policy: "empty-content", Severity: SeverityWarning},
			},
			Duration: 2 * time.Millisecond,
		},
		{
			Allowed:           false,
			EvaluatedPolicies: []string{"document-naming"},
			Violations: []PolicyViolation{
				{Policy: "document-naming", Severity: SeverityError},
				{Policy: "document-naming", Severity: SeverityWarning},
			},
			Duration: 3 * time.Millisecond,
		},
	}

	summary := Summarize(results)

	if summary.TotalPolicies != 2 {
		t.Errorf("Expected 2 distinct policies, got %d", summary.TotalPolicies)
	}
	if summary.TotalViolations != 3 {
		t.Errorf("Expected 3 violations, got %d", summary.TotalViolations)
	}
	if summary.ViolationsBySeverity[SeverityWarning] != 2 {
		t.Errorf("Expected 2 warnings, got %d", summary.ViolationsBySeverity[SeverityWarning])
	}
	if summary.ViolationsBySeverity[SeverityError] != 1 {
		t.Errorf("Expected 1 error, got %d", summary.ViolationsBySeverity[SeverityError])
	}
	if summary.AllowedOperations != 1 || summary.BlockedOperations != 1 {
		t.Errorf("Expected 1 allowed and 1 blocked, got %d and %d",
			summary.AllowedOperations, summary.BlockedOperations)
	}
	if summary.EvaluationDuration != 5*time.Millisecond {
		t.Errorf("Expected 5ms total duration, got %s", summary.EvaluationDuration)
	}
}

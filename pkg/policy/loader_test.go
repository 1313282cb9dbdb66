package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const denyNothing = `import rego.v1

deny contains msg if {
	false
	msg := "never"
}`

func TestLoadFile_Rego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "require-owner.rego")

	regoContent := `# Rejects documents without an owner.
# severity: error
# tags: ownership, governance
package custom.policies.ownership

` + denyNothing

	err := os.WriteFile(policyFile, []byte(regoContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "require-owner" {
		t.Errorf("Expected name 'require-owner', got '%s'", policy.Name)
	}

	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}

	if policy.Description != "Rejects documents without an owner." {
		t.Errorf("Unexpected description: '%s'", policy.Description)
	}

	if policy.Severity != SeverityError {
		t.Errorf("Expected severity 'error', got '%s'", policy.Severity)
	}

	if len(policy.Tags) != 2 || policy.Tags[0] != "ownership" || policy.Tags[1] != "governance" {
		t.Errorf("Unexpected tags: %v", policy.Tags)
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFile_RegoDefaults(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "bare.rego")

	err := os.WriteFile(policyFile, []byte("package bare\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity 'warning', got '%s'", policy.Severity)
	}

	if policy.Description != "" {
		t.Errorf("Expected empty description, got '%s'", policy.Description)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "test-policy.json")

	policy := Policy{
		Name:        "test-json-policy",
		Description: "A test policy",
		Rego:        "package test\n\n" + denyNothing,
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"test"},
	}

	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}

	err = os.WriteFile(policyFile, data, 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if loaded.Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded.Name)
	}

	if loaded.Description != policy.Description {
		t.Errorf("Expected description '%s', got '%s'", policy.Description, loaded.Description)
	}

	if loaded.Severity != policy.Severity {
		t.Errorf("Expected severity '%s', got '%s'", policy.Severity, loaded.Severity)
	}
}

func TestLoadFile_JSONMissingName(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "anonymous.json")

	err := os.WriteFile(policyFile, []byte(`{"rego": "package p"}`), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFile(policyFile); err == nil {
		t.Error("Expected error for JSON policy without a name")
	}
}

func TestLoadDirectory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()

	// Create multiple policy files
	policies := map[string]string{
		"policy1.rego": "package policy1\n\n" + denyNothing,
		"policy2.rego": "package policy2\n\n" + denyNothing,
		"policy3.rego": "package policy3\n\n" + denyNothing,
	}

	for filename, content := range policies {
		path := filepath.Join(tmpDir, filename)
		err := os.WriteFile(path, []byte(content), 0644)
		if err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}

	// Files that should be ignored
	err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Test"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	err = os.WriteFile(filepath.Join(tmpDir, "policy1_test.rego"), []byte("package policy1_test"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != len(policies) {
		t.Errorf("Expected %d policies, got %d", len(policies), len(loaded))
	}
}

func TestLoadDirectory_Recursive(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	err := os.Mkdir(subDir, 0755)
	if err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	// A hidden directory that should be skipped entirely
	hiddenDir := filepath.Join(tmpDir, ".git")
	err = os.Mkdir(hiddenDir, 0755)
	if err != nil {
		t.Fatalf("Failed to create hidden directory: %v", err)
	}

	err = os.WriteFile(filepath.Join(tmpDir, "policy1.rego"), []byte("package p1\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	err = os.WriteFile(filepath.Join(subDir, "policy2.rego"), []byte("package p2\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	err = os.WriteFile(filepath.Join(hiddenDir, "policy3.rego"), []byte("package p3\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies (including subdirectory), got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()

	// Create a directory with policies
	dir1 := filepath.Join(tmpDir, "dir1")
	err := os.Mkdir(dir1, 0755)
	if err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	err = os.WriteFile(filepath.Join(dir1, "policy1.rego"), []byte("package p1\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	// Create a single policy file
	file1 := filepath.Join(tmpDir, "policy2.rego")
	err = os.WriteFile(file1, []byte("package p2\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	paths := []string{dir1, file1}
	loaded, err := loader.LoadFromPaths(context.Background(), paths)
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}
}

func TestLoadBundle(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	bundleFile := filepath.Join(tmpDir, "bundle.json")

	bundle := PolicyBundle{
		Name:        "test-bundle",
		Version:     "1.0.0",
		Description: "Test policy bundle",
		Policies: []Policy{
			{
				Name:        "policy1",
				Description: "First policy",
				Rego:        "package p1\n\n" + denyNothing,
				Severity:    SeverityError,
				Enabled:     true,
			},
			{
				Name:        "policy2",
				Description: "Second policy without a severity",
				Rego:        "package p2\n\n" + denyNothing,
				Enabled:     true,
			},
		},
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}

	err = os.WriteFile(bundleFile, data, 0644)
	if err != nil {
		t.Fatalf("Failed to write bundle file: %v", err)
	}

	loaded, err := loader.LoadBundle(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}

	if loaded.Name != bundle.Name {
		t.Errorf("Expected bundle name '%s', got '%s'", bundle.Name, loaded.Name)
	}

	if loaded.Version != bundle.Version {
		t.Errorf("Expected version '%s', got '%s'", bundle.Version, loaded.Version)
	}

	if len(loaded.Policies) != len(bundle.Policies) {
		t.Errorf("Expected %d policies, got %d", len(bundle.Policies), len(loaded.Policies))
	}

	if loaded.Policies[1].Severity != SeverityWarning {
		t.Errorf("Expected default severity 'warning', got '%s'", loaded.Policies[1].Severity)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		expectedDesc string
		expectedSev  Severity
		expectedTags []string
	}{
		{
			name: "single line comment",
			content: `# This is a test policy
package test`,
			expectedDesc: "This is a test policy",
		},
		{
			name: "multi line comments",
			content: `# This is a test policy
# that spans multiple lines
package test`,
			expectedDesc: "This is a test policy that spans multiple lines",
		},
		{
			name: "no comments",
			content: `package test
deny contains msg if { false; msg := "never" }`,
			expectedDesc: "",
		},
		{
			name: "comments with empty lines",
			content: `# First line
#
# Second line
package test`,
			expectedDesc: "First line Second line",
		},
		{
			name: "annotations mixed with description",
			content: `# Guards the deploy window.
# severity: critical
# tags: deploys, windows
package test`,
			expectedDesc: "Guards the deploy window.",
			expectedSev:  SeverityCritical,
			expectedTags: []string{"deploys", "windows"},
		},
		{
			name: "comments after code are ignored",
			content: `package test
# severity: error
deny contains msg if { false; msg := "never" }`,
			expectedDesc: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, sev, tags := parseHeader(tt.content)
			if desc != tt.expectedDesc {
				t.Errorf("Expected description '%s', got '%s'", tt.expectedDesc, desc)
			}
			if sev != tt.expectedSev {
				t.Errorf("Expected severity '%s', got '%s'", tt.expectedSev, sev)
			}
			if len(tags) != len(tt.expectedTags) {
				t.Fatalf("Expected tags %v, got %v", tt.expectedTags, tags)
			}
			for i := range tags {
				if tags[i] != tt.expectedTags[i] {
					t.Errorf("Expected tags %v, got %v", tt.expectedTags, tags)
				}
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "test.rego")
	err := os.WriteFile(policyFile, []byte("package test\n\n"+denyNothing), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	// Load a policy to populate cache
	_, err = loader.loadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	// Cache should have one entry
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	// Clear cache
	loader.ClearCache()

	// Cache should be empty
	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFile_UnsupportedType(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "test.txt")
	err := os.WriteFile(policyFile, []byte("not a policy"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = loader.loadFile(policyFile)
	if err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "test.json")
	err := os.WriteFile(policyFile, []byte("invalid json"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = loader.loadFile(policyFile)
	if err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadPath_NonExistent(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	_, err := loader.loadPath(context.Background(), "/nonexistent/path")
	if err == nil {
		t.Error("Expected error for non-existent path")
	}
}

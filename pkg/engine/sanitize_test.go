package engine

import (
	"reflect"
	"testing"
)

func TestSanitize_FillsDefaultsAndDropsUnknowns(t *testing.T) {
	tree := Document{
		"Theme":    "dark",
		"Obsolete": true,
	}

	got, migrations, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("migrations = %v, want none", migrations)
	}
	if _, ok := got["Obsolete"]; ok {
		t.Error("Sanitize() kept an undeclared property")
	}
	if got["Theme"] != "dark" {
		t.Errorf("Theme = %v, want the existing value kept", got["Theme"])
	}
	window, ok := got["Window"].(Document)
	if !ok {
		t.Fatal("Sanitize() did not fill the missing Window object")
	}
	if window["Width"] != float64(1280) || window["Height"] != float64(720) {
		t.Errorf("Window = %v, want the declared defaults", window)
	}
}

func TestSanitize_StringToList(t *testing.T) {
	tree := Document{
		"Theme":       "dark",
		"Window":      Document{"Width": float64(1280), "Height": float64(720)},
		"RecentFiles": "solo.txt",
	}

	got, migrations, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if !reflect.DeepEqual(got["RecentFiles"], []any{"solo.txt"}) {
		t.Errorf("RecentFiles = %v, want the value wrapped in a list", got["RecentFiles"])
	}
	if len(migrations) != 1 || migrations[0].Rule != MigrationStringToList || migrations[0].Path != "RecentFiles" {
		t.Errorf("migrations = %v, want one string_to_list at RecentFiles", migrations)
	}
}

func TestSanitize_NumberToString(t *testing.T) {
	tree := Document{
		"Theme":  float64(5),
		"Window": Document{"Width": float64(1280), "Height": float64(720), "Title": 1.5},
	}

	got, migrations, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if got["Theme"] != "5" {
		t.Errorf("Theme = %v, want the stringified number", got["Theme"])
	}
	if got["Window"].(Document)["Title"] != "1.5" {
		t.Errorf("Window.Title = %v, want \"1.5\"", got["Window"].(Document)["Title"])
	}
	if len(migrations) != 2 {
		t.Fatalf("migrations = %v, want two number_to_string entries", migrations)
	}
	paths := []string{migrations[0].Path, migrations[1].Path}
	if !containsString(paths, "Theme") || !containsString(paths, "Window.Title") {
		t.Errorf("migration paths = %v, want Theme and Window.Title", paths)
	}
}

func TestSanitize_ListElementNumberToString(t *testing.T) {
	tree := Document{
		"Theme":       "dark",
		"Window":      Document{"Width": float64(1280), "Height": float64(720)},
		"RecentFiles": []any{float64(1), "b.txt"},
	}

	got, migrations, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if !reflect.DeepEqual(got["RecentFiles"], []any{"1", "b.txt"}) {
		t.Errorf("RecentFiles = %v, want the element stringified", got["RecentFiles"])
	}
	if len(migrations) != 1 || migrations[0].Path != "RecentFiles[0]" {
		t.Errorf("migrations = %v, want one entry at RecentFiles[0]", migrations)
	}
}

func TestSanitize_ResidualViolations(t *testing.T) {
	tree := Document{
		"Theme":  true,
		"Window": Document{"Width": float64(1280), "Height": float64(720)},
	}

	_, _, err := Sanitize(tree, editorShape())
	if !IsSanitizationFailed(err) {
		t.Fatalf("Sanitize() error = %v, want sanitization_failed", err)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	tree := Document{
		"Theme":       "dark",
		"Obsolete":    true,
		"RecentFiles": "solo.txt",
	}

	first, migrations, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("first pass applied no migrations, fixture is wrong")
	}

	second, migrations, err := Sanitize(first, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() second pass error = %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("second pass migrations = %v, want none", migrations)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass changed the tree:\n%v\n%v", first, second)
	}
}

func TestSanitize_InputNotMutated(t *testing.T) {
	tree := Document{
		"Theme":    "dark",
		"Obsolete": true,
	}

	if _, _, err := Sanitize(tree, editorShape()); err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if _, ok := tree["Obsolete"]; !ok {
		t.Error("Sanitize() mutated the input tree")
	}
	if _, ok := tree["Window"]; ok {
		t.Error("Sanitize() filled defaults into the input tree")
	}
}

func TestSanitize_PreservesReservedKeys(t *testing.T) {
	tree := Document{
		"$schema": "https://example.invalid/schema",
		"Theme":   "dark",
	}

	got, _, err := Sanitize(tree, editorShape())
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if got["$schema"] != "https://example.invalid/schema" {
		t.Errorf("$schema = %v, want it preserved", got["$schema"])
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

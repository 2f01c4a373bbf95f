package cmd_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dupsync/dupsync/cmd"
)

// writeFileAt creates a file with the given content and modification time.
func writeFileAt(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime on %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	return cmd.Run(context.Background(), append([]string{"dupsync", "--log-level", "error"}, args...))
}

func TestRunDuplicates_InputValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := runCLI(t, "duplicates"); err == nil {
		t.Error("Expected error when neither --path nor --input-json is given")
	}
	if err := runCLI(t, "duplicates", "--path", "a", "--input-json", "b"); err == nil {
		t.Error("Expected error when both --path and --input-json are given")
	}
}

func TestRunDuplicates_ScanAndDelete(t *testing.T) {
	t.Chdir(t.TempDir())

	tree := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	writeFileAt(t, filepath.Join(tree, "keep.txt"), "same content", old)
	writeFileAt(t, filepath.Join(tree, "sub", "doomed.txt"), "same content", newer)
	writeFileAt(t, filepath.Join(tree, "unique.txt"), "something else", newer)

	reportPath := filepath.Join(t.TempDir(), "report.json")
	if err := runCLI(t, "duplicates", "--path", tree, "--output-json", reportPath); err != nil {
		t.Fatalf("duplicates scan failed: %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("Report was not written: %v", err)
	}
	var groups []struct {
		Digest    string   `json:"digest"`
		SizeBytes int64    `json:"size_bytes"`
		Files     []string `json:"files"`
	}
	if err := json.Unmarshal(data, &groups); err != nil {
		t.Fatalf("Report is not a JSON array: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("Expected 1 duplicate group, got %d", len(groups))
	}
	if len(groups[0].Files) != 2 {
		t.Fatalf("Expected 2 files in group, got %d", len(groups[0].Files))
	}
	if filepath.Base(groups[0].Files[0]) != "keep.txt" {
		t.Errorf("Expected oldest member first, got %s", groups[0].Files[0])
	}

	// Replay the report with --delete.
	if err := runCLI(t, "duplicates", "--input-json", reportPath, "--delete"); err != nil {
		t.Fatalf("duplicates delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tree, "keep.txt")); err != nil {
		t.Errorf("Kept member was deleted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tree, "sub", "doomed.txt")); !os.IsNotExist(err) {
		t.Error("Doomed member still exists after delete")
	}
	if _, err := os.Stat(filepath.Join(tree, "unique.txt")); err != nil {
		t.Errorf("Unique file was deleted: %v", err)
	}
}

func TestRunDuplicates_DryRunTouchesNothing(t *testing.T) {
	workDir := t.TempDir()
	t.Chdir(workDir)

	tree := t.TempDir()
	mtime := time.Now().Add(-time.Hour)
	writeFileAt(t, filepath.Join(tree, "a.bin"), "payload", mtime)
	writeFileAt(t, filepath.Join(tree, "b.bin"), "payload", mtime)

	if err := runCLI(t, "duplicates", "--path", tree, "--delete", "--dry-run"); err != nil {
		t.Fatalf("dry-run failed: %v", err)
	}

	for _, name := range []string{"a.bin", "b.bin"} {
		if _, err := os.Stat(filepath.Join(tree, name)); err != nil {
			t.Errorf("Dry-run removed %s: %v", name, err)
		}
	}
	if reports, _ := filepath.Glob(filepath.Join(workDir, "out_*.json")); len(reports) != 0 {
		t.Errorf("Dry-run wrote a default report: %v", reports)
	}
	if _, err := os.Stat(filepath.Join(workDir, "dupsync.cache.json")); !os.IsNotExist(err) {
		t.Error("Dry-run wrote the fingerprint cache")
	}
}

func TestRunDuplicates_DefaultReportName(t *testing.T) {
	workDir := t.TempDir()
	t.Chdir(workDir)

	tree := t.TempDir()
	mtime := time.Now().Add(-time.Hour)
	writeFileAt(t, filepath.Join(tree, "a.txt"), "x", mtime)

	if err := runCLI(t, "duplicates", "--path", tree); err != nil {
		t.Fatalf("duplicates scan failed: %v", err)
	}
	reports, _ := filepath.Glob(filepath.Join(workDir, "out_*.json"))
	if len(reports) != 1 {
		t.Fatalf("Expected one default report, got %v", reports)
	}
}

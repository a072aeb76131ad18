package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadRecords(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "records.json")
	content := `[{"id": 1, "patient_name": "Ann"}, {"id": "2", "patient_name": "Ben"}]`

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	records := LoadRecords(t, testFile)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].ID != 2 || records[1].Text("patient_name") != "Ben" {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestWriteGolden(t *testing.T) {
	tmpDir := t.TempDir()
	goldenFile := filepath.Join(tmpDir, "subdir", "test.golden")
	testContent := []byte("test golden content")

	WriteGolden(t, goldenFile, testContent)

	result, err := os.ReadFile(goldenFile)
	if err != nil {
		t.Fatalf("failed to read written golden file: %v", err)
	}

	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestCompareWithGolden_CreatesMissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	goldenFile := filepath.Join(tmpDir, "new.golden")

	CompareWithGolden(t, goldenFile, []byte("fresh"))

	result, err := os.ReadFile(goldenFile)
	if err != nil {
		t.Fatalf("expected golden file to be created: %v", err)
	}
	if string(result) != "fresh" {
		t.Errorf("expected %q, got %q", "fresh", result)
	}

	CompareWithGolden(t, goldenFile, []byte("fresh"))
}

func TestPaths(t *testing.T) {
	if got := FixturePath("a.json"); got != filepath.Join("testdata", "a.json") {
		t.Errorf("unexpected fixture path %q", got)
	}
	if got := GoldenPath("a.golden"); got != filepath.Join("testdata", "golden", "a.golden") {
		t.Errorf("unexpected golden path %q", got)
	}
}

package fsx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicCreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	if err := WriteFileAtomic(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "second" {
		t.Errorf("content = %q, want second", content)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := WriteFileAtomic(path, []byte("content"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "doc.json" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Errorf("directory contains %v, want only doc.json", names)
	}
}

func TestWriteCanonicalDocumentAppendsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := WriteCanonicalDocument(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("WriteCanonicalDocument: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "{\"a\":1}\n" {
		t.Errorf("content = %q, want trailing newline", content)
	}
}

func TestValidatePath(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative", "state/manifest.json", false},
		{"absolute", "/tmp/run/state/manifest.json", false},
		{"parent escape", "../outside.json", true},
		{"nested escape", "logs/../../outside.json", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidatePath(tc.path)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
		})
	}
}

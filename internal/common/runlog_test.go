package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.jsonl")
	log := NewRunLog(path)
	if log.Path() != path {
		t.Fatalf("path = %q", log.Path())
	}
	if err := log.Append(RunEntry{Source: "a.raw", Events: 4, Words: 8}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(RunEntry{Source: "b.raw", Status: RunFailed, Error: "bad geometry"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, err := ReadRunLog(path)
	if err != nil {
		t.Fatalf("ReadRunLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != RunOK || entries[0].Events != 4 || entries[0].Ts.IsZero() {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Status != RunFailed || entries[1].Error != "bad geometry" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestRunLogRejectsMissingSource(t *testing.T) {
	if err := NewRunLog(filepath.Join(t.TempDir(), "runs.jsonl")).Append(RunEntry{}); err == nil {
		t.Fatal("expected error for entry without source")
	}
	var nilLog *RunLog
	if err := nilLog.Append(RunEntry{Source: "x"}); err == nil {
		t.Fatal("expected error for nil log")
	}
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	digest, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	if digest != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" || size != 3 {
		t.Fatalf("digest/size = %s/%d", digest, size)
	}
}

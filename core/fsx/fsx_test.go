package fsx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicCreatesAndOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "export.csv")

	if err := WriteFileAtomic(target, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read first write: %v", err)
	}
	if string(first) != "first\n" {
		t.Fatalf("unexpected first content: %q", string(first))
	}

	if err := WriteFileAtomic(target, []byte("second\n"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read second write: %v", err)
	}
	if string(second) != "second\n" {
		t.Fatalf("unexpected second content: %q", string(second))
	}
}

func TestWriteFileAtomicMode(t *testing.T) {
	target := filepath.Join(t.TempDir(), "secure.json")

	if err := WriteFileAtomic(target, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 got %#o", info.Mode().Perm())
	}
}

func TestDirIsEmpty(t *testing.T) {
	root := t.TempDir()
	empty, err := DirIsEmpty(root)
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if !empty {
		t.Fatalf("expected fresh temp dir to be empty")
	}

	missing, err := DirIsEmpty(filepath.Join(root, "missing"))
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if !missing {
		t.Fatalf("expected missing dir to count as empty")
	}

	if err := os.WriteFile(filepath.Join(root, "2019-12-05.csv"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	populated, err := DirIsEmpty(root)
	if err != nil {
		t.Fatalf("populated dir: %v", err)
	}
	if populated {
		t.Fatalf("expected dir with entry to be non-empty")
	}
}

func TestJoinWithin(t *testing.T) {
	root := t.TempDir()
	joined, err := JoinWithin(root, "logs_AB12C/2019-12-05.csv")
	if err != nil {
		t.Fatalf("join local entry: %v", err)
	}
	if joined != filepath.Join(root, "logs_AB12C", "2019-12-05.csv") {
		t.Fatalf("unexpected join: %s", joined)
	}
	for _, name := range []string{"../evil.csv", "a/../../evil.csv", "/abs.csv", ""} {
		if _, err := JoinWithin(root, name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestHiddenNames(t *testing.T) {
	cases := map[string]bool{
		"2019-12-05.csv":            false,
		".DS_Store":                 true,
		"__MACOSX":                  true,
		"logs/__MACOSX/x.csv":       true,
		"logs/.hidden/x.csv":        true,
		"logs_AB12C/2019-12-05.csv": false,
	}
	for name, want := range cases {
		if got := HasHiddenComponent(name); got != want {
			t.Fatalf("HasHiddenComponent(%q)=%v want %v", name, got, want)
		}
	}
	if !IsHiddenName("__init__") {
		t.Fatalf("expected dunder name to be hidden")
	}
}

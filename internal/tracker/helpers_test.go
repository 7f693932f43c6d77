package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStore_PutGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	id, err := store.Put([]byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected blob id %s", id)
	}
	if !store.Exists(id) {
		t.Fatal("expected blob to exist")
	}

	again, err := store.Put([]byte("hello"))
	if err != nil || again != id {
		t.Fatalf("second Put = %s, %v", again, err)
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get = %q", got)
	}
}

func TestFSStore_DetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	id, err := store.Put([]byte("original"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, id[:2], id), []byte("tampered"), 0644); err != nil {
		t.Fatalf("overwrite blob: %v", err)
	}
	if _, err := store.Get(id); err == nil || !strings.Contains(err.Error(), "integrity") {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestFSStore_RejectsNonHexIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	p := store.blobPath("../../etc/passwd")
	if !strings.HasPrefix(p, filepath.Join(dir, "__invalid__")) {
		t.Fatalf("blobPath escaped store: %s", p)
	}
	if store.Exists("../../etc/passwd") {
		t.Fatal("non-hex id must not resolve")
	}
}

func TestComputeLineDiff(t *testing.T) {
	base := []byte("<tr><td>1</td></tr>\n<tr><td>2</td></tr>\n")
	head := []byte("<tr><td>1</td></tr>\n<tr><td>3</td></tr>\n<tr><td>4</td></tr>\n")

	d := computeLineDiff("b", "h", base, head)
	if d.BaseID != "b" || d.HeadID != "h" {
		t.Fatalf("ids not carried: %+v", d)
	}
	if d.Removed != 1 || d.Added != 2 {
		t.Fatalf("got +%d -%d, want +2 -1", d.Added, d.Removed)
	}
	if d.Chunks[0].Type != "removed" || d.Chunks[0].Line != 2 {
		t.Errorf("first chunk = %+v", d.Chunks[0])
	}

	same := computeLineDiff("b", "h", base, base)
	if !same.Empty() {
		t.Fatalf("identical bodies produced chunks: %+v", same.Chunks)
	}
}

func TestCountLines(t *testing.T) {
	cases := map[string]int{"": 0, "a": 1, "a\n": 1, "a\nb": 2, "a\nb\n": 2, "\n\n": 2}
	for in, want := range cases {
		if got := countLines(in); got != want {
			t.Errorf("countLines(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeHeaders(t *testing.T) {
	in := map[string][]string{
		"content-type":  {"text/html"},
		"authorization": {"Bearer x"},
		"Cookie":        {"a=b"},
	}

	out := normalizeHeaders(in, true)
	if got := out["Content-Type"]; len(got) != 1 || got[0] != "text/html" {
		t.Errorf("Content-Type = %v", got)
	}
	if got := out["Authorization"]; len(got) != 1 || got[0] != redacted {
		t.Errorf("Authorization = %v", got)
	}
	if got := out["Cookie"]; len(got) != 1 || got[0] != redacted {
		t.Errorf("Cookie = %v", got)
	}
	if in["authorization"][0] != "Bearer x" {
		t.Error("input was modified")
	}

	plain := normalizeHeaders(in, false)
	if got := plain["Authorization"]; got[0] != "Bearer x" {
		t.Errorf("Authorization without redaction = %v", got)
	}
}

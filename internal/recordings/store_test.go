package recordings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC) }
	return s
}

func TestSaveWritesUnderRoomDir(t *testing.T) {
	s := newTestStore(t)

	rel, err := s.Save("x", "conn-a", "call.webm", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rel != filepath.Join("x", "20240301T123045.000Z-conn-a-call.webm") {
		t.Errorf("rel = %q", rel)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), rel))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Join(s.Dir(), "x"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("room dir has %d entries, want 1", len(entries))
	}
}

func TestSaveSanitizesHostilePaths(t *testing.T) {
	s := newTestStore(t)

	rel, err := s.Save("../../etc", "a/b", "../passwd", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(rel, "..") || filepath.IsAbs(rel) {
		t.Fatalf("rel escapes store root: %q", rel)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), rel)); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	// The parent of the store root must stay untouched.
	parent, err := os.ReadDir(filepath.Dir(s.Dir()))
	if err != nil {
		t.Fatalf("readdir parent: %v", err)
	}
	for _, e := range parent {
		if e.Name() == "etc" || e.Name() == "passwd" {
			t.Fatalf("upload escaped store root: %v", e.Name())
		}
	}
}

func TestSaveRejectsEmptyUpload(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save("x", "conn-a", "call.webm", strings.NewReader("")); err != ErrEmptyUpload {
		t.Fatalf("err = %v, want ErrEmptyUpload", err)
	}
}

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		in, fallback, want string
	}{
		{"room-1", "room", "room-1"},
		{"", "room", "room"},
		{"  ", "room", "room"},
		{"..", "room", "room"},
		{"café au lait", "room", "caf__au_lait"},
		{strings.Repeat("a", 100), "room", strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		if got := sanitizeComponent(tt.in, tt.fallback); got != tt.want {
			t.Errorf("sanitizeComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package recordings persists client-uploaded session recordings on the
// local filesystem.
package recordings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxComponentLength bounds each sanitized path component so uploads cannot
// produce absurd file names.
const maxComponentLength = 64

var ErrEmptyUpload = errors.New("recordings: empty upload")

// Store writes each upload to <dir>/<room>/<timestamp>-<participant>-<name>.
// Room, participant, and file name are sanitized to a conservative character
// set, so the resulting path is always inside dir.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Save streams the upload to disk and returns the path relative to the store
// root. The file is written via a temp file and renamed, so a partially
// received upload never appears under its final name.
func (s *Store) Save(roomID, participant, filename string, r io.Reader) (string, error) {
	roomDir := sanitizeComponent(roomID, "room")
	participant = sanitizeComponent(participant, "peer")
	base := sanitizeComponent(strings.TrimSuffix(filename, filepath.Ext(filename)), "recording")
	ext := sanitizeExt(filepath.Ext(filename))

	if err := os.MkdirAll(filepath.Join(s.dir, roomDir), 0o755); err != nil {
		return "", fmt.Errorf("recordings: create room dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%s%s", s.now().UTC().Format("20060102T150405.000Z"), participant, base, ext)
	rel := filepath.Join(roomDir, name)
	dst := filepath.Join(s.dir, rel)

	tmp, err := os.CreateTemp(filepath.Join(s.dir, roomDir), "."+name+".tmp*")
	if err != nil {
		return "", fmt.Errorf("recordings: create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return "", fmt.Errorf("recordings: write upload: %w", err)
	}
	if n == 0 {
		return "", ErrEmptyUpload
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("recordings: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("recordings: finalize upload: %w", err)
	}
	return rel, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// sanitizeComponent reduces a user-supplied string to [a-zA-Z0-9._-],
// replacing everything else with '_'. Empty or dot-only results fall back to
// the given placeholder so the component can never be "." or "..".
func sanitizeComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxComponentLength {
		raw = raw[:maxComponentLength]
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "._") == "" {
		return fallback
	}
	return out
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	clean := sanitizeComponent(strings.TrimPrefix(ext, "."), "")
	if clean == "" {
		return ""
	}
	return "." + clean
}

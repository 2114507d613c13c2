package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxUploadSize caps uploaded story files (16 MB).
const MaxUploadSize = 16 * 1024 * 1024

// ErrUploadTooLarge is returned when an upload exceeds MaxUploadSize.
var ErrUploadTooLarge = errors.New("upload exceeds 16 MB limit")

var allowedUploadExts = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".epub": true,
	".mobi": true,
}

// AllowedUpload reports whether filename has an accepted extension.
func AllowedUpload(filename string) bool {
	return allowedUploadExts[strings.ToLower(filepath.Ext(filename))]
}

// SafeFilename reduces a client-supplied name to a plain base name made of
// ASCII letters, digits, '.', '-' and '_'.
func SafeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		}
	}
	cleaned := strings.Join(strings.Fields(sb.String()), "_")
	return strings.TrimLeft(cleaned, "._")
}

// SaveUpload stores r under dir with a sanitized version of filename and
// returns the written path. Partial files are removed on failure.
func SaveUpload(dir, filename string, r io.Reader) (string, error) {
	if !AllowedUpload(filename) {
		return "", fmt.Errorf("%w: %q (allowed: pdf, txt, epub, mobi)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	name := SafeFilename(filename)
	if name == "" || filepath.Ext(name) == name {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		os.Remove(dst)
		return "", fmt.Errorf("write %s: %w", dst, err)
	case n > MaxUploadSize:
		os.Remove(dst)
		return "", ErrUploadTooLarge
	case closeErr != nil:
		os.Remove(dst)
		return "", fmt.Errorf("close %s: %w", dst, closeErr)
	}
	return dst, nil
}

// Package ingest extracts plain story text from files and web pages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for inputs whose kind cannot be read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type SourceType string

const (
	SourceURL     SourceType = "url"
	SourcePDF     SourceType = "pdf"
	SourceText    SourceType = "text"
	SourceEPUB    SourceType = "epub"
	SourceMOBI    SourceType = "mobi"
	SourceUnknown SourceType = "unknown"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

type Content struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Content, error)
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".pdf":
		return SourcePDF
	case ".txt", ".md", ".text":
		return SourceText
	case ".epub":
		return SourceEPUB
	case ".mobi", ".prc", ".azw":
		return SourceMOBI
	default:
		return SourceUnknown
	}
}

// NewIngester picks the extractor for input, or ErrUnsupportedFormat.
func NewIngester(input string) (Ingester, error) {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{}, nil
	case SourcePDF:
		return &PDFIngester{}, nil
	case SourceText:
		return &TextIngester{}, nil
	case SourceEPUB:
		return &EPUBIngester{}, nil
	case SourceMOBI:
		return &MOBIIngester{}, nil
	default:
		ext := filepath.Ext(input)
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Ingest detects the kind of input and extracts its text.
func Ingest(ctx context.Context, input string) (*Content, error) {
	ing, err := NewIngester(input)
	if err != nil {
		return nil, err
	}
	return ing.Ingest(ctx, input)
}

// FromText wraps text supplied inline.
func FromText(text, title string) (*Content, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("no text provided")
	}
	if title == "" {
		title = titleFromText(text, 80)
	}
	return &Content{
		Text:      text,
		Title:     title,
		Source:    "inline",
		WordCount: wordCount(text),
	}, nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}

func newContent(text, title, source string) *Content {
	if title == "" {
		title = titleFromText(text, 80)
	}
	return &Content{
		Text:      text,
		Title:     title,
		Source:    source,
		WordCount: wordCount(text),
	}
}

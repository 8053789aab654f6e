package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
)

var (
	// ErrEmptyDocument is returned for a zero-length upload
	ErrEmptyDocument = errors.New("PDF content is empty")
	// ErrNoText is returned when a document yields only whitespace
	ErrNoText = errors.New("no text extracted")
)

// pdfMagic is the header every PDF starts with
const pdfMagic = "%PDF-"

// IsPDF reports whether data starts with a PDF header
func IsPDF(data []byte) bool {
	return len(data) >= len(pdfMagic) && string(data[:len(pdfMagic)]) == pdfMagic
}

// FitzExtractor reads PDF text locally with MuPDF
type FitzExtractor struct{}

func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

// ExtractText returns the text of every page, each page under its own heading
func (e *FitzExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}

	logger.Info(ctx, "extracting text", "filename", filename, "bytes", len(data))

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF '%s': %w", filename, err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of '%s': %w", page+1, filename, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "## Page %d\n\n%s\n\n", page+1, text)
	}

	markdown := sb.String()
	if strings.TrimSpace(markdown) == "" {
		return "", fmt.Errorf("%w from '%s': the PDF may be image-only or corrupted", ErrNoText, filename)
	}
	return markdown, nil
}

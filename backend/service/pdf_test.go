package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
)

// minimalPDF builds a one-page document; MuPDF rebuilds the missing xref table.
func minimalPDF(content string) []byte {
	var sb strings.Builder
	sb.WriteString("%PDF-1.4\n")
	sb.WriteString("1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n")
	sb.WriteString("2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n")
	sb.WriteString("3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 400 200]/Contents 4 0 R/Resources<</Font<</F1 5 0 R>>>>>>endobj\n")
	sb.WriteString("4 0 obj<</Length ")
	sb.WriteString(strconv.Itoa(len(content)))
	sb.WriteString(">>stream\n")
	sb.WriteString(content)
	sb.WriteString("\nendstream endobj\n")
	sb.WriteString("5 0 obj<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>endobj\n")
	sb.WriteString("trailer<</Root 1 0 R>>\n%%EOF\n")
	return []byte(sb.String())
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"pdf", []byte("%PDF-1.7\n..."), true},
		{"short", []byte("%PD"), false},
		{"png", []byte("\x89PNG\r\n"), false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPDF(tt.data); got != tt.want {
				t.Errorf("IsPDF() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFitzExtractorEmpty(t *testing.T) {
	_, err := NewFitzExtractor().ExtractText(context.Background(), nil, "empty.pdf")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
}

func TestFitzExtractorGarbage(t *testing.T) {
	_, err := NewFitzExtractor().ExtractText(context.Background(), []byte("definitely not a pdf"), "bad.pdf")
	if err == nil {
		t.Error("Expected error for unreadable document")
	}
}

func TestFitzExtractorText(t *testing.T) {
	pdf := minimalPDF("BT /F1 18 Tf 20 100 Td (ISIN XS3184638594) Tj ET")

	text, err := NewFitzExtractor().ExtractText(context.Background(), pdf, "termsheet.pdf")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(text, "XS3184638594") {
		t.Errorf("Expected ISIN in extracted text, got %q", text)
	}
	if !strings.HasPrefix(text, "## Page 1") {
		t.Errorf("Expected page heading, got %q", text)
	}
}

func TestFitzExtractorNoText(t *testing.T) {
	pdf := minimalPDF("0 0 1 rg 10 10 50 50 re f")

	_, err := NewFitzExtractor().ExtractText(context.Background(), pdf, "scan.pdf")
	if !errors.Is(err, ErrNoText) {
		t.Errorf("Expected ErrNoText, got %v", err)
	}
}

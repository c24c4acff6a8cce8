package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// buildPDF writes a minimal single-font PDF with one text line per page.
func buildPDF(lines ...string) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	pageCount := len(lines)
	kids := make([]string, 0, pageCount)
	for i := range lines {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+i*2))
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pageCount))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, line := range lines {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestParseExtractsTextPerPage(t *testing.T) {
	data := buildPDF("GENERAL NOTES AHU-1 IN ROOM 101", "SEE SHEET M-501")

	pages, err := NewParser().Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || !strings.Contains(pages[0].Text, "AHU-1") {
		t.Fatalf("unexpected first page %+v", pages[0])
	}
	if pages[1].Number != 2 || !strings.Contains(pages[1].Text, "M-501") {
		t.Fatalf("unexpected second page %+v", pages[1])
	}
	if pages[0].Image != nil {
		t.Fatalf("expected no page image for a text-only sheet")
	}
}

func TestParseRejectsNonPDF(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("not a pdf"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

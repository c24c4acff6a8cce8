package image

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

func TestParseReturnsSinglePageWithImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	pages, err := NewParser().Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Number != 1 || pages[0].Text != "" {
		t.Fatalf("unexpected pages %+v", pages)
	}
	if !bytes.Equal(pages[0].Image, buf.Bytes()) {
		t.Fatalf("expected original bytes to be kept")
	}
}

func TestParseRejectsCorruptImage(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("\x89PNG broken"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

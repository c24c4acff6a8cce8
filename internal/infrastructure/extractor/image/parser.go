// Package image accepts standalone drawing scans and photos as single-page
// documents.
package image

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse validates the header and returns one page carrying the raw bytes.
// Standalone images have no extractable text.
func (p *Parser) Parse(_ context.Context, data []byte) ([]domain.Page, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}
	return []domain.Page{{Number: 1, Image: data}}, nil
}

// Package pdf extracts per-page text and the dominant embedded drawing image
// from PDF sheets.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

// minImageSide skips logos and stamps; sheet drawings are far larger.
const minImageSide = 200

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]domain.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}

	pages := make([]domain.Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, domain.Page{
			Number: i,
			Text:   strings.TrimSpace(text),
			Image:  pageImage(page),
		})
	}
	return pages, nil
}

// pageText recovers from the reader's panics on malformed content streams.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// pageImage returns the largest decodable image XObject as PNG, or nil. Only
// uncompressed and Flate streams in DeviceRGB or DeviceGray are decoded; the
// reader cannot expose DCT (JPEG) streams.
func pageImage(page pdf.Page) (out []byte) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	xobjects := page.Resources().Key("XObject")
	var best image.Image
	bestArea := 0
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" || !decodableFilter(obj.Key("Filter")) {
			continue
		}
		width := int(obj.Key("Width").Int64())
		height := int(obj.Key("Height").Int64())
		if width < minImageSide || height < minImageSide || width*height <= bestArea {
			continue
		}
		img, err := decodeRaw(obj, width, height)
		if err != nil {
			continue
		}
		best, bestArea = img, width*height
	}
	if best == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, best); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodableFilter(filter pdf.Value) bool {
	switch filter.Kind() {
	case pdf.Null:
		return true
	case pdf.Name:
		return filter.Name() == "FlateDecode"
	case pdf.Array:
		return filter.Len() == 1 && filter.Index(0).Name() == "FlateDecode"
	default:
		return false
	}
}

func decodeRaw(obj pdf.Value, width, height int) (image.Image, error) {
	if bits := obj.Key("BitsPerComponent").Int64(); bits != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", bits)
	}
	rc := obj.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	switch obj.Key("ColorSpace").Name() {
	case "DeviceRGB":
		if len(raw) < width*height*3 {
			return nil, fmt.Errorf("short rgb image data")
		}
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			img.Set(i%width, i/width, color.RGBA{R: raw[i*3], G: raw[i*3+1], B: raw[i*3+2], A: 0xff})
		}
		return img, nil
	case "DeviceGray":
		if len(raw) < width*height {
			return nil, fmt.Errorf("short gray image data")
		}
		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, raw[:width*height])
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported color space")
	}
}

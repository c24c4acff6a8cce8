// Package xlsx turns equipment schedule workbooks into one page per sheet.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse renders each sheet as its upper-cased name followed by one line per
// data row, "Header: value" pairs joined by "; ". Rows before the first
// non-empty row are skipped and that row is used as the header.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]domain.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open xlsx", err)
	}
	defer f.Close()

	pages := make([]domain.Page, 0)
	for idx, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		text := renderSheet(sheet, rows)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: idx + 1, Text: text})
	}
	return pages, nil
}

func renderSheet(name string, rows [][]string) string {
	var header []string
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		pairs := make([]string, 0, len(row))
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			key := fmt.Sprintf("Column %d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				key = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, key+": "+cell)
		}
		lines = append(lines, strings.Join(pairs, "; "))
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(name)) + "\n" + strings.Join(lines, "\n")
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

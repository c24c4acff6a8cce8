package domain

import "fmt"

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// MaxChunkTextRunes bounds the text stored alongside a chunk in every index.
const MaxChunkTextRunes = 2000

// Chunk is the retrievable unit shared by the lexical, vector and image
// indexes. The same ID resolves to the same chunk in every index.
type Chunk struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	DocumentID string   `json:"doc_id"`
	Filename   string   `json:"filename"`
	Page       int      `json:"page"`
	ChunkIndex int      `json:"chunk_index"`
	IsDiagram  bool     `json:"is_diagram"`
	Section    string   `json:"section,omitempty"`
	Modality   Modality `json:"modality"`
}

func TextChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

func PageImageID(documentID string, page int) string {
	return fmt.Sprintf("%s_page_%d_image", documentID, page)
}

// IsVisual reports whether the chunk qualifies for the diagram boost.
func (c Chunk) IsVisual() bool {
	return c.Modality == ModalityImage || c.IsDiagram
}

// TruncateText bounds text to MaxChunkTextRunes.
func TruncateText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxChunkTextRunes {
		return text
	}
	return string(runes[:MaxChunkTextRunes])
}

// Page is one extracted page of a source document.
type Page struct {
	Number  int
	Text    string
	Section string
	// Image holds an encoded PNG/JPEG rendition of the page drawing when the
	// extractor could produce one.
	Image []byte
}

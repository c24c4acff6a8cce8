package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string           `json:"id"`
	Filename    string           `json:"filename"`
	MimeType    string           `json:"mime_type"`
	StoragePath string           `json:"storage_path"`
	Status      DocumentStatus   `json:"status"`
	Error       string           `json:"error,omitempty"`
	Result      *IngestionResult `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IngestionResult summarizes what processing wrote for one document.
type IngestionResult struct {
	Pages         int `json:"pages"`
	Chunks        int `json:"chunks"`
	Images        int `json:"images"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// IndexStats reports sizes of the retrieval indexes and the graph.
type IndexStats struct {
	VectorChunks  int        `json:"vector_chunks"`
	ImageChunks   int        `json:"image_chunks"`
	LexicalChunks int        `json:"lexical_chunks"`
	Graph         GraphStats `json:"graph"`
}

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// DetectMediaType resolves the upload media type from the declared MIME type,
// falling back to the file extension. ok is false for unsupported uploads.
func DetectMediaType(filename, declared string) (string, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	switch mediaType {
	case MediaTypePDF, MediaTypeXLSX, MediaTypePNG, MediaTypeJPEG:
		return mediaType, true
	case "image/jpg":
		return MediaTypeJPEG, true
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaTypePDF, true
	case ".xlsx":
		return MediaTypeXLSX, true
	case ".png":
		return MediaTypePNG, true
	case ".jpg", ".jpeg":
		return MediaTypeJPEG, true
	}
	return mediaType, false
}

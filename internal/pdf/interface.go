package pdf

import (
	"context"
)

// TextExtractor is what the batch pipeline needs from a PDF backend.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Document is the subset of a fitz document the extractor reads.
type Document interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

// Opener opens a document at path.
type Opener func(path string) (Document, error)

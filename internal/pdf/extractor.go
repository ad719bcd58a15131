package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/kpauljoseph/studyguide/pkg/logger"
)

// ReadError covers PDFs that cannot be opened or read: corrupt files and
// files that need a password.
type ReadError struct {
	Path      string
	Page      int // 1-based; 0 when the document could not be opened
	Encrypted bool
	Err       error
}

func (e *ReadError) Error() string {
	switch {
	case e.Encrypted:
		return fmt.Sprintf("failed to read PDF %s: encrypted and no password given", e.Path)
	case e.Page > 0:
		return fmt.Sprintf("failed to read PDF %s page %d: %v", e.Path, e.Page, e.Err)
	default:
		return fmt.Sprintf("failed to read PDF %s: %v", e.Path, e.Err)
	}
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func OpenFitz(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type Extractor struct {
	open   Opener
	logger *logger.Logger
}

func NewExtractor(log *logger.Logger) *Extractor {
	return NewExtractorWithOpener(OpenFitz, log)
}

func NewExtractorWithOpener(open Opener, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{open: open, logger: log}
}

// ExtractText returns the embedded text of every page, in order, with no
// separator between pages. Image-only pages contribute nothing; there is no
// OCR fallback.
func (e *Extractor) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	e.logger.Info("Processing PDF: %s", pdfPath)

	pages, err := e.Pages(ctx, pdfPath)
	if err != nil {
		return "", err
	}
	text := strings.Join(pages, "")
	e.logger.Debug("Extracted %d characters from %d page(s) of %s", len(text), len(pages), pdfPath)
	return text, nil
}

// Pages returns the embedded text of each page with MuPDF's trailing line
// terminators removed.
func (e *Extractor) Pages(ctx context.Context, pdfPath string) ([]string, error) {
	doc, err := e.open(pdfPath)
	if err != nil {
		return nil, &ReadError{
			Path:      pdfPath,
			Encrypted: errors.Is(err, fitz.ErrNeedsPassword),
			Err:       err,
		}
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())

	//Page numbers are zero indexed in the fitz package.
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := doc.Text(pageNum)
		if err != nil {
			return nil, &ReadError{Path: pdfPath, Page: pageNum + 1, Err: err}
		}

		text = strings.TrimRight(text, "\n")
		if text == "" {
			e.logger.Debug("Page %d of %s has no embedded text", pageNum+1, pdfPath)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/kpauljoseph/studyguide/internal/encoder"
	"github.com/kpauljoseph/studyguide/internal/manifest"
	"github.com/kpauljoseph/studyguide/internal/ollama"
	"github.com/kpauljoseph/studyguide/internal/pdf"
	"github.com/kpauljoseph/studyguide/pkg/models"
)

// ErrorKind names the failure class of err for status lines.
func ErrorKind(err error) string {
	var (
		decodeErr  *encoder.ImageDecodeError
		readErr    *pdf.ReadError
		extractErr *ollama.ExtractionError
		corruptErr *manifest.CorruptError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &decodeErr):
		return "image-decode"
	case errors.As(err, &readErr):
		if readErr.Encrypted {
			return "pdf-encrypted"
		}
		return "pdf-read"
	case errors.As(err, &extractErr):
		return "extraction"
	case errors.As(err, &corruptErr):
		return "manifest-corrupt"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// report prints one status line per file of the batch, then a summary.
func (a *App) report(batch *models.Batch) {
	if batch == nil {
		return
	}

	a.writeResults(batch.Results)
	fmt.Fprintf(a.stdout, "Processed %d file(s): %d result(s), %d failure(s)\n",
		len(batch.Classified), len(batch.Results), len(batch.Failures()))
}

func (a *App) writeResults(results []models.TaskResult) {
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	for _, r := range results {
		for _, path := range r.Paths {
			if r.Outcome.Status == models.StatusFailed {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s: %v\n", r.Outcome.Status, r.Kind, path, ErrorKind(r.Outcome.Err), r.Outcome.Err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.Outcome.Status, r.Kind, path)
		}
	}
	w.Flush()
}

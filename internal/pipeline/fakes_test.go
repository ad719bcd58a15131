package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kpauljoseph/studyguide/internal/encoder"
	"github.com/kpauljoseph/studyguide/internal/pdf"
	"github.com/kpauljoseph/studyguide/pkg/models"
)

// fakeEncoder returns "b64:<name>" for each file, or an ImageDecodeError for
// names listed in broken.
type fakeEncoder struct {
	broken map[string]bool
}

func (e *fakeEncoder) Encode(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(path)
	if e.broken[name] {
		return "", &encoder.ImageDecodeError{Path: path, Err: errors.New("not an image")}
	}
	return "b64:" + name, nil
}

type fakeImages struct {
	mu      sync.Mutex
	calls   [][]string
	outcome *models.Outcome
	err     error
}

func (f *fakeImages) ExtractText(ctx context.Context, images []string) (models.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), images...))
	f.mu.Unlock()
	if f.err != nil {
		return models.Outcome{}, f.err
	}
	if f.outcome != nil {
		return *f.outcome, nil
	}
	sorted := append([]string(nil), images...)
	sort.Strings(sorted)
	return models.OK("images[" + strings.Join(sorted, ",") + "]"), nil
}

func (f *fakeImages) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// fakePDFs returns "pdf:<name>" per file, or a ReadError for names in broken.
type fakePDFs struct {
	mu     sync.Mutex
	seen   []string
	broken map[string]bool
	block  chan struct{}
}

func (f *fakePDFs) ExtractText(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	f.mu.Lock()
	f.seen = append(f.seen, name)
	f.mu.Unlock()
	if f.block != nil && !f.broken[name] {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.broken[name] {
		return "", &pdf.ReadError{Path: path, Err: errors.New("broken xref")}
	}
	return "pdf:" + name, nil
}

package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	"github.com/kpauljoseph/studyguide/pkg/logger"
	"github.com/kpauljoseph/studyguide/pkg/models"
)

var extensionKinds = map[string]models.FileKind{
	".png":  models.KindImage,
	".jpg":  models.KindImage,
	".jpeg": models.KindImage,
	".bmp":  models.KindImage,
	".tiff": models.KindImage,
	".gif":  models.KindImage,
	".pdf":  models.KindPDF,
}

// KindOf classifies by extension only; file contents are never inspected.
func KindOf(path string) models.FileKind {
	return extensionKinds[strings.ToLower(filepath.Ext(path))]
}

// KeyFunc maps a file path to the key the manifest stores for it.
type KeyFunc func(path string) (string, error)

// AbsoluteKey keys files by their absolute, cleaned path.
func AbsoluteKey(path string) (string, error) {
	return filepath.Abs(path)
}

// RelativeKey keys files relative to root, in slash form.
func RelativeKey(root string) KeyFunc {
	return func(path string) (string, error) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		return filepath.ToSlash(rel), nil
	}
}

// Seen reports whether a key was already processed.
type Seen interface {
	Processed(key string) bool
}

type DirectoryScanner struct {
	logger *logger.Logger
}

func New(logger *logger.Logger) *DirectoryScanner {
	return &DirectoryScanner{
		logger: logger,
	}
}

var errStopWalk = errors.New("scanner: stop walk")

// Tasks walks root lazily. Ranging over the sequence again walks the tree again.
// Files whose key is already in seen are left out. A walk error is yielded once
// as the final element.
func (s *DirectoryScanner) Tasks(ctx context.Context, root string, key KeyFunc, seen Seen) iter.Seq2[models.Task, error] {
	if key == nil {
		key = AbsoluteKey
	}
	return func(yield func(models.Task, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				return fmt.Errorf("error accessing path %s: %w", path, err)
			}

			if d.IsDir() {
				s.logger.Trace("Scanning directory: %s", path)
				return nil
			}

			kind := KindOf(path)
			if kind == models.KindSkip {
				return nil
			}

			k, err := key(path)
			if err != nil {
				return err
			}
			if seen != nil && seen.Processed(k) {
				s.logger.Debug("Skipping already processed file: %s", k)
				return nil
			}

			if !yield(models.Task{Path: path, Key: k, Kind: kind}, nil) {
				return errStopWalk
			}
			return nil
		})

		if err != nil && !errors.Is(err, errStopWalk) {
			yield(models.Task{}, err)
		}
	}
}

// Collect drains a task sequence, stopping at the first error.
func Collect(seq iter.Seq2[models.Task, error]) ([]models.Task, error) {
	var tasks []models.Task
	for task, err := range seq {
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kpauljoseph/studyguide/internal/manifest"
	"github.com/kpauljoseph/studyguide/internal/scanner"
	"github.com/kpauljoseph/studyguide/internal/studyguide"
	"github.com/kpauljoseph/studyguide/pkg/logger"
	"github.com/kpauljoseph/studyguide/pkg/models"
)

type ImageEncoder interface {
	Encode(ctx context.Context, path string) (string, error)
}

type ImageExtractor interface {
	ExtractText(ctx context.Context, images []string) (models.Outcome, error)
}

type PDFExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

type Options struct {
	// Concurrency caps in-flight tasks; zero or less means no cap.
	Concurrency int
	// FailFast makes the first task failure fail the batch. Otherwise each
	// failure is recorded on its own result and siblings carry on.
	FailFast bool
	// ResetCorruptManifest treats an unreadable manifest as empty instead of
	// refusing to run.
	ResetCorruptManifest bool
	// ManifestFile and ResultsFile name the ledger and text output of a
	// directory batch. Relative names resolve against the directory.
	ManifestFile string
	ResultsFile  string
}

// Scope is what one batch runs against.
type Scope struct {
	Root         string
	ManifestPath string
	ResultsPath  string
	Key          scanner.KeyFunc
}

// TaskError ties a failure to the files it concerns.
type TaskError struct {
	Paths []string
	Kind  models.FileKind
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("failed to process %s %s: %v", e.Kind, strings.Join(e.Paths, ", "), e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

type Processor struct {
	scanner *scanner.DirectoryScanner
	encoder ImageEncoder
	images  ImageExtractor
	pdfs    PDFExtractor
	opts    Options
	logger  *logger.Logger
}

func NewProcessor(enc ImageEncoder, images ImageExtractor, pdfs PDFExtractor, opts Options, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	if opts.ManifestFile == "" {
		opts.ManifestFile = "manifest.json"
	}
	if opts.ResultsFile == "" {
		opts.ResultsFile = "ocr-results.txt"
	}
	return &Processor{
		scanner: scanner.New(log),
		encoder: enc,
		images:  images,
		pdfs:    pdfs,
		opts:    opts,
		logger:  log,
	}
}

func (p *Processor) DirectoryScope(root string) (Scope, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Scope{}, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	resolve := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(abs, name)
	}
	return Scope{
		Root:         abs,
		ManifestPath: resolve(p.opts.ManifestFile),
		ResultsPath:  resolve(p.opts.ResultsFile),
		Key:          scanner.AbsoluteKey,
	}, nil
}

func GuideScope(guide *studyguide.Guide) Scope {
	return Scope{
		Root:         guide.Dir,
		ManifestPath: guide.ManifestPath(),
		ResultsPath:  guide.ResultsPath(),
		Key:          scanner.RelativeKey(guide.Dir),
	}
}

func (p *Processor) ProcessDirectory(ctx context.Context, root string) (*models.Batch, error) {
	scope, err := p.DirectoryScope(root)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, scope)
}

func (p *Processor) ProcessStudyGuide(ctx context.Context, guide *studyguide.Guide) (*models.Batch, error) {
	return p.Process(ctx, GuideScope(guide))
}

// ProcessFile extracts one file of a guide on its own and saves the text next
// to it as <file>.txt. The file is marked in the guide manifest under the key a
// guide batch would use, so later batches skip it. Unlike a batch, the mark is
// written only once extraction succeeds.
func (p *Processor) ProcessFile(ctx context.Context, guide *studyguide.Guide, path string) (models.TaskResult, error) {
	kind := scanner.KindOf(path)
	result := models.TaskResult{Paths: []string{path}, Kind: kind}
	failed := func(err error) (models.TaskResult, error) {
		result.Outcome = models.Failed(err)
		return result, err
	}
	if kind == models.KindSkip {
		return failed(fmt.Errorf("unsupported file type: %s", filepath.Base(path)))
	}

	scope := GuideScope(guide)
	key, err := scope.Key(path)
	if err != nil {
		return failed(err)
	}
	store := manifest.NewStore(scope.ManifestPath, p.logger, manifest.WithResetOnCorrupt(p.opts.ResetCorruptManifest))
	m, err := store.Load()
	if err != nil {
		return failed(err)
	}

	var outcome models.Outcome
	switch kind {
	case models.KindImage:
		p.logger.Info("Processing image: %s", path)
		var payload string
		payload, err = p.encoder.Encode(ctx, path)
		if err == nil {
			outcome, err = p.images.ExtractText(ctx, []string{payload})
		}
	case models.KindPDF:
		p.logger.Info("Processing PDF file: %s", path)
		var text string
		text, err = p.pdfs.ExtractText(ctx, path)
		outcome = models.OK(text)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed(ctxErr)
		}
		return failed(&TaskError{Paths: result.Paths, Kind: kind, Err: err})
	}

	if err := guide.SaveText(path, outcome.Text); err != nil {
		return failed(err)
	}
	m.Mark(key)
	if err := store.Save(m); err != nil {
		return failed(err)
	}
	result.Outcome = outcome
	p.logger.Info("Saved text of %s to %s", filepath.Base(path), filepath.Base(guide.TextPath(path)))
	return result, nil
}

// Process runs one batch: load the manifest, classify new files, reserve
// them in the manifest, extract everything concurrently, commit the manifest
// once, and append the batch's text to the results file.
//
// Reservation happens before extraction, so a file whose extraction fails is
// still recorded as processed and is not retried by later batches.
func (p *Processor) Process(ctx context.Context, scope Scope) (*models.Batch, error) {
	batch := &models.Batch{
		ID:        uuid.NewString(),
		Root:      scope.Root,
		StartTime: time.Now(),
	}
	log := p.logger.Named(fmt.Sprintf("%s[batch %s] ", p.logger.Prefix(), batch.ID[:8]))

	store := manifest.NewStore(scope.ManifestPath, log, manifest.WithResetOnCorrupt(p.opts.ResetCorruptManifest))
	m, err := store.Load()
	if err != nil {
		return nil, err
	}

	log.Info("Scanning directory: %s", scope.Root)
	seen := &skipCounter{seen: m}
	tasks, err := scanner.Collect(p.scanner.Tasks(ctx, scope.Root, scope.Key, seen))
	if err != nil {
		return nil, err
	}
	batch.Classified = tasks
	log.Info("Found %d new file(s), skipped %d already processed", len(tasks), seen.skipped)

	// phase 1: reserve
	for _, task := range tasks {
		m.Mark(task.Key)
	}

	results, runErr := p.run(ctx, log, tasks)
	batch.Results = results

	// phase 2: commit, whatever the extraction outcome
	if err := store.Save(m); err != nil {
		if runErr != nil {
			return batch, errors.Join(runErr, err)
		}
		return batch, err
	}
	if runErr != nil {
		batch.EndTime = time.Now()
		return batch, runErr
	}

	if err := appendResults(scope.ResultsPath, batch.Texts()); err != nil {
		return batch, err
	}

	batch.EndTime = time.Now()
	log.Info("Batch complete: %d result(s), %d failure(s) in %s", len(batch.Results), len(batch.Failures()), batch.EndTime.Sub(batch.StartTime).Round(time.Millisecond))
	return batch, nil
}

// skipCounter counts the eligible files a scan leaves out as processed.
type skipCounter struct {
	seen    scanner.Seen
	skipped int
}

func (c *skipCounter) Processed(key string) bool {
	if c.seen.Processed(key) {
		c.skipped++
		return true
	}
	return false
}

type collector struct {
	mu      sync.Mutex
	results []models.TaskResult
}

func (c *collector) add(r models.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) snapshot() []models.TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.TaskResult(nil), c.results...)
}

func (p *Processor) limit() int {
	if p.opts.Concurrency <= 0 {
		return -1
	}
	return p.opts.Concurrency
}

// fail records a task failure. Under FailFast it also returns the error so
// the group cancels its siblings.
func (p *Processor) fail(log *logger.Logger, out *collector, paths []string, kind models.FileKind, err error) error {
	taskErr := &TaskError{Paths: paths, Kind: kind, Err: err}
	log.Error("%v", taskErr)
	out.add(models.TaskResult{Paths: paths, Kind: kind, Outcome: models.Failed(err)})
	if p.opts.FailFast {
		return taskErr
	}
	return nil
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, tasks []models.Task) ([]models.TaskResult, error) {
	var images []models.Task
	out := &collector{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit())

	for _, task := range tasks {
		switch task.Kind {
		case models.KindImage:
			images = append(images, task)
		case models.KindPDF:
			task := task
			g.Go(func() error {
				return p.extractPDF(gctx, log, out, task)
			})
		}
	}

	if len(images) > 0 {
		g.Go(func() error {
			return p.extractImages(gctx, log, out, images)
		})
	}

	err := g.Wait()
	return out.snapshot(), err
}

func (p *Processor) extractPDF(ctx context.Context, log *logger.Logger, out *collector, task models.Task) error {
	log.Info("Processing PDF file: %s", task.Path)
	text, err := p.pdfs.ExtractText(ctx, task.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.fail(log, out, []string{task.Path}, models.KindPDF, err)
	}
	out.add(models.TaskResult{Paths: []string{task.Path}, Kind: models.KindPDF, Outcome: models.OK(text)})
	return nil
}

// extractImages encodes every image concurrently and then sends all payloads
// that encoded cleanly in a single extraction call.
func (p *Processor) extractImages(ctx context.Context, log *logger.Logger, out *collector, images []models.Task) error {
	payloads := make([]string, len(images))
	encodeErrs := make([]error, len(images))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(p.limit())
	for i, task := range images {
		i, task := i, task
		eg.Go(func() error {
			log.Info("Processing image: %s", task.Path)
			payload, err := p.encoder.Encode(ectx, task.Path)
			if err != nil {
				encodeErrs[i] = err
				if p.opts.FailFast {
					return &TaskError{Paths: []string{task.Path}, Kind: models.KindImage, Err: err}
				}
				return nil
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var taskErr *TaskError
		if errors.As(err, &taskErr) {
			return p.fail(log, out, taskErr.Paths, models.KindImage, taskErr.Err)
		}
		return err
	}

	var (
		paths   []string
		encoded []string
	)
	for i, task := range images {
		if encodeErrs[i] != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err := p.fail(log, out, []string{task.Path}, models.KindImage, encodeErrs[i]); err != nil {
				return err
			}
			continue
		}
		paths = append(paths, task.Path)
		encoded = append(encoded, payloads[i])
	}
	if len(encoded) == 0 {
		return nil
	}

	outcome, err := p.images.ExtractText(ctx, encoded)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.fail(log, out, paths, models.KindImage, err)
	}
	out.add(models.TaskResult{Paths: paths, Kind: models.KindImage, Outcome: outcome})
	return nil
}

// appendResults adds one run of texts to the results file. Earlier content
// is kept; a newline separates it from the new run.
func appendResults(path string, texts []string) error {
	if len(texts) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat results file: %w", err)
	}

	var b strings.Builder
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return fmt.Errorf("failed to read results file: %w", err)
		}
		if last[0] != '\n' {
			b.WriteByte('\n')
		}
	}
	b.WriteString(strings.Join(texts, "\n"))

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to append results: %w", err)
	}
	return nil
}

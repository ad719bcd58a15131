// Package cli implements the studyguide command: flag parsing, wiring of
// the pipeline, materials and chat components, and batch reporting.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kpauljoseph/studyguide/internal/chat"
	"github.com/kpauljoseph/studyguide/internal/config"
	"github.com/kpauljoseph/studyguide/internal/encoder"
	"github.com/kpauljoseph/studyguide/internal/materials"
	"github.com/kpauljoseph/studyguide/internal/ollama"
	"github.com/kpauljoseph/studyguide/internal/pdf"
	"github.com/kpauljoseph/studyguide/internal/pipeline"
	"github.com/kpauljoseph/studyguide/internal/studyguide"
	"github.com/kpauljoseph/studyguide/pkg/logger"
	"github.com/kpauljoseph/studyguide/pkg/models"
	"github.com/kpauljoseph/studyguide/pkg/updater"
	"github.com/kpauljoseph/studyguide/pkg/version"
)

var ErrUsage = errors.New("usage error")

const usage = `Usage: studyguide [flags] <command> [args]

Commands:
  process -dir DIR | -guide NAME   extract text from new images and PDFs
  create NAME                      create a study guide
  add [-ocr] NAME FILE...          copy files into a study guide, optionally extracting their text now
  list                             list study guides
  delete NAME                      delete a study guide and its manifest
  generate NAME                    generate study materials from a guide's text
  show NAME                        print a guide's saved materials
  ask NAME QUESTION...             ask a question about a guide's materials
  version [-check]                 print the version, optionally checking for updates

Flags:
`

type App struct {
	stdout io.Writer
	stderr io.Writer

	// ReleaseURL overrides the update endpoint; empty means the default.
	ReleaseURL string

	cfg     *config.Config
	logger  *logger.Logger
	checker *updater.Checker
}

func New(stdout, stderr io.Writer) *App {
	return &App{stdout: stdout, stderr: stderr}
}

// Run parses args (without the program name) and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("studyguide", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", "config.yaml", "path to config file")
	envFile := fs.String("env", ".env", "path to .env file with overrides")
	guidesDir := fs.String("guides-dir", "", "study guides directory (overrides config)")
	ollamaURL := fs.String("ollama-url", "", "Ollama base URL (overrides config)")
	concurrency := fs.Int("concurrency", 0, "maximum concurrent extraction tasks (overrides config)")
	failFast := fs.Bool("fail-fast", false, "fail the whole batch on the first task failure")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	debug := fs.Bool("debug", false, "enable debug mode with trace logging")
	fs.Usage = func() {
		fmt.Fprint(a.stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if *guidesDir != "" {
		cfg.StudyGuidesDir = *guidesDir
	}
	if *ollamaURL != "" {
		cfg.Ollama.URL = *ollamaURL
	}
	if *concurrency > 0 {
		cfg.Processing.Concurrency = *concurrency
	}
	if *failFast {
		cfg.Processing.FailFast = true
	}
	a.cfg = cfg

	a.logger = logger.New(
		logger.WithOutput(a.stderr),
		logger.WithPrefix("[studyguide] "),
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
	)
	a.logger.SetVerbose(*verbose)
	if *debug {
		a.logger.SetLevel(logger.LevelTrace)
	}
	if *verbose {
		a.logger.Debug("Verbose logging enabled")
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "process":
		return a.process(ctx, cmdArgs)
	case "create":
		return a.withName(cmdArgs, a.create)
	case "add":
		return a.add(ctx, cmdArgs)
	case "list":
		return a.list()
	case "delete":
		return a.withName(cmdArgs, a.delete)
	case "generate":
		return a.withName(cmdArgs, func(name string) error { return a.generate(ctx, name) })
	case "show":
		return a.withName(cmdArgs, a.show)
	case "ask":
		return a.ask(ctx, cmdArgs)
	case "version":
		return a.version(ctx, cmdArgs)
	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) withName(args []string, fn func(name string) error) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one study guide name", ErrUsage)
	}
	return fn(args[0])
}

func (a *App) library() *studyguide.Library {
	return studyguide.NewLibrary(a.cfg.StudyGuidesDir, a.logger)
}

func (a *App) ollamaClient() *ollama.Client {
	return ollama.NewClient(ollama.Config{
		URL:       a.cfg.Ollama.URL,
		OCRModel:  a.cfg.Ollama.OCRModel,
		ChatModel: a.cfg.Ollama.ChatModel,
		Timeout:   a.cfg.Ollama.Timeout,
	}, a.logger.Named("[ollama] "))
}

func (a *App) processor() *pipeline.Processor {
	return pipeline.NewProcessor(
		encoder.New(a.logger),
		a.ollamaClient(),
		pdf.NewExtractor(a.logger),
		pipeline.Options{
			Concurrency:          a.cfg.Processing.Concurrency,
			FailFast:             a.cfg.Processing.FailFast,
			ResetCorruptManifest: a.cfg.Processing.ResetCorruptManifest,
			ManifestFile:         a.cfg.Processing.ManifestFile,
			ResultsFile:          a.cfg.Processing.ResultsFile,
		},
		a.logger,
	)
}

func (a *App) process(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	dir := fs.String("dir", "", "directory to process")
	guide := fs.String("guide", "", "study guide to process")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if (*dir == "") == (*guide == "") {
		return fmt.Errorf("%w: process needs exactly one of -dir or -guide", ErrUsage)
	}

	p := a.processor()
	var batchErr error
	if *dir != "" {
		batch, err := p.ProcessDirectory(ctx, *dir)
		a.report(batch)
		batchErr = err
	} else {
		g, err := a.openOrCreate(*guide)
		if err != nil {
			return err
		}
		batch, err := p.ProcessStudyGuide(ctx, g)
		a.report(batch)
		batchErr = err
	}
	if batchErr != nil {
		return fmt.Errorf("batch failed: %w (%s)", batchErr, ErrorKind(batchErr))
	}
	return nil
}

func (a *App) create(name string) error {
	g, err := a.library().Create(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Created study guide %s at %s\n", g.Name, g.Dir)
	return nil
}

// openOrCreate opens the named guide, creating it on first use.
func (a *App) openOrCreate(name string) (*studyguide.Guide, error) {
	g, err := a.library().Open(name)
	if errors.Is(err, studyguide.ErrNotFound) {
		g, err = a.library().Create(name)
	}
	return g, err
}

// add copies files into a guide. With -ocr each file is extracted on its own
// right away; a failure is reported and the remaining files still run.
func (a *App) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	ocr := fs.Bool("ocr", false, "extract the text of each file now")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: add needs a study guide name and at least one file", ErrUsage)
	}

	g, err := a.openOrCreate(fs.Arg(0))
	if err != nil {
		return err
	}

	var (
		p       *pipeline.Processor
		results []models.TaskResult
		errs    []error
	)
	if *ocr {
		p = a.processor()
	}
	for _, src := range fs.Args()[1:] {
		dst, err := g.Import(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.stdout, "Added %s to study guide %s\n", filepath.Base(dst), g.Name)
		if p == nil {
			continue
		}

		result, err := p.ProcessFile(ctx, g, dst)
		results = append(results, result)
		if err != nil {
			if ctx.Err() != nil {
				a.writeResults(results)
				return err
			}
			errs = append(errs, err)
		}
	}
	if p != nil {
		a.writeResults(results)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to add files: %w (%s)", err, ErrorKind(err))
	}
	return nil
}

func (a *App) list() error {
	names, err := a.library().List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(a.stdout, "No study guides found.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}

func (a *App) delete(name string) error {
	if err := a.library().Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted study guide %s\n", name)
	return nil
}

func (a *App) generate(ctx context.Context, name string) error {
	g, err := a.library().Open(name)
	if err != nil {
		return err
	}
	texts, err := g.Texts()
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("study guide %s has no extracted text yet, run process first", name)
	}

	m, err := materials.NewGenerator(a.ollamaClient(), a.logger).Generate(ctx, texts)
	if err != nil {
		return err
	}
	if err := materials.NewStore(g.MaterialsPath(), a.logger).Save(m); err != nil {
		return err
	}
	fmt.Fprint(a.stdout, materials.Format(m))
	return nil
}

func (a *App) loadMaterials(name string) (materials.Materials, error) {
	g, err := a.library().Open(name)
	if err != nil {
		return materials.Materials{}, err
	}
	m, err := materials.NewStore(g.MaterialsPath(), a.logger).Load()
	if err != nil {
		return materials.Materials{}, err
	}
	if m.IsEmpty() {
		return materials.Materials{}, fmt.Errorf("study guide %s has no materials yet, run generate first", name)
	}
	return m, nil
}

func (a *App) show(name string) error {
	m, err := a.loadMaterials(name)
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, materials.Format(m))
	return nil
}

func (a *App) ask(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: ask needs a study guide name and a question", ErrUsage)
	}
	m, err := a.loadMaterials(args[0])
	if err != nil {
		return err
	}
	session, err := chat.NewSession(m, a.ollamaClient(), a.logger)
	if err != nil {
		return err
	}
	answer, err := session.Ask(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Answer: %s\n", answer)
	return nil
}

func (a *App) version(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	check := fs.Bool("check", false, "check for a newer release")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	fmt.Fprint(a.stdout, version.GetDetailedVersionInfo())
	if !*check {
		return nil
	}

	if a.checker == nil {
		var opts []updater.Option
		if a.ReleaseURL != "" {
			opts = append(opts, updater.WithReleaseURL(a.ReleaseURL))
		}
		a.checker = updater.NewChecker(a.logger, opts...)
	}
	info, err := a.checker.CheckForUpdates(ctx)
	switch {
	case errors.Is(err, updater.ErrCheckedRecently):
		fmt.Fprintln(a.stdout, "Update check skipped: already checked within the last hour.")
		return nil
	case err != nil:
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if info.IsAvailable {
		fmt.Fprintf(a.stdout, "A new version is available: %s (current %s)\n%s\n", info.LatestVersion, info.CurrentVersion, info.DownloadURL)
	} else {
		fmt.Fprintln(a.stdout, "You are running the latest version.")
	}
	return nil
}

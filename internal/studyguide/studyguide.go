package studyguide

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kpauljoseph/studyguide/pkg/logger"
)

const MaterialsFile = "materials.json"

var (
	ErrInvalidName = errors.New("invalid study guide name")
	ErrNotFound    = errors.New("study guide not found")
	ErrExists      = errors.New("study guide already exists")
)

// Guide is one study guide directory and the artifacts kept inside it.
// It is passed explicitly to whatever works on the guide.
type Guide struct {
	Name string
	Dir  string
}

func (g *Guide) ManifestPath() string {
	return filepath.Join(g.Dir, fmt.Sprintf("manifest-%s.json", g.Name))
}

func (g *Guide) ResultsPath() string {
	return filepath.Join(g.Dir, fmt.Sprintf("ocr-%s.txt", g.Name))
}

func (g *Guide) MaterialsPath() string {
	return filepath.Join(g.Dir, MaterialsFile)
}

// Import copies src into the top level of the guide and returns the copy's
// path. A file of the same name already in the guide is left alone.
func (g *Guide) Import(src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("failed to import %s: is a directory", src)
	}

	dst := filepath.Join(g.Dir, filepath.Base(src))
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s is already in study guide %s", ErrExists, filepath.Base(src), g.Name)
		}
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return dst, nil
}

// TextPath is where the text of a single source file is kept: the file's
// own name with .txt appended, so page.png becomes page.png.txt.
func (g *Guide) TextPath(source string) string {
	return source + ".txt"
}

func (g *Guide) SaveText(source, text string) error {
	if err := os.WriteFile(g.TextPath(source), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to save text of %s: %w", filepath.Base(source), err)
	}
	return nil
}

// Texts returns the contents of the guide's top-level .txt files, sorted by name.
func (g *Guide) Texts() ([]string, error) {
	entries, err := os.ReadDir(g.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read study guide %s: %w", g.Name, err)
	}

	var texts []string
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(g.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		texts = append(texts, string(data))
	}
	return texts, nil
}

// Library manages study guides under one root directory.
type Library struct {
	root   string
	logger *logger.Logger
}

func NewLibrary(root string, log *logger.Logger) *Library {
	if log == nil {
		log = logger.Discard()
	}
	return &Library{root: root, logger: log}
}

func (l *Library) Root() string {
	return l.root
}

func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "", trimmed == ".", trimmed == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case trimmed != name:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func (l *Library) dir(name string) string {
	return filepath.Join(l.root, name)
}

func (l *Library) Create(name string) (*Guide, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := l.dir(name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create study guide directory: %w", err)
	}
	l.logger.Info("Study guide '%s' created", name)
	return &Guide{Name: name, Dir: dir}, nil
}

func (l *Library) Open(name string) (*Guide, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := l.dir(name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &Guide{Name: name, Dir: dir}, nil
}

// List returns guide names in lexical order. A missing root is an empty library.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list study guides: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the guide directory, and with it the guide's manifest,
// extracted text and materials.
func (l *Library) Delete(name string) error {
	guide, err := l.Open(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(guide.Dir); err != nil {
		return fmt.Errorf("failed to delete study guide %s: %w", name, err)
	}
	l.logger.Info("Study guide '%s' deleted", name)
	return nil
}

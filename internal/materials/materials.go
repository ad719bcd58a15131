package materials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kpauljoseph/studyguide/pkg/logger"
)

const (
	SummaryUnavailable   = "Summary not available."
	QuestionsUnavailable = "Could not generate questions."
)

const (
	summaryPrompt  = "Summarize the following study notes in a short paragraph. Return only the summary.\n\n"
	questionPrompt = "Write up to five practice questions about the following study notes, one per line. Return only the questions.\n\n"
)

type Materials struct {
	Summaries         []string     `json:"summaries"`
	VocabList         []VocabEntry `json:"vocab_list"`
	PracticeQuestions []string     `json:"practice_questions"`
}

// IsEmpty reports whether nothing has been generated yet.
func (m Materials) IsEmpty() bool {
	return len(m.Summaries) == 0 && len(m.VocabList) == 0 && len(m.PracticeQuestions) == 0
}

// Documents returns the summaries followed by the practice questions.
func (m Materials) Documents() []string {
	docs := make([]string, 0, len(m.Summaries)+len(m.PracticeQuestions))
	docs = append(docs, m.Summaries...)
	docs = append(docs, m.PracticeQuestions...)
	return docs
}

// VocabEntry is serialized as a [word, count] pair.
type VocabEntry struct {
	Word  string
	Count int
}

func (v VocabEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{v.Word, v.Count})
}

func (v *VocabEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode vocabulary entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("vocabulary entry has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Word); err != nil {
		return fmt.Errorf("failed to decode vocabulary word: %w", err)
	}
	if err := json.Unmarshal(pair[1], &v.Count); err != nil {
		return fmt.Errorf("failed to decode vocabulary count: %w", err)
	}
	return nil
}

// Completer answers a single prompt. ollama.Client satisfies it.
type Completer interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	completer Completer
	logger    *logger.Logger
}

func NewGenerator(completer Completer, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Discard()
	}
	return &Generator{completer: completer, logger: log}
}

// Generate builds summaries, a vocabulary list and practice questions from
// texts. A failed model call falls back to a placeholder for that text; only
// cancellation aborts the run.
func (g *Generator) Generate(ctx context.Context, texts []string) (Materials, error) {
	m := Materials{
		Summaries:         []string{},
		VocabList:         Vocabulary(texts),
		PracticeQuestions: []string{},
	}

	for i, text := range texts {
		select {
		case <-ctx.Done():
			return Materials{}, ctx.Err()
		default:
		}

		summary, err := g.completer.Chat(ctx, summaryPrompt+text)
		summary = strings.TrimSpace(summary)
		switch {
		case ctx.Err() != nil:
			return Materials{}, ctx.Err()
		case err != nil:
			g.logger.Error("Error generating summary for text %d: %v", i+1, err)
			summary = SummaryUnavailable
		case summary == "":
			g.logger.Warn("Summarizer returned an empty result for text %d", i+1)
			summary = SummaryUnavailable
		default:
			g.logger.Debug("Generated summary for text %d", i+1)
		}
		m.Summaries = append(m.Summaries, summary)

		reply, err := g.completer.Chat(ctx, questionPrompt+text)
		questions := splitQuestions(reply)
		switch {
		case ctx.Err() != nil:
			return Materials{}, ctx.Err()
		case err != nil:
			g.logger.Error("Error generating practice questions for text %d: %v", i+1, err)
			questions = []string{QuestionsUnavailable}
		case len(questions) == 0:
			questions = []string{QuestionsUnavailable}
		default:
			g.logger.Debug("Generated %d practice question(s) for text %d", len(questions), i+1)
		}
		m.PracticeQuestions = append(m.PracticeQuestions, questions...)
	}

	g.logger.Info("Generated materials from %d text(s): %d vocabulary entries", len(texts), len(m.VocabList))
	return m, nil
}

// Vocabulary counts whitespace-separated tokens across all texts, most
// frequent first. Ties keep the order in which words first appeared.
func Vocabulary(texts []string) []VocabEntry {
	counts := map[string]int{}
	var order []string
	for _, text := range texts {
		for _, word := range strings.Fields(text) {
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	entries := make([]VocabEntry, len(order))
	for i, word := range order {
		entries[i] = VocabEntry{Word: word, Count: counts[word]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func splitQuestions(reply string) []string {
	var questions []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.)"))
		if line != "" {
			questions = append(questions, line)
		}
	}
	return questions
}

// Format renders materials as plain text sections.
func Format(m Materials) string {
	var b strings.Builder
	b.WriteString("Summaries:\n")
	for _, s := range m.Summaries {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nVocabulary List:\n")
	for _, v := range m.VocabList {
		fmt.Fprintf(&b, "%s: %d\n", v.Word, v.Count)
	}
	b.WriteString("\nPractice Questions:\n")
	for _, q := range m.PracticeQuestions {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	return b.String()
}

// Store persists materials as JSON at one path.
type Store struct {
	path   string
	logger *logger.Logger
}

func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{path: path, logger: log}
}

// Load returns empty materials when nothing has been saved yet.
func (s *Store) Load() (Materials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Materials{}, nil
	}
	if err != nil {
		return Materials{}, fmt.Errorf("failed to read materials: %w", err)
	}

	var m Materials
	if err := json.Unmarshal(data, &m); err != nil {
		return Materials{}, fmt.Errorf("failed to parse materials %s: %w", s.path, err)
	}
	return m, nil
}

func (s *Store) Save(m Materials) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode materials: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".materials-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write materials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace materials: %w", err)
	}

	s.logger.Info("Materials saved to %s", s.path)
	return nil
}

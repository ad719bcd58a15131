package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kpauljoseph/studyguide/internal/materials"
	"github.com/kpauljoseph/studyguide/pkg/logger"
)

var ErrNoMaterials = errors.New("no study materials to chat about")

// Completer answers a single prompt. ollama.Client satisfies it.
type Completer interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Session answers questions about one set of study materials. Each question
// is grounded on the single closest material document.
type Session struct {
	index     *Index
	completer Completer
	logger    *logger.Logger
}

func NewSession(m materials.Materials, completer Completer, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Discard()
	}
	docs := m.Documents()
	if len(docs) == 0 {
		return nil, ErrNoMaterials
	}

	index, err := NewIndex(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to index materials: %w", err)
	}
	log.Info("Chat session initialized with %d document(s), %d term(s)", index.Len(), index.Terms())

	return &Session{index: index, completer: completer, logger: log}, nil
}

func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}

	material, score, ok, err := s.index.Nearest(question)
	if err != nil {
		return "", err
	}

	prompt := question
	if ok {
		s.logger.Debug("Retrieved context with similarity %.3f", score)
		prompt = BuildPrompt(material, question)
	} else {
		s.logger.Debug("No related material found, asking without context")
	}

	answer, err := s.completer.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to get answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	s.logger.Info("Answer: %s", answer)
	return answer, nil
}

func BuildPrompt(material, question string) string {
	return fmt.Sprintf("Use the following study material to answer the question.\n\nMaterial:\n%s\n\nQuestion: %s", material, question)
}

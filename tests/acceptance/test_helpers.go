package acceptance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/kpauljoseph/studyguide/internal/ollama"
)

// FakeOllama is an in-process stand-in for the /api/chat endpoint. Image
// requests are answered with a count of the images received, summary and
// question prompts with canned text, anything else with Answer.
type FakeOllama struct {
	*httptest.Server

	Answer string

	mu       sync.Mutex
	status   int
	empty    bool
	requests []ollama.ChatRequest
}

func NewFakeOllama() *FakeOllama {
	f := &FakeOllama{Answer: "Cells divide by mitosis.", status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// FailWith makes every later request answer with status.
func (f *FakeOllama) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// AnswerEmpty makes every later request answer without choices.
func (f *FakeOllama) AnswerEmpty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.empty = true
}

func (f *FakeOllama) Requests() []ollama.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ollama.ChatRequest(nil), f.requests...)
}

// ImageRequests returns only the requests that carried images.
func (f *FakeOllama) ImageRequests() []ollama.ChatRequest {
	var out []ollama.ChatRequest
	for _, req := range f.Requests() {
		for _, m := range req.Messages {
			if len(m.Images) > 0 {
				out = append(out, req)
				break
			}
		}
	}
	return out
}

func (f *FakeOllama) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ollama.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var flags struct {
		Stream *bool `json:"stream"`
	}
	json.Unmarshal(body, &flags)
	streamed := flags.Stream == nil || *flags.Stream

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, empty := f.status, f.empty
	f.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "model unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if empty {
		fmt.Fprint(w, `{"choices":[]}`)
		return
	}

	content := f.Answer
	if len(req.Messages) > 0 {
		msg := req.Messages[0]
		switch {
		case len(msg.Images) > 0:
			content = fmt.Sprintf("transcribed %d image(s)", len(msg.Images))
		case strings.HasPrefix(msg.Content, "Summarize"):
			content = "Notes about cells."
		case strings.HasPrefix(msg.Content, "Write up to five"):
			content = "1. What is mitosis?\n2. What is a cell?"
		}
	}

	// Like Ollama, answer in newline-delimited chunks unless asked not to.
	if streamed {
		for _, part := range strings.SplitAfter(content, " ") {
			writeChoice(w, part)
		}
		return
	}
	writeChoice(w, content)
}

func writeChoice(w io.Writer, content string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": content},
			},
		},
	})
}

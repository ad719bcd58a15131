package models

import (
	"strings"
	"time"
)

type FileKind int

const (
	KindSkip FileKind = iota
	KindImage
	KindPDF
)

func (k FileKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "skip"
	}
}

// Task is one classified source file. Key is what the manifest records for it.
type Task struct {
	Path string
	Key  string
	Kind FileKind
}

type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// NoTextFound is what an image extraction yields when the model answered
// without any choices.
const NoTextFound = "No text found in the image."

// Outcome replaces the sentinel-string-or-error convention with an explicit variant.
type Outcome struct {
	Status Status
	Text   string
	Err    error
}

func OK(text string) Outcome {
	return Outcome{Status: StatusOK, Text: text}
}

func Empty() Outcome {
	return Outcome{Status: StatusEmpty, Text: NoTextFound}
}

func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// TaskResult pairs an outcome with the files it came from. An image
// extraction covers every image of the batch, so Paths may hold several.
type TaskResult struct {
	Paths   []string
	Kind    FileKind
	Outcome Outcome
}

type Batch struct {
	ID         string
	Root       string
	StartTime  time.Time
	EndTime    time.Time
	Classified []Task
	Results    []TaskResult
}

// Texts returns the text of every result that produced one, in completion order.
func (b *Batch) Texts() []string {
	if b == nil {
		return nil
	}
	var texts []string
	for _, r := range b.Results {
		if r.Outcome.Status == StatusFailed {
			continue
		}
		texts = append(texts, r.Outcome.Text)
	}
	return texts
}

func (b *Batch) Failures() []TaskResult {
	if b == nil {
		return nil
	}
	var failed []TaskResult
	for _, r := range b.Results {
		if r.Outcome.Status == StatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

func (b *Batch) Joined() string {
	return strings.Join(b.Texts(), "\n")
}

package chat

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// Index is a sparse TF-IDF index over a fixed set of documents. Term weights
// use smoothed idf and every vector is L2-normalized, so the dot product of
// two vectors is their cosine similarity.
type Index struct {
	docs    []string
	idf     map[string]float64
	vectors []map[string]float64
}

func NewIndex(docs []string) (*Index, error) {
	idx := &Index{
		docs: docs,
		idf:  map[string]float64{},
	}

	counts := make([]map[string]int, len(docs))
	df := map[string]int{}
	for i, doc := range docs {
		terms, err := tokenize(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize document %d: %w", i, err)
		}
		counts[i] = termCounts(terms)
		for term := range counts[i] {
			df[term]++
		}
	}

	n := float64(len(docs))
	for term, d := range df {
		idx.idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}

	idx.vectors = make([]map[string]float64, len(docs))
	for i := range docs {
		idx.vectors[i] = idx.weigh(counts[i])
	}
	return idx, nil
}

func (idx *Index) Len() int {
	return len(idx.docs)
}

func (idx *Index) Terms() int {
	return len(idx.idf)
}

// Nearest returns the document most similar to query. ok is false when the
// query shares no term with any document.
func (idx *Index) Nearest(query string) (doc string, score float64, ok bool, err error) {
	terms, err := tokenize(query)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to tokenize query: %w", err)
	}
	q := idx.weigh(termCounts(terms))
	if len(q) == 0 {
		return "", 0, false, nil
	}

	best := -1
	for i, vec := range idx.vectors {
		s := dot(q, vec)
		if s > score {
			best, score = i, s
		}
	}
	if best < 0 {
		return "", 0, false, nil
	}
	return idx.docs[best], score, true, nil
}

// weigh turns raw counts into a normalized tf-idf vector. Terms the index has
// never seen are dropped.
func (idx *Index) weigh(counts map[string]int) map[string]float64 {
	vec := map[string]float64{}
	var norm float64
	for term, c := range counts {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		w := float64(c) * idf
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}

func termCounts(terms []string) map[string]int {
	counts := map[string]int{}
	for _, t := range terms {
		counts[t]++
	}
	return counts
}

// tokenize lowercases prose tokens and keeps those with at least two letters
// or digits.
func tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}

	var terms []string
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		alnum := 0
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				alnum++
			}
		}
		if alnum >= 2 {
			terms = append(terms, word)
		}
	}
	return terms, nil
}

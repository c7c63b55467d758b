// Package classifier holds the fitted text model used by the learned
// classifier backend and the on-disk store for its artifacts.
package classifier

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

// Vectorizer is a fitted TF-IDF feature extractor.
type Vectorizer struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// FitVectorizer learns a vocabulary and smoothed inverse document
// frequencies from docs.
func FitVectorizer(docs []string) (*Vectorizer, error) {
	if len(docs) == 0 {
		return nil, errors.New("classifier: cannot fit vectorizer on an empty corpus")
	}

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}
	if len(docFreq) == 0 {
		return nil, errors.New("classifier: corpus has no tokens")
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{Vocabulary: make(map[string]int, len(terms)), IDF: make([]float64, len(terms))}
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return v, nil
}

// Transform maps text to an L2-normalized TF-IDF vector. Terms outside the
// vocabulary are ignored.
func (v *Vectorizer) Transform(text string) []float64 {
	features := make([]float64, len(v.IDF))
	for _, tok := range tokenize(text) {
		if idx, ok := v.Vocabulary[tok]; ok {
			features[idx]++
		}
	}

	var norm float64
	for i := range features {
		features[i] *= v.IDF[i]
		norm += features[i] * features[i]
	}
	if norm == 0 {
		return features
	}
	norm = math.Sqrt(norm)
	for i := range features {
		features[i] /= norm
	}
	return features
}

func (v *Vectorizer) validate() error {
	if v == nil || len(v.Vocabulary) == 0 {
		return errors.New("classifier: vectorizer has no vocabulary")
	}
	if len(v.IDF) != len(v.Vocabulary) {
		return errors.New("classifier: vectorizer idf and vocabulary sizes differ")
	}
	for _, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return errors.New("classifier: vectorizer vocabulary index out of range")
		}
	}
	return nil
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

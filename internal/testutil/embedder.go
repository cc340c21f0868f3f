package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashEmbedder maps each lower-cased word to a bucket of a fixed-size vector.
// Texts sharing words end up close under cosine similarity.
type HashEmbedder struct {
	Dim   int
	Err   error
	calls atomic.Int64
}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 128}
}

// Calls is the number of provider round trips made so far.
func (e *HashEmbedder) Calls() int {
	return int(e.calls.Load())
}

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	dim := e.Dim
	if dim < 2 {
		dim = 128
	}
	v := make([]float32, dim)
	// keeps the vector non-zero for texts without words
	v[0] = 0.01
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[1+int(h.Sum32()%uint32(dim-1))]++
	}
	return v
}

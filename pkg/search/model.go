package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

//go:generate mockgen -package mock -destination mock/model.mock.go -source model.go Model

// Model turns text into a fixed-size embedding vector
type Model interface {
	// Name identifies the model; vectors from different models are never mixed
	Name() string
	// Load prepares the model. It is called once before the first Encode.
	Load(ctx context.Context) error
	Encode(ctx context.Context, text string) ([]float32, error)
}

// HashingModel embeds text offline by hashing unigram and bigram features into
// a fixed number of buckets and L2-normalising the result.
type HashingModel struct {
	dims int
}

// NewHashingModel creates a hashing model producing vectors of size dims
func NewHashingModel(dims int) *HashingModel {
	return &HashingModel{dims: dims}
}

// Name returns the model identifier
func (m *HashingModel) Name() string {
	return fmt.Sprintf("hashing-%d", m.dims)
}

// Load is a no-op; the model has no weights
func (m *HashingModel) Load(_ context.Context) error {
	return nil
}

// Encode returns the normalised feature vector for text. Empty text gives a zero vector.
func (m *HashingModel) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dims)
	tokens := tokenize(text)

	for i, tok := range tokens {
		m.add(vec, tok, 1.0)

		if i > 0 {
			m.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}

	if norm == 0 {
		return vec, nil
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec, nil
}

func (m *HashingModel) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	// The top bit picks the sign so colliding features tend to cancel out
	if sum>>63 == 1 {
		weight = -weight
	}

	vec[sum%uint64(m.dims)] += weight
}

// tokenize lowercases text and splits it on anything that is not a letter or
// digit, so table names such as merchant_risk become two words. A trailing
// plural "s" is dropped from longer words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			words[i] = w[:len(w)-1]
		}
	}

	return words
}

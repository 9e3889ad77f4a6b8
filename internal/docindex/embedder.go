// Package docindex is the retrieval adapter: it chunks and embeds textbook
// text offline, stores the vectors, and answers nearest-neighbour queries
// with the matching passages.
package docindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Embedder produces vector embeddings from text
type Embedder interface {
	// Embed returns a float32 vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension
	Dimension() int
}

// DefaultKeywordDimension is the bucket count used when none is configured.
const DefaultKeywordDimension = 256

// KeywordEmbedder hashes word tokens into a fixed number of buckets and
// L2-normalizes the counts. It needs no external API and is the default
// embedder for the local index.
type KeywordEmbedder struct {
	dimension int
}

// NewKeywordEmbedder creates a keyword embedder with the given bucket count
func NewKeywordEmbedder(dimension int) *KeywordEmbedder {
	if dimension <= 0 {
		dimension = DefaultKeywordDimension
	}
	return &KeywordEmbedder{dimension: dimension}
}

func (e *KeywordEmbedder) Dimension() int {
	return e.dimension
}

func (e *KeywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embedText(text), nil
}

func (e *KeywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = e.embedText(text)
	}
	return result, nil
}

func (e *KeywordEmbedder) embedText(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, word := range tokenize(text) {
		vec[hashString(word)%uint32(e.dimension)] += 1.0
	}
	normalize(vec)
	return vec
}

// CosineSimilarity computes cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA)) * math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// EncodeEmbedding serializes a float32 vector to little-endian bytes for
// SQLite BLOB storage
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserializes bytes written by EncodeEmbedding
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

func normalize(vec []float32) {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range vec {
		vec[i] /= norm
	}
}

// tokenize splits text into lowercase word tokens. Arabic harakat and
// tatweel are dropped and the hamza-carrying alef forms fold to bare alef,
// so vocalized and unvocalized spellings of a word share a token.
func tokenize(text string) []string {
	var words []string
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isHaraka(r) || r == '\u0640':
			continue
		case r == 'أ' || r == 'إ' || r == 'آ' || r == '\u0671':
			word.WriteRune('ا')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return words
}

// isHaraka reports Arabic short-vowel, tanween, shadda and sukun marks.
func isHaraka(r rune) bool {
	return r >= '\u064B' && r <= '\u0652'
}

// hashString is 32-bit FNV-1a.
func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

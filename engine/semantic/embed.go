package semantic

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder maps texts to fixed-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultHashDims is the HashEmbedder dimensionality when none is set.
const DefaultHashDims = 256

// HashMinSimilarity is the relevance floor that suits HashEmbedder scores.
// A short question sharing one entity token with a document scores about
// 0.15, well below what a model embedder produces for the same pair.
const HashMinSimilarity = 0.1

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// HashEmbedder is a deterministic bag-of-tokens embedder: each lowercase
// alphanumeric token is hashed with FNV-1a into one of Dims buckets and the
// result is L2-normalised. All-digit tokens such as coordinate fragments are
// skipped. It needs no model and is stable across processes.
type HashEmbedder struct {
	Dims int
}

func (h HashEmbedder) dims() int {
	if h.Dims <= 0 {
		return DefaultHashDims
	}
	return h.Dims
}

// Embed never fails.
func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h HashEmbedder) vector(text string) []float32 {
	n := h.dims()
	v := make([]float32, n)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if digitsOnly(tok) {
			continue
		}
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%uint32(n)]++
	}
	return normalize(v)
}

func digitsOnly(tok string) bool {
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}

// normalize scales v to unit length in place. Zero vectors are returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Package semantic implements the retrieval corpus: document embedding,
// cosine-similarity retrieval and an optional Qdrant nearest-neighbour index.
package semantic

import (
	"context"
	"log/slog"
	"sort"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// NearestIndex is an exact nearest-neighbour index over the corpus vectors.
// Search returns corpus positions, best first.
type NearestIndex interface {
	Index(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]int, error)
}

// Scored is a document with its cosine similarity to the query.
type Scored struct {
	Doc   domain.Document `json:"doc"`
	Score float64         `json:"score"`
}

// Texts returns the document texts of scored, in order.
func Texts(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Doc.Text
	}
	return out
}

// Options configures Build. A nil Embedder puts the index in degraded mode.
type Options struct {
	Embedder Embedder
	Nearest  NearestIndex
	Logger   *slog.Logger
}

// Index is read-only after Build and safe for concurrent use.
type Index struct {
	docs     []domain.Document
	matrix   [][]float32
	embedder Embedder
	nearest  NearestIndex
	logger   *slog.Logger
}

// Build embeds every document once. Embedding failure does not fail the
// build; the index then serves the first k documents with similarity 1.0.
// A NearestIndex that fails to load is dropped in favour of the scan.
func Build(ctx context.Context, docs []domain.Document, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{docs: append([]domain.Document(nil), docs...), logger: logger}
	if opts.Embedder == nil || len(docs) == 0 {
		if opts.Embedder == nil {
			logger.Warn("semantic: no embedder, retrieval degraded to corpus order")
		}
		idx.embedder = opts.Embedder
		return idx
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := opts.Embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(docs) {
		logger.Warn("semantic: corpus embedding failed, retrieval degraded", "err", err, "docs", len(docs), "vectors", len(vecs))
		return idx
	}
	for i := range vecs {
		vecs[i] = normalize(append([]float32(nil), vecs[i]...))
	}
	idx.matrix = vecs
	idx.embedder = opts.Embedder

	if opts.Nearest != nil {
		if err := opts.Nearest.Index(ctx, idx.docs, vecs); err != nil {
			logger.Warn("semantic: nearest-neighbour index unavailable, using scan", "err", err)
		} else {
			idx.nearest = opts.Nearest
		}
	}
	logger.Info("semantic: corpus built", "docs", len(docs), "indexed", idx.nearest != nil)
	return idx
}

// Len returns the corpus size.
func (x *Index) Len() int { return len(x.docs) }

// Degraded reports whether similarity scoring is unavailable.
func (x *Index) Degraded() bool { return x.matrix == nil }

// Documents returns a copy of the corpus.
func (x *Index) Documents() []domain.Document { return append([]domain.Document(nil), x.docs...) }

// RetrieveTopK returns at most k documents, most similar first.
func (x *Index) RetrieveTopK(ctx context.Context, query string, k int) []domain.Document {
	k = x.clampK(k)
	if k == 0 {
		return nil
	}
	qv, ok := x.embedQuery(ctx, query)
	if !ok {
		return append([]domain.Document(nil), x.docs[:k]...)
	}
	scored := x.search(ctx, qv, k)
	out := make([]domain.Document, len(scored))
	for i, s := range scored {
		out[i] = s.Doc
	}
	return out
}

// RetrieveWithScores returns at most k documents with cosine similarity,
// highest first, ties in corpus order. Degraded mode scores everything 1.0.
func (x *Index) RetrieveWithScores(ctx context.Context, query string, k int) []Scored {
	k = x.clampK(k)
	if k == 0 {
		return nil
	}
	qv, ok := x.embedQuery(ctx, query)
	if !ok {
		out := make([]Scored, k)
		for i := range out {
			out[i] = Scored{Doc: x.docs[i], Score: 1.0}
		}
		return out
	}
	return x.search(ctx, qv, k)
}

// search asks the nearest-neighbour index for candidates and scores them
// against the local matrix. Without an index, or when it fails, every row
// is scanned.
func (x *Index) search(ctx context.Context, qv []float32, k int) []Scored {
	if x.nearest == nil {
		return x.scan(qv, k)
	}
	positions, err := x.nearest.Search(ctx, qv, k)
	if err != nil || !x.validPositions(positions) {
		x.logger.Warn("semantic: nearest-neighbour search failed, using scan", "err", err, "positions", positions)
		return x.scan(qv, k)
	}
	out := make([]Scored, len(positions))
	for i, p := range positions {
		out[i] = Scored{Doc: x.docs[p], Score: dot(x.matrix[p], qv)}
	}
	return out
}

func (x *Index) clampK(k int) int {
	if k <= 0 {
		return 0
	}
	if k > len(x.docs) {
		return len(x.docs)
	}
	return k
}

func (x *Index) embedQuery(ctx context.Context, query string) ([]float32, bool) {
	if x.matrix == nil || x.embedder == nil {
		return nil, false
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		x.logger.Warn("semantic: query embedding failed", "err", err)
		return nil, false
	}
	return normalize(append([]float32(nil), vecs[0]...)), true
}

// scan scores every row of the matrix against qv.
func (x *Index) scan(qv []float32, k int) []Scored {
	scored := make([]Scored, len(x.docs))
	for i, row := range x.matrix {
		scored[i] = Scored{Doc: x.docs[i], Score: dot(row, qv)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored[:k]
}

func (x *Index) validPositions(ps []int) bool {
	for _, p := range ps {
		if p < 0 || p >= len(x.docs) {
			return false
		}
	}
	return true
}

// dot is the cosine similarity of two unit vectors, clamped to [-1, 1].
func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return max(-1, min(1, s))
}

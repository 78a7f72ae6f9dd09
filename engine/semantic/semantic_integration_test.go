//go:build integration

package semantic

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func TestQdrant_IndexMatchesScan(t *testing.T) {
	ctx := context.Background()
	vs, err := NewVectorStore(qdrantAddr(), fmt.Sprintf("transit_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	defer vs.Close()

	scan := Build(ctx, testDocs, Options{Embedder: HashEmbedder{}})
	indexed := Build(ctx, testDocs, Options{Embedder: HashEmbedder{}, Nearest: vs})

	for _, q := range []string{"heavy rain delays", "where is bus B1", "breakdown alternatives"} {
		want := scan.RetrieveTopK(ctx, q, 2)
		got := indexed.RetrieveTopK(ctx, q, 2)
		if len(got) != len(want) || got[0].ID != want[0].ID {
			t.Errorf("%q: indexed %v, scan %v", q, got, want)
		}
		scored := indexed.RetrieveWithScores(ctx, q, 2)
		if len(scored) != 2 || scored[0].Doc.ID != want[0].ID {
			t.Errorf("%q: indexed scores %v, scan %v", q, scored, want)
		}
	}
}

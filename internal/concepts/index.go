// Package concepts serves the read-only insurance concept graph. Nodes live
// in Redis as precomputed hashes with embeddings attached; at runtime they
// are held in an in-process index and ranked by exact cosine similarity.
package concepts

import (
	"math"
	"sort"
)

// Node is one concept graph entry.
type Node struct {
	ID     string
	Memory string
	Vector []float32
}

// Index is an immutable snapshot of the concept graph. Vectors are
// L2-normalized once at build time so a query reduces to a dot product.
type Index struct {
	nodes []Node
}

// NewIndex builds an index over nodes, normalizing their vectors in place.
func NewIndex(nodes []Node) *Index {
	for i := range nodes {
		normalize(nodes[i].Vector)
	}
	return &Index{nodes: nodes}
}

// Len reports the number of indexed nodes.
func (ix *Index) Len() int {
	return len(ix.nodes)
}

// Search returns up to k node memories ranked by cosine similarity to vec.
// Ties keep insertion order. Nodes with a different dimensionality than the
// query are skipped.
func (ix *Index) Search(vec []float32, k int) []string {
	q := append([]float32(nil), vec...)
	normalize(q)

	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, 0, len(ix.nodes))
	for i, n := range ix.nodes {
		if len(n.Vector) != len(q) {
			continue
		}
		scores = append(scores, scored{idx: i, score: dot(n.Vector, q)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = ix.nodes[scores[i].idx].Memory
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

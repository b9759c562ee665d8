// Package duplicates clusters documents whose word-frequency vectors are
// within a Manhattan distance of each other.
package duplicates

import (
	"sort"

	"github.com/google/uuid"
)

type Document struct {
	ID    uuid.UUID
	Words map[string]int
}

// BatchFunc is called after each batch of rows has been compared. Returning
// false stops Detect before the next batch.
type BatchFunc func(done, total int) bool

type cell struct {
	col   int
	count int
}

// Detect returns the connected components of the graph whose edges are the
// document pairs at L1 distance <= maxDifferentWords. Singletons are not
// returned. Components list members in input order and are ordered by their
// first member.
//
// Rows are compared in batches of batchSize. Row i is always compared with
// every row j > i, whichever batch j falls in, so the result does not depend
// on batchSize. A stopped run returns nil.
func Detect(docs []Document, maxDifferentWords, batchSize int, onBatch BatchFunc) [][]uuid.UUID {
	n := len(docs)
	if n < 2 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = n
	}
	rows := matrix(docs)

	uf := newUnionFind(n)
	total := (n + batchSize - 1) / batchSize
	for b := 0; b < total; b++ {
		lo := b * batchSize
		hi := min(lo+batchSize, n)
		for i := lo; i < hi; i++ {
			for j := i + 1; j < n; j++ {
				if distance(rows[i], rows[j], maxDifferentWords) <= maxDifferentWords {
					uf.union(i, j)
				}
			}
		}
		if onBatch != nil && !onBatch(b+1, total) {
			return nil
		}
	}

	groups := map[int][]int{}
	var roots []int
	for i := 0; i < n; i++ {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}
	var out [][]uuid.UUID
	for _, r := range roots {
		members := groups[r]
		if len(members) < 2 {
			continue
		}
		ids := make([]uuid.UUID, len(members))
		for k, idx := range members {
			ids[k] = docs[idx].ID
		}
		out = append(out, ids)
	}
	return out
}

// matrix builds the sparse document-term matrix over the shared vocabulary.
// Each row is sorted by column.
func matrix(docs []Document) [][]cell {
	vocab := map[string]int{}
	var words []string
	for _, d := range docs {
		for w := range d.Words {
			if _, ok := vocab[w]; !ok {
				vocab[w] = 0
				words = append(words, w)
			}
		}
	}
	sort.Strings(words)
	for i, w := range words {
		vocab[w] = i
	}
	rows := make([][]cell, len(docs))
	for i, d := range docs {
		row := make([]cell, 0, len(d.Words))
		for w, c := range d.Words {
			if c != 0 {
				row = append(row, cell{col: vocab[w], count: c})
			}
		}
		sort.Slice(row, func(a, b int) bool { return row[a].col < row[b].col })
		rows[i] = row
	}
	return rows
}

// distance is the L1 distance of two sorted sparse rows. It stops early once
// the running sum exceeds limit, returning a value above limit.
func distance(a, b []cell, limit int) int {
	d, i, j := 0, 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].col < b[j].col):
			d += abs(a[i].count)
			i++
		case i >= len(a) || b[j].col < a[i].col:
			d += abs(b[j].count)
			j++
		default:
			d += abs(a[i].count - b[j].count)
			i++
			j++
		}
		if d > limit {
			return d
		}
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p, rank: make([]int, n)}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

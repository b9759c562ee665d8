package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local Store. It backs tests and single-node dev runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]Vector
}

func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]Vector{}}
}

func (m *Memory) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.data[namespace]
	if ns == nil {
		ns = map[string]Vector{}
		m.data[namespace] = ns
	}
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("vector id is required")
		}
		if len(v.Values) == 0 {
			return fmt.Errorf("vector %q has empty values", id)
		}
		ns[id] = Vector{ID: id, Values: append([]float32(nil), v.Values...), Metadata: cloneMeta(v.Metadata)}
	}
	return nil
}

func (m *Memory) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if topK <= 0 {
		topK = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Match, 0)
	for id, v := range m.data[namespace] {
		if len(v.Values) != len(q) {
			continue
		}
		if len(filter) > 0 && !MatchesFilter(v.Metadata, filter) {
			continue
		}
		out = append(out, Match{ID: id, Score: Cosine(q, v.Values), Metadata: cloneMeta(v.Metadata)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *Memory) Fetch(ctx context.Context, namespace string, ids []string) ([]Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.data[namespace]
	out := make([]Vector, 0, len(ids))
	for _, id := range ids {
		if v, ok := ns[id]; ok {
			out = append(out, Vector{ID: v.ID, Values: append([]float32(nil), v.Values...), Metadata: cloneMeta(v.Metadata)})
		}
	}
	return out, nil
}

func (m *Memory) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.data[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// Len returns the number of vectors stored under namespace.
func (m *Memory) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[namespace])
}

// Cosine similarity; zero when either vector has no magnitude.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneMeta(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

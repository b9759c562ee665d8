// Package pdfx wraps the pdfcpu calls used to count and split PDFs held in
// memory.
package pdfx

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var once sync.Once

// config returns a fresh default configuration. pdfcpu would otherwise create
// a config directory under the user's home on first use.
func config() *model.Configuration {
	once.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

func PageCount(raw []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(raw), config())
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// Pages returns a new PDF holding pages first..last (1-indexed, inclusive).
func Pages(raw []byte, first, last int) ([]byte, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range %d-%d", first, last)
	}
	var out bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", first, last)}
	if err := api.Trim(bytes.NewReader(raw), &out, sel, config()); err != nil {
		return nil, fmt.Errorf("pdf pages %d-%d: %w", first, last, err)
	}
	return out.Bytes(), nil
}

// Ranges splits pages 1..total into consecutive ranges of at most size pages.
func Ranges(total, size int) [][2]int {
	if total <= 0 || size <= 0 {
		return nil
	}
	out := make([][2]int, 0, (total+size-1)/size)
	for start := 1; start <= total; start += size {
		out = append(out, [2]int{start, min(start+size-1, total)})
	}
	return out
}

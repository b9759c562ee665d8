package ingestion

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/pdfx"
)

const (
	ReasonSplit          = "split"
	ReasonBelowThreshold = "below_threshold"
	ReasonUnsupported    = "unsupported"
)

type Chunk struct {
	Filename  string
	Data      []byte
	FirstPage int
	LastPage  int
}

// ChunkResult tells a real split apart from the two ways of getting a single
// unit back.
type ChunkResult struct {
	Chunks  []Chunk
	Chunked bool
	Reason  string
	// Skipped lists ranges that failed to render.
	Skipped []string
}

type Chunker interface {
	Chunk(ctx context.Context, filename string, data []byte, pagesPerChunk int) (*ChunkResult, error)
}

type PDFChunker struct {
	log *logger.Logger
}

func NewPDFChunker(log *logger.Logger) *PDFChunker {
	return &PDFChunker{log: log.With("component", "PDFChunker")}
}

func (c *PDFChunker) Chunk(ctx context.Context, filename string, data []byte, pagesPerChunk int) (*ChunkResult, error) {
	pages, err := pdfx.PageCount(data)
	if err != nil {
		return nil, err
	}
	if pagesPerChunk <= 0 || pages <= pagesPerChunk {
		return &ChunkResult{
			Chunks: []Chunk{{Filename: filename, Data: data, FirstPage: 1, LastPage: pages}},
			Reason: ReasonBelowThreshold,
		}, nil
	}
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	width := len(strconv.Itoa(pages))
	res := &ChunkResult{Chunked: true, Reason: ReasonSplit}
	for _, r := range pdfx.Ranges(pages, pagesPerChunk) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := ChunkName(stem, r[0], r[1], width)
		part, err := pdfx.Pages(data, r[0], r[1])
		if err != nil {
			c.log.Error("Render PDF chunk failed", "filename", filename, "chunk", name, "error", err)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Chunks = append(res.Chunks, Chunk{Filename: name, Data: part, FirstPage: r[0], LastPage: r[1]})
	}
	if len(res.Chunks) == 0 {
		return nil, fmt.Errorf("no chunk of %s could be rendered", filename)
	}
	return res, nil
}

// ChunkName is "{stem}_pages_{start}-{end}.pdf" with both numbers padded to width.
func ChunkName(stem string, start, end, width int) string {
	return fmt.Sprintf("%s_pages_%0*d-%0*d.pdf", stem, width, start, width, end)
}

// NoopChunker is used for text formats without a page model. It always
// returns the input as one unit, flagged as unsupported rather than small.
type NoopChunker struct {
	log *logger.Logger
}

func NewNoopChunker(log *logger.Logger) *NoopChunker {
	return &NoopChunker{log: log.With("component", "NoopChunker")}
}

func (c *NoopChunker) Chunk(ctx context.Context, filename string, data []byte, pagesPerChunk int) (*ChunkResult, error) {
	c.log.Debug("chunking not supported for mime; processing as single unit", "filename", filename)
	return &ChunkResult{
		Chunks: []Chunk{{Filename: filename, Data: data}},
		Reason: ReasonUnsupported,
	}, nil
}

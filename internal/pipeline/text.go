package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/htmlx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/search"
	"github.com/yungbote/dats-backend/internal/platform/storage"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
	"github.com/yungbote/dats-backend/internal/services/metadata"
)

const (
	metaLanguage = metadata.KeyLanguage
	metaMimeType = metadata.KeyMimeType
	metaPages    = metadata.KeyPages
	metaWidth    = metadata.KeyWidth
	metaHeight   = metadata.KeyHeight
	metaDuration = metadata.KeyDuration
)

// TextCargo carries one document through the text stages. Audio, video and
// image cargos hand one of these to the shared text tail.
type TextCargo struct {
	*Base
	Settings types.PreproSettings
	// DocType is the doctype persisted for the document; it differs from
	// text when another modality feeds the tail.
	DocType types.DocType

	Raw     []byte
	RawHTML string
	// Images extracted from a PDF, keyed by their project filename.
	Images map[string][]byte

	HTML     string
	TextMap  *htmlx.TextMap
	Content  string
	Language string

	Tokens          []htmlx.Span
	Sentences       []htmlx.Span
	Entities        []modelworker.Entity
	TokenTimeStarts []int
	TokenTimeEnds   []int
	// prefilled is set when tokens were synthesized upstream, so process is
	// skipped and the extracted text must match Content exactly.
	prefilled bool

	WordFreqs  map[string]int
	MarkedHTML string
	Metadata   map[string]any
	BBoxes     []*types.AutoBBox

	children []childImage
}

type childImage struct {
	Filename   string
	StorageKey string
	MimeType   string
}

func newTextCargo(pl *types.PreprocessingJobPayload, settings types.PreproSettings) *TextCargo {
	return newTextCargoFor(&Base{Payload: pl}, settings, types.DocTypeText)
}

func newTextCargoFor(b *Base, settings types.PreproSettings, dt types.DocType) *TextCargo {
	return &TextCargo{
		Base:     b,
		Settings: settings,
		DocType:  dt,
		Metadata: map[string]any{metaMimeType: b.Payload.MimeType},
	}
}

func (p *Pipeline) runText(ctx context.Context, payloads []*types.PreprocessingJobPayload, settings types.PreproSettings, abort func() bool) []*Base {
	cargos := make([]*TextCargo, 0, len(payloads))
	bases := make([]*Base, 0, len(payloads))
	for _, pl := range payloads {
		c := newTextCargo(pl, settings)
		cargos = append(cargos, c)
		bases = append(bases, c.Base)
	}
	stages := append([]Stage[*TextCargo]{
		Each("load", func(ctx context.Context, c *TextCargo) error {
			raw, err := storage.ReadAll(ctx, p.Storage, c.Payload.StorageKey)
			c.Raw = raw
			return err
		}),
		Each("extract", p.extract),
	}, p.textTail()...)
	runStages(ctx, string(types.DocTypeText), stages, cargos, abort)
	return bases
}

// textTail is the stage sequence every modality ends with.
func (p *Pipeline) textTail() []Stage[*TextCargo] {
	return []Stage[*TextCargo]{
		Each("clean", func(ctx context.Context, c *TextCargo) error {
			c.HTML = p.cleaner.Clean(c.RawHTML)
			return nil
		}),
		Each("extract_text", p.extractText),
		Each("detect_language", func(ctx context.Context, c *TextCargo) error {
			if c.Language == "" {
				c.Language = detectLanguage(c.Content, p.cfg.DefaultLanguage)
			}
			c.Metadata[metaLanguage] = c.Language
			return nil
		}),
		{Name: "process", Run: p.process},
		Each("word_frequencies", func(ctx context.Context, c *TextCargo) error {
			c.WordFreqs = wordFrequencies(c.Content, c.Tokens)
			return nil
		}),
		Each("inject_markers", func(ctx context.Context, c *TextCargo) error {
			marked, err := htmlx.InjectMarkers(c.HTML, c.TextMap, c.Tokens, c.Sentences)
			c.MarkedHTML = marked
			return err
		}),
		Each("index", p.indexDocument),
		{Name: "embed", Run: p.embed},
		Each("store_images", p.storeImages),
		Each("persist", p.persist),
	}
}

func (p *Pipeline) extractText(ctx context.Context, c *TextCargo) error {
	tm, err := htmlx.ExtractText(c.HTML)
	if err != nil {
		return err
	}
	c.TextMap = tm
	if c.prefilled {
		if tm.Text != c.Content {
			return apperrors.Corruption("extract_text", "extracted text differs from synthesized content (%d vs %d bytes)", len(tm.Text), len(c.Content))
		}
		return nil
	}
	c.Content = tm.Text
	return nil
}

// process tokenizes, splits sentences and tags entities. Small batches go one
// document per request; above the bulk threshold documents are grouped by
// language and sent in concurrent batches.
func (p *Pipeline) process(ctx context.Context, batch []*TextCargo) []error {
	errs := make([]error, len(batch))
	pending := make([]int, 0, len(batch))
	for i, c := range batch {
		if !c.prefilled {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return errs
	}
	if p.Text == nil {
		for _, i := range pending {
			errs[i] = fmt.Errorf("no text model configured")
		}
		return errs
	}

	var groups [][]int
	if len(pending) <= p.cfg.BulkThreshold {
		for _, i := range pending {
			groups = append(groups, []int{i})
		}
	} else {
		byLang := map[string][]int{}
		var langs []string
		for _, i := range pending {
			lang := batch[i].Language
			if _, ok := byLang[lang]; !ok {
				langs = append(langs, lang)
			}
			byLang[lang] = append(byLang[lang], i)
		}
		for _, lang := range langs {
			idx := byLang[lang]
			for start := 0; start < len(idx); start += p.cfg.ProcessBatchSize {
				end := min(start+p.cfg.ProcessBatchSize, len(idx))
				groups = append(groups, idx[start:end])
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, group := range groups {
		g.Go(func() error {
			inputs := make([]modelworker.ProcessInput, len(group))
			for k, i := range group {
				c := batch[i]
				inputs[k] = modelworker.ProcessInput{ID: c.DocID().String(), Text: c.Content, Language: c.Language}
			}
			results, err := p.Text.Process(ctx, inputs)
			if err != nil {
				for _, i := range group {
					errs[i] = fmt.Errorf("process: %w", err)
				}
				return nil
			}
			byID := make(map[string]modelworker.ProcessResult, len(results))
			for _, r := range results {
				byID[r.ID] = r
			}
			for _, i := range group {
				c := batch[i]
				r, ok := byID[c.DocID().String()]
				if !ok {
					errs[i] = fmt.Errorf("process: no result for document")
					continue
				}
				c.Tokens = toSpans(r.Tokens)
				c.Sentences = toSpans(r.Sentences)
				c.Entities = r.Entities
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func toSpans(in []modelworker.Span) []htmlx.Span {
	out := make([]htmlx.Span, len(in))
	for i, s := range in {
		out[i] = htmlx.Span{Start: s.Start, End: s.End}
	}
	return out
}

// wordFrequencies counts lower-cased tokens, skipping pure punctuation.
func wordFrequencies(content string, tokens []htmlx.Span) map[string]int {
	out := make(map[string]int)
	for _, t := range tokens {
		if t.Start < 0 || t.End > len(content) || t.Start >= t.End {
			continue
		}
		word := strings.ToLower(content[t.Start:t.End])
		if !strings.ContainsFunc(word, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) {
			continue
		}
		out[word]++
	}
	return out
}

func (p *Pipeline) indexDocument(ctx context.Context, c *TextCargo) error {
	if err := p.Index.EnsureIndex(ctx, c.ProjectID()); err != nil {
		return err
	}
	err := p.Index.IndexDocument(ctx, search.Document{
		SourceDocumentID: c.DocID(),
		ProjectID:        c.ProjectID(),
		Filename:         c.Payload.Filename,
		Name:             c.Payload.Filename,
		DocType:          string(c.DocType),
		Language:         c.Language,
		Content:          c.Content,
		Created:          c.Payload.CreatedAt,
	})
	if err != nil {
		return err
	}
	c.Indexed = true
	return nil
}

type embedJob struct {
	cargo int
	from  int
	texts []string
}

// embed writes one vector per sentence and the mean as the document vector.
// Batches across all cargos share one concurrency limit.
func (p *Pipeline) embed(ctx context.Context, batch []*TextCargo) []error {
	errs := make([]error, len(batch))
	if p.Text == nil || p.Vectors == nil {
		return errs
	}
	sentences := make([][]string, len(batch))
	vectors := make([][][]float32, len(batch))
	var jobs []embedJob
	for i, c := range batch {
		sentences[i] = make([]string, len(c.Sentences))
		for k, s := range c.Sentences {
			sentences[i][k] = c.Content[s.Start:s.End]
		}
		vectors[i] = make([][]float32, len(c.Sentences))
		for from := 0; from < len(sentences[i]); from += p.cfg.EmbedBatchSize {
			to := min(from+p.cfg.EmbedBatchSize, len(sentences[i]))
			jobs = append(jobs, embedJob{cargo: i, from: from, texts: sentences[i][from:to]})
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			out, err := p.Text.EmbedText(ctx, j.texts)
			if err == nil && len(out) != len(j.texts) {
				err = fmt.Errorf("embedder returned %d vectors for %d sentences", len(out), len(j.texts))
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errs[j.cargo] == nil {
					errs[j.cargo] = fmt.Errorf("embed: %w", err)
				}
				return nil
			}
			copy(vectors[j.cargo][j.from:], out)
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range batch {
		if errs[i] != nil || len(vectors[i]) == 0 {
			continue
		}
		errs[i] = p.upsertTextVectors(ctx, c, sentences[i], vectors[i])
	}
	return errs
}

func (p *Pipeline) upsertTextVectors(ctx context.Context, c *TextCargo, sentences []string, vecs [][]float32) error {
	docID := c.DocID()
	ns := vectorstore.Namespace(c.ProjectID(), vectorstore.KindSentence)
	points := make([]vectorstore.Vector, len(vecs))
	ids := make([]string, len(vecs))
	for k, v := range vecs {
		ids[k] = vectorstore.SentenceVectorID(docID, k)
		points[k] = vectorstore.Vector{
			ID:     ids[k],
			Values: v,
			Metadata: map[string]any{
				vectorstore.MetaSourceDocumentID: docID.String(),
				vectorstore.MetaSentenceID:       k,
				vectorstore.MetaText:             sentences[k],
				vectorstore.MetaDocType:          string(c.DocType),
			},
		}
	}
	c.trackVectors(ns, ids...)
	if err := p.Vectors.Upsert(ctx, ns, points); err != nil {
		return fmt.Errorf("upsert sentence vectors: %w", err)
	}

	docNS := vectorstore.Namespace(c.ProjectID(), vectorstore.KindDocument)
	docVecID := vectorstore.DocumentVectorID(docID)
	c.trackVectors(docNS, docVecID)
	err := p.Vectors.Upsert(ctx, docNS, []vectorstore.Vector{{
		ID:     docVecID,
		Values: vectorstore.Mean(vecs),
		Metadata: map[string]any{
			vectorstore.MetaSourceDocumentID: docID.String(),
			vectorstore.MetaDocType:          string(c.DocType),
		},
	}})
	if err != nil {
		return fmt.Errorf("upsert document vector: %w", err)
	}
	return nil
}

// storeImages writes PDF images to object storage before persist references
// them from new payloads.
func (p *Pipeline) storeImages(ctx context.Context, c *TextCargo) error {
	names := make([]string, 0, len(c.Images))
	for name := range c.Images {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data := c.Images[name]
		key := storage.RawKey(c.ProjectID(), name)
		mime := mimetype.Detect(data).String()
		if err := p.Storage.Put(ctx, key, bytes.NewReader(data), mime); err != nil {
			return fmt.Errorf("store image %s: %w", name, err)
		}
		c.children = append(c.children, childImage{Filename: name, StorageKey: key, MimeType: mime})
	}
	return nil
}

// paragraphHTML renders already-final text as a single paragraph.
func paragraphHTML(text string) string {
	return "<p>" + html.EscapeString(text) + "</p>"
}

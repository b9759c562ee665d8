package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/data/repos"
	"github.com/yungbote/dats-backend/internal/data/repos/testutil"
	types "github.com/yungbote/dats-backend/internal/domain"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/htmlx"
	"github.com/yungbote/dats-backend/internal/jobs"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/jobs/worker"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/search"
	"github.com/yungbote/dats-backend/internal/platform/storage"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
	"github.com/yungbote/dats-backend/internal/realtime"
	"github.com/yungbote/dats-backend/internal/services/metadata"
)

type fakeText struct {
	mu         sync.Mutex
	calls      [][]modelworker.ProcessInput
	failEmbed  string
	embedCalls int
}

func (f *fakeText) Process(ctx context.Context, inputs []modelworker.ProcessInput) ([]modelworker.ProcessResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inputs)
	f.mu.Unlock()
	out := make([]modelworker.ProcessResult, len(inputs))
	for i, in := range inputs {
		toks, sents := tokenize(in.Text)
		out[i] = modelworker.ProcessResult{ID: in.ID, Tokens: toks, Sentences: sents}
		for k, t := range toks {
			word := strings.TrimRight(in.Text[t.Start:t.End], ".")
			if word == "Alice" || word == "Bob" {
				out[i].Entities = append(out[i].Entities, modelworker.Entity{
					Label: "PERSON", Start: t.Start, End: t.Start + len(word), StartToken: k, EndToken: k + 1,
				})
			}
		}
	}
	return out, nil
}

func (f *fakeText) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failEmbed != "" && strings.Contains(t, f.failEmbed) {
			return nil, fmt.Errorf("embedding backend rejected input")
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// tokenize splits on spaces and newlines; a token ending in '.' closes a sentence.
func tokenize(text string) (toks, sents []modelworker.Span) {
	start, sentStart := -1, -1
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != ' ' && text[i] != '\n' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		toks = append(toks, modelworker.Span{Start: start, End: i})
		if sentStart < 0 {
			sentStart = start
		}
		if text[i-1] == '.' {
			sents = append(sents, modelworker.Span{Start: sentStart, End: i})
			sentStart = -1
		}
		start = -1
	}
	if sentStart >= 0 {
		sents = append(sents, modelworker.Span{Start: sentStart, End: toks[len(toks)-1].End})
	}
	return toks, sents
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[uuid.UUID]search.Document
	deleted []uuid.UUID
}

func newFakeIndex() *fakeIndex { return &fakeIndex{indexed: map[uuid.UUID]search.Document{}} }

func (f *fakeIndex) EnsureIndex(ctx context.Context, projectID uuid.UUID) error { return nil }

func (f *fakeIndex) IndexDocument(ctx context.Context, doc search.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[doc.SourceDocumentID] = doc
	return nil
}

func (f *fakeIndex) DeleteDocument(ctx context.Context, projectID, sdocID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, sdocID)
	f.deleted = append(f.deleted, sdocID)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]search.Hit, error) {
	return nil, nil
}

type fakeTranscriber struct {
	words []modelworker.Word
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename, language string) (*modelworker.Transcription, error) {
	return &modelworker.Transcription{Language: "en-US", Words: f.words}, nil
}

type fakeDetector struct{}

func (fakeDetector) DetectObjects(ctx context.Context, img []byte) ([]modelworker.Detection, error) {
	return []modelworker.Detection{
		{Label: "square", Score: 0.9, X: -5, Y: 2, Width: 20, Height: 10},
		{Label: "ghost", Score: 0.1, X: 100, Y: 100, Width: 5, Height: 5},
	}, nil
}

func (fakeDetector) Caption(ctx context.Context, img []byte) (string, error) {
	return "A small red square.", nil
}

type fakeImages struct{}

func (fakeImages) EmbedImage(ctx context.Context, images [][]byte) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i := range images {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type harness struct {
	set     *repos.Set
	store   *storage.LocalStore
	vectors *vectorstore.Memory
	index   *fakeIndex
	text    *fakeText
	audio   *fakeTranscriber
	svc     jobs.Service
	worker  *worker.Worker
	project *types.Project
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	h := &harness{
		set:     set,
		store:   store,
		vectors: vectorstore.NewMemory(),
		index:   newFakeIndex(),
		text:    &fakeText{},
		audio:   &fakeTranscriber{},
		project: testutil.SeedProject(t, ctx, db),
	}

	reg := runtime.NewRegistry()
	waker := realtime.NewLocalWaker()
	h.svc = jobs.NewService(log, reg, set.JobRuns, set.JobRunEvents, nil, waker)
	pipe := New(Deps{
		DB:          db,
		Log:         log,
		Repos:       set,
		Storage:     store,
		Text:        h.text,
		Transcriber: h.audio,
		Detector:    fakeDetector{},
		Images:      fakeImages{},
		Vectors:     h.vectors,
		Index:       h.index,
		Metadata:    metadata.NewService(db, log, set.Metadata, set.Documents),
		Jobs:        h.svc,
		Config:      Config{DefaultLanguage: "en", Readability: true},
	})
	if err := pipe.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.worker = worker.New(log, worker.Config{Device: types.DeviceCPU, StaleAfter: time.Hour}, reg, set.JobRuns, set.JobRunEvents, nil, waker)
	return h
}

type upload struct {
	name string
	mime string
	data []byte
}

// submit stores the files, creates one preprocessing job with a payload per
// file and enqueues a single run over all of them.
func (h *harness) submit(t *testing.T, dt types.DocType, files ...upload) (*types.PreprocessingJob, *types.JobRun) {
	t.Helper()
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	job := &types.PreprocessingJob{ProjectID: h.project.ID}
	if err := h.set.PreproJobs.Create(dbc, job); err != nil {
		t.Fatalf("create prepro job: %v", err)
	}
	payloads := make([]*types.PreprocessingJobPayload, 0, len(files))
	for _, f := range files {
		key := storage.RawKey(h.project.ID, f.name)
		if f.data != nil {
			if err := h.store.Put(ctx, key, bytes.NewReader(f.data), f.mime); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		payloads = append(payloads, &types.PreprocessingJobPayload{
			PreproJobID: job.ID,
			ProjectID:   h.project.ID,
			Filename:    f.name,
			StorageKey:  key,
			DocType:     dt,
			MimeType:    f.mime,
		})
	}
	if err := h.set.PreproJobs.AddPayloads(dbc, payloads); err != nil {
		t.Fatalf("AddPayloads: %v", err)
	}
	ids := make([]uuid.UUID, len(payloads))
	for i, p := range payloads {
		ids[i] = p.ID
	}
	jobType, err := JobTypeFor(dt)
	if err != nil {
		t.Fatalf("JobTypeFor: %v", err)
	}
	run, err := h.svc.StartJob(ctx, jobType, h.project.ID, Input{PreproJobID: job.ID, PayloadIDs: ids})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	return job, run
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 20; i++ {
		ran, err := h.worker.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if !ran {
			return
		}
	}
	t.Fatalf("queue did not drain")
}

func (h *harness) run(t *testing.T, id uuid.UUID) *types.JobRun {
	t.Helper()
	run, err := h.set.JobRuns.GetByID(dbctx.Of(context.Background()), id)
	if err != nil || run == nil {
		t.Fatalf("GetByID: %v %v", run, err)
	}
	return run
}

func (h *harness) payloads(t *testing.T, jobID uuid.UUID) map[string]*types.PreprocessingJobPayload {
	t.Helper()
	list, err := h.set.PreproJobs.ListPayloads(dbctx.Of(context.Background()), jobID)
	if err != nil {
		t.Fatalf("ListPayloads: %v", err)
	}
	out := map[string]*types.PreprocessingJobPayload{}
	for _, p := range list {
		out[p.Filename] = p
	}
	return out
}

func (h *harness) preproStatus(t *testing.T, jobID uuid.UUID) types.PreproStatus {
	t.Helper()
	job, err := h.set.PreproJobs.GetByID(dbctx.Of(context.Background()), jobID, false)
	if err != nil || job == nil {
		t.Fatalf("GetByID: %v %v", job, err)
	}
	return job.Status
}

func (h *harness) data(t *testing.T, docID uuid.UUID) *types.SourceDocumentData {
	t.Helper()
	d, err := h.set.DocumentData.GetByID(dbctx.Of(context.Background()), docID)
	if err != nil || d == nil {
		t.Fatalf("document data %s: %v %v", docID, d, err)
	}
	return d
}

func TestTextPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)

	job, run := h.submit(t, types.DocTypeText,
		upload{"notes.txt", "text/plain", []byte("Alice met Bob. They talked.")},
		upload{"page.html", "text/html", []byte(`<html><head><title>x</title></head><body><article><p>Hello <b>world</b>.</p></article></body></html>`)},
	)
	h.drain(t)

	got := h.run(t, run.ID)
	if got.Status != domainjobs.StatusFinished {
		t.Fatalf("run status=%s error=%q", got.Status, got.Error)
	}
	var res Result
	if err := json.Unmarshal(got.Result, &res); err != nil || res.Finished != 2 || res.Failed != 0 {
		t.Fatalf("result=%s err=%v", got.Result, err)
	}
	if s := h.preproStatus(t, job.ID); s != types.PreproFinished {
		t.Fatalf("prepro status=%s", s)
	}

	pls := h.payloads(t, job.ID)
	notes := pls["notes.txt"]
	if notes.Status != types.PreproFinished || notes.JobRunID == nil || *notes.JobRunID != run.ID {
		t.Fatalf("payload=%+v", notes)
	}
	doc, err := h.set.Documents.GetByID(dbc, notes.SourceDocumentID)
	if err != nil || doc == nil {
		t.Fatalf("document: %v %v", doc, err)
	}
	if doc.Status != types.DocStatusFinished || doc.DocType != types.DocTypeText || doc.Filename != "notes.txt" {
		t.Fatalf("document=%+v", doc)
	}

	data := h.data(t, doc.ID)
	if data.Content != "Alice met Bob. They talked." {
		t.Fatalf("content=%q", data.Content)
	}
	if len(data.TokenStarts) != 5 || len(data.SentenceStarts) != 2 {
		t.Fatalf("tokens=%v sentences=%v", data.TokenStarts, data.SentenceStarts)
	}
	if err := data.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !strings.Contains(data.HTML, `<sent id=1><t id=3>They</t> <t id=4>talked.</t></sent>`) {
		t.Fatalf("html=%s", data.HTML)
	}
	if !strings.HasPrefix(htmlx.StripMarkers(data.HTML), htmlx.Watermark) {
		t.Fatalf("stored html is not the cleaned document: %s", data.HTML)
	}
	if data.Language == "" {
		t.Fatalf("language not set")
	}

	spans, err := h.set.Annotations.ListSpans(dbc, doc.ID)
	if err != nil || len(spans) != 2 || spans[0].Text != "Alice" || spans[1].Text != "Bob" {
		t.Fatalf("spans=%v err=%v", spans, err)
	}
	freqs, err := h.set.WordFrequencies.ListByDocuments(dbc, []uuid.UUID{doc.ID})
	if err != nil || freqs[doc.ID]["alice"] != 1 || freqs[doc.ID]["talked."] != 1 {
		t.Fatalf("freqs=%v err=%v", freqs, err)
	}
	values, err := h.set.Metadata.ListValues(dbc, doc.ID)
	if err != nil || len(values) == 0 {
		t.Fatalf("metadata values=%d err=%v", len(values), err)
	}

	page := pls["page.html"]
	if d := h.data(t, page.SourceDocumentID); d.Content != "Hello world." {
		t.Fatalf("html content=%q", d.Content)
	}

	if n := h.vectors.Len(vectorstore.Namespace(h.project.ID, vectorstore.KindSentence)); n != 3 {
		t.Fatalf("sentence vectors=%d", n)
	}
	if n := h.vectors.Len(vectorstore.Namespace(h.project.ID, vectorstore.KindDocument)); n != 2 {
		t.Fatalf("document vectors=%d", n)
	}
	if len(h.index.indexed) != 2 {
		t.Fatalf("indexed=%d", len(h.index.indexed))
	}
}

func TestPayloadFailuresAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.text.failEmbed = "explode"
	ctx := context.Background()

	job, run := h.submit(t, types.DocTypeText,
		upload{"good.txt", "text/plain", []byte("Good text here.")},
		upload{"bad.txt", "text/plain", []byte("This will explode.")},
		upload{"missing.txt", "text/plain", nil},
	)
	h.drain(t)

	got := h.run(t, run.ID)
	if got.Status != domainjobs.StatusFinished {
		t.Fatalf("one finished payload keeps the run finished: %s %q", got.Status, got.Error)
	}
	pls := h.payloads(t, job.ID)
	if pls["good.txt"].Status != types.PreproFinished {
		t.Fatalf("good payload=%+v", pls["good.txt"])
	}
	bad := pls["bad.txt"]
	if bad.Status != types.PreproError || !strings.HasPrefix(bad.ErrorMessage, "embed:") {
		t.Fatalf("bad payload=%s %q", bad.Status, bad.ErrorMessage)
	}
	if m := pls["missing.txt"]; m.Status != types.PreproError || !strings.HasPrefix(m.ErrorMessage, "load:") {
		t.Fatalf("missing payload=%s %q", m.Status, m.ErrorMessage)
	}
	if s := h.preproStatus(t, job.ID); s != types.PreproError {
		t.Fatalf("prepro status=%s", s)
	}

	if doc, _ := h.set.Documents.GetByID(dbctx.Of(ctx), bad.SourceDocumentID); doc != nil {
		t.Fatalf("failed payload must not leave a document")
	}
	if _, ok := h.index.indexed[bad.SourceDocumentID]; ok {
		t.Fatalf("index entry of failed payload was not removed")
	}
	if len(h.index.deleted) != 1 || h.index.deleted[0] != bad.SourceDocumentID {
		t.Fatalf("deleted=%v", h.index.deleted)
	}
	if n := h.vectors.Len(vectorstore.Namespace(h.project.ID, vectorstore.KindDocument)); n != 1 {
		t.Fatalf("document vectors=%d", n)
	}
}

func TestAllPayloadsFailedFailsRun(t *testing.T) {
	h := newHarness(t)
	_, run := h.submit(t, types.DocTypeText, upload{"missing.txt", "text/plain", nil})
	h.drain(t)
	if got := h.run(t, run.ID); got.Status != domainjobs.StatusError || got.Error != "all 1 payloads failed" {
		t.Fatalf("run=%s %q", got.Status, got.Error)
	}
}

func TestAbortedPreproJobAbortsPayloads(t *testing.T) {
	h := newHarness(t)
	job, run := h.submit(t, types.DocTypeText, upload{"a.txt", "text/plain", []byte("Hello.")})
	if err := h.set.PreproJobs.MarkAborted(dbctx.Of(context.Background()), job.ID); err != nil {
		t.Fatalf("MarkAborted: %v", err)
	}
	h.drain(t)

	if got := h.run(t, run.ID); got.Status != domainjobs.StatusAborted {
		t.Fatalf("run=%s %q", got.Status, got.Error)
	}
	if p := h.payloads(t, job.ID)["a.txt"]; p.Status != types.PreproAborted {
		t.Fatalf("payload=%s", p.Status)
	}
	if s := h.preproStatus(t, job.ID); s != types.PreproAborted {
		t.Fatalf("prepro status=%s", s)
	}
	if len(h.text.calls) != 0 {
		t.Fatalf("aborted job reached the model worker")
	}
}

func TestAudioPipeline(t *testing.T) {
	h := newHarness(t)
	h.audio.words = []modelworker.Word{
		{Text: "Hello", StartMS: 0, EndMS: 400},
		{Text: "there.", StartMS: 400, EndMS: 900},
		{Text: "Bye", StartMS: 1000, EndMS: 1300},
	}
	job, run := h.submit(t, types.DocTypeAudio, upload{"talk.mp3", "audio/mpeg", []byte("ID3 fake audio")})
	h.drain(t)

	if got := h.run(t, run.ID); got.Status != domainjobs.StatusFinished {
		t.Fatalf("run=%s %q", got.Status, got.Error)
	}
	p := h.payloads(t, job.ID)["talk.mp3"]
	doc, _ := h.set.Documents.GetByID(dbctx.Of(context.Background()), p.SourceDocumentID)
	if doc == nil || doc.DocType != types.DocTypeAudio {
		t.Fatalf("document=%+v", doc)
	}
	d := h.data(t, doc.ID)
	if d.Content != "Hello there. Bye" || d.Language != "en" {
		t.Fatalf("content=%q language=%q", d.Content, d.Language)
	}
	if fmt.Sprint(d.TokenTimeStarts) != "[0 400 1000]" || fmt.Sprint(d.TokenTimeEnds) != "[400 900 1300]" {
		t.Fatalf("times=%v %v", d.TokenTimeStarts, d.TokenTimeEnds)
	}
	if fmt.Sprint(d.SentenceStarts) != "[0 13]" || fmt.Sprint(d.SentenceEnds) != "[12 16]" {
		t.Fatalf("sentences=%v %v", d.SentenceStarts, d.SentenceEnds)
	}
	if len(h.text.calls) != 0 {
		t.Fatalf("synthesized tokens must skip the process stage")
	}
}

func TestImagePipeline(t *testing.T) {
	h := newHarness(t)
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, 5, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	job, run := h.submit(t, types.DocTypeImage, upload{"square.png", "image/png", buf.Bytes()})
	h.drain(t)

	if got := h.run(t, run.ID); got.Status != domainjobs.StatusFinished {
		t.Fatalf("run=%s %q", got.Status, got.Error)
	}
	p := h.payloads(t, job.ID)["square.png"]
	dbc := dbctx.Of(context.Background())
	boxes, err := h.set.Annotations.ListBBoxes(dbc, p.SourceDocumentID)
	if err != nil || len(boxes) != 1 {
		t.Fatalf("boxes=%v err=%v", boxes, err)
	}
	if b := boxes[0]; b.Label != "square" || b.X != 0 || b.Width != 15 || b.Height != 10 {
		t.Fatalf("box=%+v", b)
	}
	if d := h.data(t, p.SourceDocumentID); d.Content != "A small red square." {
		t.Fatalf("content=%q", d.Content)
	}
	if n := h.vectors.Len(vectorstore.Namespace(h.project.ID, vectorstore.KindImage)); n != 1 {
		t.Fatalf("image vectors=%d", n)
	}
}

func TestProcessBatchesByLanguageAboveThreshold(t *testing.T) {
	text := &fakeText{}
	p := New(Deps{Log: logger.Nop(), Text: text, Config: Config{BulkThreshold: 1, ProcessBatchSize: 2}})

	var batch []*TextCargo
	for i, lang := range []string{"en", "de", "en", "en", "de"} {
		pl := &types.PreprocessingJobPayload{SourceDocumentID: uuid.New(), Filename: fmt.Sprintf("%d.txt", i)}
		c := newTextCargo(pl, types.PreproSettings{})
		c.Content = "Some words here."
		c.Language = lang
		batch = append(batch, c)
	}
	for _, err := range p.process(context.Background(), batch) {
		if err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if len(text.calls) != 3 {
		t.Fatalf("calls=%d", len(text.calls))
	}
	sizes := map[string][]int{}
	for _, call := range text.calls {
		lang := call[0].Language
		for _, in := range call {
			if in.Language != lang {
				t.Fatalf("mixed languages in one batch: %+v", call)
			}
		}
		sizes[lang] = append(sizes[lang], len(call))
	}
	if len(sizes["de"]) != 1 || sizes["de"][0] != 2 || len(sizes["en"]) != 2 {
		t.Fatalf("sizes=%v", sizes)
	}
	for _, c := range batch {
		if len(c.Tokens) != 3 || len(c.Sentences) != 1 {
			t.Fatalf("cargo not filled: %+v", c.Tokens)
		}
	}
}

func TestProcessBelowThresholdSendsOneDocumentPerCall(t *testing.T) {
	text := &fakeText{}
	p := New(Deps{Log: logger.Nop(), Text: text, Config: Config{BulkThreshold: 8}})
	var batch []*TextCargo
	for i := 0; i < 3; i++ {
		c := newTextCargo(&types.PreprocessingJobPayload{SourceDocumentID: uuid.New()}, types.PreproSettings{})
		c.Content = "One."
		batch = append(batch, c)
	}
	p.process(context.Background(), batch)
	if len(text.calls) != 3 {
		t.Fatalf("calls=%d", len(text.calls))
	}
}

func TestSynthesizeTokens(t *testing.T) {
	s := synthesizeTokens([]modelworker.Word{
		{Text: "Hi", StartMS: 0, EndMS: 100},
		{Text: "you!", StartMS: 100, EndMS: 300},
		{Text: "ok", StartMS: 400, EndMS: 500},
	})
	if s.Content != "Hi you! ok" {
		t.Fatalf("content=%q", s.Content)
	}
	want := []htmlx.Span{{Start: 0, End: 2}, {Start: 3, End: 7}, {Start: 8, End: 10}}
	if fmt.Sprint(s.Tokens) != fmt.Sprint(want) {
		t.Fatalf("tokens=%v", s.Tokens)
	}
	if fmt.Sprint(s.Sentences) != fmt.Sprint([]htmlx.Span{{Start: 0, End: 7}, {Start: 8, End: 10}}) {
		t.Fatalf("sentences=%v", s.Sentences)
	}

	empty := synthesizeTokens(nil)
	if empty.Content != noSpeechText || len(empty.Tokens) != 5 || len(empty.Sentences) != 1 {
		t.Fatalf("fallback=%+v", empty)
	}
}

func TestWordFrequencies(t *testing.T) {
	content := "The cat, the CAT ."
	toks, _ := tokenize(content)
	got := wordFrequencies(content, toSpans(toks))
	if got["the"] != 2 || got["cat,"] != 1 || got["cat"] != 1 {
		t.Fatalf("freqs=%v", got)
	}
	if _, ok := got["."]; ok {
		t.Fatalf("punctuation counted")
	}
}

func TestPlainToHTML(t *testing.T) {
	got := plainToHTML("first <line>\r\n\r\n\r\nsecond & last\n")
	if got != "<p>first &lt;line&gt;</p><p>second &amp; last</p>" {
		t.Fatalf("got %q", got)
	}
}

func TestChildImageName(t *testing.T) {
	if got := childImageName("report_pages_01-10.pdf", "img/image_3.png"); got != "report_pages_01-10_image_3.png" {
		t.Fatalf("got %q", got)
	}
}

func TestInputValidate(t *testing.T) {
	in := Input{PreproJobID: uuid.New()}
	if err := in.Validate(); err == nil {
		t.Fatalf("missing payload ids accepted")
	}
	in.PayloadIDs = []uuid.UUID{uuid.Nil}
	if err := in.Validate(); err == nil {
		t.Fatalf("nil payload id accepted")
	}
	in.PayloadIDs = []uuid.UUID{uuid.New()}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

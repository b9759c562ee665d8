package tagrec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/dats-backend/internal/data/repos"
	"github.com/yungbote/dats-backend/internal/data/repos/testutil"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/domain/handles"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/jobs"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/jobs/worker"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
	"github.com/yungbote/dats-backend/internal/realtime"
)

func TestVoteWeighsBySimilarity(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	red, blue := uuid.New(), uuid.New()
	links := map[uuid.UUID][]uuid.UUID{a: {red}, b: {red, blue}, c: {blue}}
	matches := []vectorstore.Match{
		{ID: a.String(), Score: 0.6},
		{ID: b.String(), Score: 0.3},
		{ID: c.String(), Score: 0.1},
		{ID: "not-a-uuid", Score: 0.9},
		{ID: uuid.NewString(), Score: -0.5},
	}
	got := Vote(matches, links, 0)
	require.Len(t, got, 2)
	assert.Equal(t, red, got[0].TagID)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	assert.Equal(t, blue, got[1].TagID)
	assert.InDelta(t, 0.4, got[1].Score, 1e-9)

	got = Vote(matches, links, 0.5)
	require.Len(t, got, 1)
	assert.Equal(t, red, got[0].TagID)

	assert.Nil(t, Vote(nil, links, 0))
}

type harness struct {
	set     *repos.Set
	vectors *vectorstore.Memory
	svc     Service
	jobs    jobs.Service
	worker  *worker.Worker
	project *types.Project
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	h := &harness{set: set, vectors: vectorstore.NewMemory(), project: testutil.SeedProject(t, ctx, db)}
	reg := runtime.NewRegistry()
	waker := realtime.NewLocalWaker()
	h.jobs = jobs.NewService(log, reg, set.JobRuns, set.JobRunEvents, nil, waker)
	h.svc = NewService(db, log, set, h.vectors)
	require.NoError(t, h.svc.Register(reg))
	h.worker = worker.New(log, worker.Config{Device: types.DeviceCPU, StaleAfter: time.Hour}, reg, set.JobRuns, set.JobRunEvents, nil, waker)
	return h
}

func (h *harness) document(t *testing.T, vec []float32, tags ...uuid.UUID) *types.SourceDocument {
	t.Helper()
	ctx := context.Background()
	d := &types.SourceDocument{ProjectID: h.project.ID, Filename: uuid.NewString() + ".txt", DocType: types.DocTypeText, Status: types.DocStatusFinished}
	require.NoError(t, h.set.Documents.Create(dbctx.Of(ctx), d))
	if len(tags) > 0 {
		require.NoError(t, h.set.Tags.Link(dbctx.Of(ctx), d.ID, tags))
	}
	require.NoError(t, h.vectors.Upsert(ctx, vectorstore.Namespace(h.project.ID, vectorstore.KindDocument), []vectorstore.Vector{{
		ID:       vectorstore.DocumentVectorID(d.ID),
		Values:   vec,
		Metadata: map[string]any{vectorstore.MetaSourceDocumentID: d.ID.String()},
	}}))
	return d
}

func (h *harness) recommend(t *testing.T, in Input) Output {
	t.Helper()
	ctx := context.Background()
	run, err := h.jobs.StartJob(ctx, JobRecommendTags, h.project.ID, in)
	require.NoError(t, err)
	ok, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := h.jobs.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domainjobs.StatusFinished, got.Status, got.Error)
	var out Output
	require.NoError(t, json.Unmarshal(got.Result, &out))
	return out
}

func (h *harness) tag(t *testing.T, name string) uuid.UUID {
	t.Helper()
	tag := &types.DocumentTag{ProjectID: h.project.ID, Name: name}
	require.NoError(t, h.set.Tags.Create(dbctx.Of(context.Background()), tag))
	return tag.ID
}

func TestRecommendTagsFromNearestTaggedDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sports, politics := h.tag(t, "sports"), h.tag(t, "politics")
	h.document(t, []float32{1, 0}, sports)
	h.document(t, []float32{0.95, 0.05}, sports)
	h.document(t, []float32{0, 1}, politics)
	candidate := h.document(t, []float32{0.9, 0.1})
	noVector := &types.SourceDocument{ProjectID: h.project.ID, Filename: "missing.txt", DocType: types.DocTypeText, Status: types.DocStatusFinished}
	require.NoError(t, h.set.Documents.Create(dbctx.Of(ctx), noVector))

	out := h.recommend(t, Input{Neighbors: 3, MinScore: 0.5})
	assert.Equal(t, 2, out.Candidates)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 1, out.Recommendations)

	pending, err := h.svc.Pending(ctx, h.project.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, candidate.ID, pending[0].SourceDocumentID)
	assert.Equal(t, sports, pending[0].PredictedTagID)
	assert.Greater(t, pending[0].PredictionScore, 0.5)
	assert.False(t, pending[0].IsReviewed)

	// Recommendations are not applied until reviewed.
	links, err := h.set.Tags.LinksByDocuments(dbctx.Of(ctx), []uuid.UUID{candidate.ID})
	require.NoError(t, err)
	assert.Empty(t, links[candidate.ID])

	// A second run refreshes the pending row instead of duplicating it.
	h.recommend(t, Input{Neighbors: 3, MinScore: 0.5})
	pending, err = h.svc.Pending(ctx, h.project.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRecommendWithoutTaggedDocumentsIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.document(t, []float32{1, 0})
	out := h.recommend(t, Input{})
	assert.Equal(t, 1, out.Candidates)
	assert.Zero(t, out.Recommendations)
}

func TestReviewAcceptsAndAttachesMemo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sports, politics := h.tag(t, "sports"), h.tag(t, "politics")
	doc := h.document(t, []float32{1, 0})
	accept := &types.TagRecommendationLink{ProjectID: h.project.ID, JobID: uuid.New(), SourceDocumentID: doc.ID, PredictedTagID: sports, PredictionScore: 0.9}
	reject := &types.TagRecommendationLink{ProjectID: h.project.ID, JobID: uuid.New(), SourceDocumentID: doc.ID, PredictedTagID: politics, PredictionScore: 0.4}
	require.NoError(t, h.set.TagRecommendations.Upsert(dbctx.Of(ctx), []*types.TagRecommendationLink{accept, reject}))

	reviewed, err := h.svc.Review(ctx, []Review{
		{ID: accept.ID, Accept: true, Memo: &MemoNote{Title: "looks right", Content: "match day report"}},
		{ID: reject.ID, Accept: false},
	})
	require.NoError(t, err)
	require.Len(t, reviewed, 2)
	assert.True(t, reviewed[0].IsReviewed)
	assert.True(t, reviewed[0].Accepted)
	assert.False(t, reviewed[1].Accepted)

	links, err := h.set.Tags.LinksByDocuments(dbctx.Of(ctx), []uuid.UUID{doc.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sports}, links[doc.ID])

	handle, err := h.set.ObjectHandles.Get(dbctx.Of(ctx), handles.KindTagRecommendation, accept.ID)
	require.NoError(t, err)
	require.NotNil(t, handle)
	memos, err := h.set.Memos.ListByHandle(dbctx.Of(ctx), handle.ID)
	require.NoError(t, err)
	require.Len(t, memos, 1)
	assert.Equal(t, "looks right", memos[0].Title)

	pending, err := h.svc.Pending(ctx, h.project.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReviewIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sports := h.tag(t, "sports")
	doc := h.document(t, []float32{1, 0})
	link := &types.TagRecommendationLink{ProjectID: h.project.ID, JobID: uuid.New(), SourceDocumentID: doc.ID, PredictedTagID: sports, PredictionScore: 0.9}
	require.NoError(t, h.set.TagRecommendations.Upsert(dbctx.Of(ctx), []*types.TagRecommendationLink{link}))

	_, err := h.svc.Review(ctx, []Review{{ID: link.ID, Accept: true}, {ID: uuid.New(), Accept: true}})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	links, err := h.set.Tags.LinksByDocuments(dbctx.Of(ctx), []uuid.UUID{doc.ID})
	require.NoError(t, err)
	assert.Empty(t, links[doc.ID])
	pending, err := h.svc.Pending(ctx, h.project.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = h.svc.Review(ctx, []Review{{ID: link.ID, Accept: true}})
	require.NoError(t, err)
	_, err = h.svc.Review(ctx, []Review{{ID: link.ID, Accept: false}})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

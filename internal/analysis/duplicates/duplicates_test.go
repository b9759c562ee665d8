package duplicates

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/dats-backend/internal/data/repos"
	"github.com/yungbote/dats-backend/internal/data/repos/testutil"
	types "github.com/yungbote/dats-backend/internal/domain"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/jobs"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/jobs/worker"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/realtime"
)

func doc(words map[string]int) Document {
	return Document{ID: uuid.New(), Words: words}
}

func TestDetectBoundaryIsInclusive(t *testing.T) {
	base := map[string]int{"the": 4, "cat": 2, "sat": 1}
	// within differs by 2 words, beyond by 3.
	within := doc(map[string]int{"the": 4, "cat": 2, "sat": 1, "mat": 2})
	beyond := doc(map[string]int{"the": 4, "cat": 2, "sat": 1, "hat": 1, "mat": 2})
	a := doc(base)

	got := Detect([]Document{a, within}, 2, 10, nil)
	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{a.ID, within.ID}, got[0])

	assert.Empty(t, Detect([]Document{a, beyond}, 2, 10, nil))
}

func TestDetectCountsDifferencesInBothDirections(t *testing.T) {
	a := doc(map[string]int{"alpha": 3})
	b := doc(map[string]int{"beta": 3})
	// |3-0| + |0-3|
	assert.Empty(t, Detect([]Document{a, b}, 5, 0, nil))
	assert.Len(t, Detect([]Document{a, b}, 6, 0, nil), 1)
}

func TestDetectJoinsTransitively(t *testing.T) {
	a := doc(map[string]int{"x": 1})
	b := doc(map[string]int{"x": 2})
	c := doc(map[string]int{"x": 3})
	d := doc(map[string]int{"y": 9})
	got := Detect([]Document{a, b, c, d}, 1, 0, nil)
	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, got[0])
}

func TestDetectIgnoresSingletonsAndEmptyInput(t *testing.T) {
	assert.Nil(t, Detect(nil, 3, 10, nil))
	assert.Nil(t, Detect([]Document{doc(map[string]int{"a": 1})}, 3, 10, nil))
}

func TestDetectIsBatchInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vocab := []string{"a", "b", "c", "d", "e", "f"}
	docs := make([]Document, 40)
	for i := range docs {
		w := map[string]int{}
		for _, v := range vocab {
			if n := rng.Intn(3); n > 0 {
				w[v] = n
			}
		}
		docs[i] = doc(w)
	}
	want := Detect(docs, 2, len(docs), nil)
	require.NotEmpty(t, want)
	for _, size := range []int{1, 2, 3, 7, 13, 39, 100} {
		t.Run(fmt.Sprintf("batch_%d", size), func(t *testing.T) {
			assert.Equal(t, want, Detect(docs, 2, size, nil))
		})
	}
}

func TestDetectReportsEveryBatch(t *testing.T) {
	docs := []Document{doc(nil), doc(nil), doc(nil), doc(nil), doc(nil)}
	var calls [][2]int
	Detect(docs, 0, 2, func(done, total int) bool {
		calls = append(calls, [2]int{done, total})
		return true
	})
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
}

func TestDetectStopsWhenBatchFuncDeclines(t *testing.T) {
	docs := []Document{doc(nil), doc(nil), doc(nil), doc(nil), doc(nil)}
	var calls int
	got := Detect(docs, 0, 2, func(done, total int) bool {
		calls++
		return done < 1
	})
	assert.Equal(t, 1, calls)
	assert.Nil(t, got)
}

func TestDistanceStopsAboveLimit(t *testing.T) {
	rows := matrix([]Document{doc(map[string]int{"a": 10}), doc(map[string]int{"b": 10})})
	assert.Equal(t, 20, distance(rows[0], rows[1], 100))
	assert.Greater(t, distance(rows[0], rows[1], 3), 3)
}

func TestDetectDuplicatesJob(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	project := testutil.SeedProject(t, ctx, db)

	seed := func(status types.DocStatus, words map[string]int) *types.SourceDocument {
		d := testutil.SeedDocument(t, ctx, db, project.ID, types.DocTypeText, status)
		var rows []*types.WordFrequency
		for w, c := range words {
			rows = append(rows, &types.WordFrequency{SourceDocumentID: d.ID, Word: w, Count: c})
		}
		require.NoError(t, set.WordFrequencies.Create(dbctx.Of(ctx), rows))
		return d
	}
	a := seed(types.DocStatusFinished, map[string]int{"hello": 2, "world": 1})
	b := seed(types.DocStatusFinished, map[string]int{"hello": 2, "world": 2})
	seed(types.DocStatusFinished, map[string]int{"other": 5})
	seed(types.DocStatusErroneous, map[string]int{"hello": 2, "world": 1})

	reg := runtime.NewRegistry()
	waker := realtime.NewLocalWaker()
	svc := jobs.NewService(log, reg, set.JobRuns, set.JobRunEvents, nil, waker)
	require.NoError(t, NewJob(log, set).Register(reg))
	w := worker.New(log, worker.Config{Device: types.DeviceCPU, StaleAfter: time.Hour}, reg, set.JobRuns, set.JobRunEvents, nil, waker)

	_, err := svc.StartJob(ctx, JobDetectDuplicates, project.ID, Input{MaxDifferentWords: -1})
	require.Error(t, err)

	run, err := svc.StartJob(ctx, JobDetectDuplicates, project.ID, Input{MaxDifferentWords: 1, BatchSize: 1})
	require.NoError(t, err)
	ok, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domainjobs.StatusFinished, got.Status, got.Error)

	events, err := svc.Events(ctx, run.ID, 50)
	require.NoError(t, err)
	var batches []string
	for _, ev := range events {
		if ev.Kind == string(domainjobs.JobEventProgress) && strings.HasPrefix(ev.Message, "compared batch") {
			batches = append(batches, ev.Message)
		}
	}
	assert.ElementsMatch(t, []string{"compared batch 1 of 3", "compared batch 2 of 3", "compared batch 3 of 3"}, batches)

	var out Output
	require.NoError(t, json.Unmarshal(got.Result, &out))
	assert.Equal(t, 3, out.Documents)
	require.Len(t, out.Clusters, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, out.Clusters[0])

	clusters, err := set.DuplicateClusters.ListByJob(dbctx.Of(ctx), run.ID)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, []uuid.UUID(clusters[0].Members))
}

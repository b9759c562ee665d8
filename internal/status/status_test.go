package status

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/dats-backend/internal/data/repos"
	"github.com/yungbote/dats-backend/internal/data/repos/testutil"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
)

func TestProjectStatus(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	set := repos.NewSet(db, testutil.Logger(t))
	svc := NewService(testutil.Logger(t), set)
	dbc := dbctx.Context{Ctx: ctx}

	project := testutil.SeedProject(t, ctx, db)
	testutil.SeedDocument(t, ctx, db, project.ID, types.DocTypeText, types.DocStatusFinished)
	testutil.SeedDocument(t, ctx, db, project.ID, types.DocTypeImage, types.DocStatusFinished)
	testutil.SeedDocument(t, ctx, db, project.ID, types.DocTypeText, types.DocStatusRunning)

	job := testutil.SeedPreproJob(t, ctx, db, project.ID, 3)
	ok, err := set.PreproJobs.TransitionPayload(dbc, job.Payloads[1].ID, types.PreproRunning, "")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = set.PreproJobs.TransitionPayload(dbc, job.Payloads[2].ID, types.PreproError, "extract failed")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = set.PreproJobs.RecomputeStatus(dbc, job.ID)
	require.NoError(t, err)

	got, err := svc.ProjectStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{job.ID}, got.ActivePreproJobs)
	assert.EqualValues(t, 2, got.ActivePayloads)
	assert.Equal(t, []uuid.UUID{job.Payloads[2].ID}, got.ErroredPayloadIDs)
	assert.EqualValues(t, 2, got.FinishedDocuments)
	assert.EqualValues(t, 3, got.TotalDocuments)
	assert.True(t, got.InProgress)
}

func TestProjectStatusIdleProject(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	set := repos.NewSet(db, testutil.Logger(t))
	svc := NewService(testutil.Logger(t), set)

	project := testutil.SeedProject(t, ctx, db)
	got, err := svc.ProjectStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActivePreproJobs)
	assert.Empty(t, got.ErroredPayloadIDs)
	assert.Zero(t, got.TotalDocuments)
	assert.False(t, got.InProgress)
}

func TestProjectStatusUnknownProject(t *testing.T) {
	db := testutil.SQLite(t)
	svc := NewService(testutil.Logger(t), repos.NewSet(db, testutil.Logger(t)))

	_, err := svc.ProjectStatus(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

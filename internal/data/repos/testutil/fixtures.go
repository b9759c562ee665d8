package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
)

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.Project {
	tb.Helper()
	p := &types.Project{Title: "project " + uuid.NewString()[:8]}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, doctype types.DocType, status types.DocStatus) *types.SourceDocument {
	tb.Helper()
	doc := &types.SourceDocument{
		ProjectID:  projectID,
		Filename:   fmt.Sprintf("doc-%s.txt", uuid.NewString()[:8]),
		DocType:    doctype,
		Status:     status,
		MimeType:   "text/plain",
		StorageKey: "projects/" + projectID.String() + "/raw/doc.txt",
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedTag(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, name string) *types.DocumentTag {
	tb.Helper()
	tag := &types.DocumentTag{ProjectID: projectID, Name: name}
	if err := tx.WithContext(ctx).Create(tag).Error; err != nil {
		tb.Fatalf("seed tag: %v", err)
	}
	return tag
}

// SeedPreproJob creates a job with n waiting text payloads.
func SeedPreproJob(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, n int) *types.PreprocessingJob {
	tb.Helper()
	job := &types.PreprocessingJob{ProjectID: projectID}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed prepro job: %v", err)
	}
	for i := 0; i < n; i++ {
		p := &types.PreprocessingJobPayload{
			PreproJobID: job.ID,
			ProjectID:   projectID,
			Filename:    fmt.Sprintf("file-%02d.txt", i),
			StorageKey:  fmt.Sprintf("projects/%s/raw/file-%02d.txt", projectID, i),
			DocType:     types.DocTypeText,
			MimeType:    "text/plain",
		}
		if err := tx.WithContext(ctx).Create(p).Error; err != nil {
			tb.Fatalf("seed payload: %v", err)
		}
		job.Payloads = append(job.Payloads, p)
	}
	return job
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

package duplicates

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

const JobDetectDuplicates = "detect_duplicates"

const defaultBatchSize = 1000

type Input struct {
	MaxDifferentWords int `json:"max_different_words"`
	BatchSize         int `json:"batch_size,omitempty"`
}

func (in *Input) Validate() error {
	if in.MaxDifferentWords < 0 {
		return errors.New("max_different_words must be >= 0")
	}
	if in.BatchSize < 0 {
		return errors.New("batch_size must be >= 0")
	}
	return nil
}

type Output struct {
	Documents int           `json:"documents"`
	Clusters  [][]uuid.UUID `json:"clusters"`
}

type Job struct {
	log   *logger.Logger
	repos *repos.Set
}

func NewJob(baseLog *logger.Logger, set *repos.Set) *Job {
	return &Job{log: baseLog.With("job", JobDetectDuplicates), repos: set}
}

func (j *Job) Register(reg *runtime.Registry) error {
	return reg.Register(runtime.Spec{
		Type:    JobDetectDuplicates,
		Device:  types.DeviceCPU,
		Handler: runtime.Bind(j.Run),
	})
}

// Run clusters every finished document of the project and replaces the
// project's previous clusters.
func (j *Job) Run(jc *runtime.Context, in Input) (Output, error) {
	ctx := jc.Ctx
	dbc := dbctx.Of(ctx)
	projectID := jc.ProjectID()
	var out Output

	jc.Progress("load", 5, "loading word frequencies")
	docs, err := j.repos.Documents.ListByProject(dbc, projectID, "", types.DocStatusFinished)
	if err != nil {
		return out, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	freqs, err := j.repos.WordFrequencies.ListByDocuments(dbc, ids)
	if err != nil {
		return out, fmt.Errorf("list word frequencies: %w", err)
	}
	input := make([]Document, 0, len(ids))
	for _, id := range ids {
		input = append(input, Document{ID: id, Words: freqs[id]})
	}
	out.Documents = len(input)
	if err := jc.CheckAbort(); err != nil {
		return out, err
	}

	batchSize := in.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	var aborted bool
	out.Clusters = Detect(input, in.MaxDifferentWords, batchSize, func(done, total int) bool {
		if err := jc.Update(fmt.Sprintf("compared batch %d of %d", done, total)); err != nil {
			jc.Log.Warn("Update job status failed", "error", err)
		}
		aborted = jc.Aborted()
		return !aborted
	})
	if aborted {
		return out, jc.CheckAbort()
	}
	if out.Clusters == nil {
		out.Clusters = [][]uuid.UUID{}
	}

	jc.Progress("persist", 90, fmt.Sprintf("%d clusters", len(out.Clusters)))
	rows := make([]*types.DuplicateCluster, len(out.Clusters))
	for i, members := range out.Clusters {
		rows[i] = &types.DuplicateCluster{JobID: jc.Job.ID, ProjectID: projectID, Members: members}
	}
	if err := j.repos.DuplicateClusters.ReplaceForProject(dbc, projectID, rows); err != nil {
		return out, fmt.Errorf("persist clusters: %w", err)
	}
	j.log.Info("Duplicate detection finished",
		"project_id", projectID,
		"documents", out.Documents,
		"clusters", len(out.Clusters),
	)
	return out, nil
}

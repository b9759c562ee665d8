package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/htmlx"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
)

// persist writes everything the document owns in one transaction together
// with the payload transition, so a document is either complete and FINISHED
// or absent.
func (p *Pipeline) persist(ctx context.Context, c *TextCargo) error {
	pl := c.Payload
	var runs []*types.JobRun
	err := dbctx.Transaction(ctx, p.DB, func(dbc dbctx.Context) error {

		doc := &types.SourceDocument{
			ID:          c.DocID(),
			ProjectID:   pl.ProjectID,
			Filename:    pl.Filename,
			Name:        pl.Filename,
			DocType:     c.DocType,
			Status:      types.DocStatusFinished,
			FolderID:    pl.FolderID,
			StorageKey:  pl.StorageKey,
			MimeType:    pl.MimeType,
			PreproJobID: &pl.PreproJobID,
		}
		if err := p.Repos.Documents.Create(dbc, doc); err != nil {
			if repos.IsUniqueViolation(err) {
				return apperrors.New(apperrors.KindConflict, "persist", fmt.Sprintf("filename %q already exists in project", pl.Filename))
			}
			return fmt.Errorf("create document: %w", err)
		}

		data := &types.SourceDocumentData{
			ID:              doc.ID,
			Content:         c.Content,
			HTML:            c.MarkedHTML,
			Language:        c.Language,
			TokenStarts:     datatypes.JSONSlice[int](starts(c.Tokens)),
			TokenEnds:       datatypes.JSONSlice[int](ends(c.Tokens)),
			SentenceStarts:  datatypes.JSONSlice[int](starts(c.Sentences)),
			SentenceEnds:    datatypes.JSONSlice[int](ends(c.Sentences)),
			TokenTimeStarts: datatypes.JSONSlice[int](c.TokenTimeStarts),
			TokenTimeEnds:   datatypes.JSONSlice[int](c.TokenTimeEnds),
		}
		if err := p.Repos.DocumentData.Create(dbc, data); err != nil {
			return apperrors.Wrap(apperrors.KindCorruption, "persist document data", err)
		}

		if err := p.Metadata.FillForDocument(dbc, doc, c.Metadata); err != nil {
			return err
		}
		if len(c.Settings.TagIDs) > 0 {
			if err := p.Repos.Tags.Link(dbc, doc.ID, c.Settings.TagIDs); err != nil {
				return fmt.Errorf("link tags: %w", err)
			}
		}
		if len(c.WordFreqs) > 0 {
			rows := make([]*types.WordFrequency, 0, len(c.WordFreqs))
			for w, n := range c.WordFreqs {
				rows = append(rows, &types.WordFrequency{SourceDocumentID: doc.ID, Word: w, Count: n})
			}
			if err := p.Repos.WordFrequencies.Create(dbc, rows); err != nil {
				return fmt.Errorf("word frequencies: %w", err)
			}
		}
		if spans := toAutoSpans(doc.ID, c.Content, c.Entities); len(spans) > 0 {
			if err := p.Repos.Annotations.CreateSpans(dbc, spans); err != nil {
				return fmt.Errorf("auto spans: %w", err)
			}
		}
		if len(c.BBoxes) > 0 {
			if err := p.Repos.Annotations.CreateBBoxes(dbc, c.BBoxes); err != nil {
				return fmt.Errorf("auto bboxes: %w", err)
			}
		}

		var err error
		runs, err = p.spawnChildren(dbc, c)
		if err != nil {
			return err
		}

		ok, err := p.Repos.PreproJobs.TransitionPayload(dbc, pl.ID, types.PreproFinished, "")
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.New(apperrors.KindAborted, "persist", "payload left running state")
		}
		_, err = p.Repos.PreproJobs.RecomputeStatus(dbc, pl.PreproJobID)
		return err
	})
	if err != nil {
		return err
	}
	pl.Status = types.PreproFinished
	observability.Current().IncPayload(string(pl.DocType), string(types.PreproFinished))
	if len(runs) > 0 && p.Jobs != nil {
		p.Jobs.Dispatch(ctx, runs...)
	}
	p.log.Info("Document preprocessed",
		"sdoc_id", c.DocID(),
		"filename", pl.Filename,
		"doctype", c.DocType,
		"tokens", len(c.Tokens),
		"sentences", len(c.Sentences),
		"children", len(runs),
	)
	return nil
}

// spawnChildren turns stored PDF images into image payloads of the same
// preprocessing job. Filenames already present in the project are skipped.
func (p *Pipeline) spawnChildren(dbc dbctx.Context, c *TextCargo) ([]*types.JobRun, error) {
	if len(c.children) == 0 || p.Jobs == nil {
		return nil, nil
	}
	names := make([]string, len(c.children))
	for i, ch := range c.children {
		names[i] = ch.Filename
	}
	taken, err := p.Repos.Documents.FilenamesTaken(dbc, c.ProjectID(), names)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(taken))
	for _, n := range taken {
		skip[n] = true
		p.log.Warn("Extracted image name already taken", "filename", n, "parent", c.Payload.Filename)
	}

	payloads := make([]*types.PreprocessingJobPayload, 0, len(c.children))
	for _, ch := range c.children {
		if skip[ch.Filename] {
			continue
		}
		payloads = append(payloads, &types.PreprocessingJobPayload{
			PreproJobID: c.Payload.PreproJobID,
			ProjectID:   c.ProjectID(),
			FolderID:    c.Payload.FolderID,
			Filename:    ch.Filename,
			StorageKey:  ch.StorageKey,
			DocType:     types.DocTypeImage,
			MimeType:    ch.MimeType,
		})
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	if err := p.Repos.PreproJobs.AddPayloads(dbc, payloads); err != nil {
		return nil, fmt.Errorf("add image payloads: %w", err)
	}
	runs := make([]*types.JobRun, 0, len(payloads))
	for _, child := range payloads {
		run, err := p.Jobs.Enqueue(dbc, JobPreprocessImage, c.ProjectID(), Input{
			PreproJobID: child.PreproJobID,
			PayloadIDs:  []uuid.UUID{child.ID},
		})
		if err != nil {
			return nil, fmt.Errorf("enqueue image payload: %w", err)
		}
		if err := p.Repos.PreproJobs.UpdatePayload(dbc, child.ID, map[string]interface{}{"job_run_id": run.ID}); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toAutoSpans(docID uuid.UUID, content string, ents []modelworker.Entity) []*types.AutoSpan {
	out := make([]*types.AutoSpan, 0, len(ents))
	for _, e := range ents {
		if e.Start < 0 || e.End > len(content) || e.Start >= e.End {
			continue
		}
		out = append(out, &types.AutoSpan{
			SourceDocumentID: docID,
			Label:            e.Label,
			Text:             content[e.Start:e.End],
			BeginToken:       e.StartToken,
			EndToken:         e.EndToken,
			Begin:            e.Start,
			End:              e.End,
		})
	}
	return out
}

func starts(spans []htmlx.Span) []int {
	out := make([]int, len(spans))
	for i, s := range spans {
		out[i] = s.Start
	}
	return out
}

func ends(spans []htmlx.Span) []int {
	out := make([]int, len(spans))
	for i, s := range spans {
		out[i] = s.End
	}
	return out
}

// Package tagrec recommends tags for untagged documents from their nearest
// tagged neighbours in document-embedding space. Recommendations wait for a
// human review and are never applied on their own.
package tagrec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/domain/handles"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

const JobRecommendTags = "recommend_tags"

const (
	defaultNeighbors = 10
	defaultMinScore  = 0.3
)

type Input struct {
	// DocumentIDs restricts the candidates. Empty means every untagged
	// finished document of the project.
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	Neighbors   int         `json:"neighbors,omitempty"`
	MinScore    float64     `json:"min_score,omitempty"`
}

func (in *Input) Validate() error {
	if in.Neighbors < 0 {
		return errors.New("neighbors must be >= 0")
	}
	if in.MinScore < 0 || in.MinScore > 1 {
		return errors.New("min_score must be within [0, 1]")
	}
	return nil
}

type Output struct {
	Candidates      int `json:"candidates"`
	Skipped         int `json:"skipped"`
	Recommendations int `json:"recommendations"`
}

type Review struct {
	ID     uuid.UUID `json:"id"`
	Accept bool      `json:"accept"`
	Memo   *MemoNote `json:"memo,omitempty"`
}

type MemoNote struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Service interface {
	Register(reg *runtime.Registry) error
	// Pending lists unreviewed recommendations, best first.
	Pending(ctx context.Context, projectID uuid.UUID) ([]*types.TagRecommendationLink, error)
	// Review marks each recommendation reviewed and links accepted tags. All
	// reviews commit together or not at all.
	Review(ctx context.Context, reviews []Review) ([]*types.TagRecommendationLink, error)
}

type service struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   *repos.Set
	vectors vectorstore.Store
}

func NewService(db *gorm.DB, baseLog *logger.Logger, set *repos.Set, vectors vectorstore.Store) Service {
	return &service{db: db, log: baseLog.With("service", "TagRecommendationService"), repos: set, vectors: vectors}
}

func (s *service) Register(reg *runtime.Registry) error {
	return reg.Register(runtime.Spec{
		Type:    JobRecommendTags,
		Device:  types.DeviceCPU,
		Handler: runtime.Bind(s.recommend),
	})
}

func (s *service) recommend(jc *runtime.Context, in Input) (Output, error) {
	ctx := jc.Ctx
	dbc := dbctx.Of(ctx)
	projectID := jc.ProjectID()
	var out Output
	if in.Neighbors == 0 {
		in.Neighbors = defaultNeighbors
	}
	if in.MinScore == 0 {
		in.MinScore = defaultMinScore
	}

	jc.Progress("load", 5, "loading tagged documents")
	docs, err := s.repos.Documents.ListByProject(dbc, projectID, "", types.DocStatusFinished)
	if err != nil {
		return out, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	links, err := s.repos.Tags.LinksByDocuments(dbc, ids)
	if err != nil {
		return out, fmt.Errorf("list tag links: %w", err)
	}
	var tagged []string
	var candidates []uuid.UUID
	wanted := map[uuid.UUID]bool{}
	for _, id := range in.DocumentIDs {
		wanted[id] = true
	}
	for _, id := range ids {
		if len(links[id]) > 0 {
			tagged = append(tagged, id.String())
			continue
		}
		if len(wanted) == 0 || wanted[id] {
			candidates = append(candidates, id)
		}
	}
	out.Candidates = len(candidates)
	if len(tagged) == 0 || len(candidates) == 0 {
		jc.Log.Info("Nothing to recommend", "tagged", len(tagged), "candidates", len(candidates))
		return out, nil
	}

	ns := vectorstore.Namespace(projectID, vectorstore.KindDocument)
	filter := map[string]any{vectorstore.MetaSourceDocumentID: tagged}
	var recs []*types.TagRecommendationLink
	for i, docID := range candidates {
		if err := jc.CheckAbort(); err != nil {
			return out, err
		}
		vecs, err := s.vectors.Fetch(ctx, ns, []string{vectorstore.DocumentVectorID(docID)})
		if err != nil {
			return out, fmt.Errorf("fetch document vector: %w", err)
		}
		if len(vecs) == 0 || len(vecs[0].Values) == 0 {
			out.Skipped++
			continue
		}
		matches, err := s.vectors.QueryMatches(ctx, ns, vecs[0].Values, in.Neighbors, filter)
		if err != nil {
			return out, fmt.Errorf("query neighbours: %w", err)
		}
		for _, v := range Vote(matches, links, in.MinScore) {
			recs = append(recs, &types.TagRecommendationLink{
				JobID:            jc.Job.ID,
				ProjectID:        projectID,
				SourceDocumentID: docID,
				PredictedTagID:   v.TagID,
				PredictionScore:  v.Score,
			})
		}
		jc.Progress("classify", 10+80*(i+1)/len(candidates), fmt.Sprintf("%d of %d documents", i+1, len(candidates)))
	}

	if err := s.repos.TagRecommendations.Upsert(dbc, recs); err != nil {
		return out, fmt.Errorf("persist recommendations: %w", err)
	}
	out.Recommendations = len(recs)
	s.log.Info("Tag recommendation finished",
		"project_id", projectID,
		"candidates", out.Candidates,
		"recommendations", out.Recommendations,
	)
	return out, nil
}

type TagScore struct {
	TagID uuid.UUID
	Score float64
}

// Vote weighs each neighbour's tags by its similarity. A tag's score is its
// share of the total neighbour weight. Tags below minScore are dropped.
// Results are ordered by score, then tag id.
func Vote(matches []vectorstore.Match, links map[uuid.UUID][]uuid.UUID, minScore float64) []TagScore {
	votes := map[uuid.UUID]float64{}
	var total float64
	for _, m := range matches {
		w := m.Score
		if w <= 0 {
			continue
		}
		docID, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		total += w
		for _, tag := range links[docID] {
			votes[tag] += w
		}
	}
	if total == 0 {
		return nil
	}
	out := make([]TagScore, 0, len(votes))
	for tag, v := range votes {
		score := v / total
		if score >= minScore {
			out = append(out, TagScore{TagID: tag, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return strings.Compare(out[i].TagID.String(), out[j].TagID.String()) < 0
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func (s *service) Pending(ctx context.Context, projectID uuid.UUID) ([]*types.TagRecommendationLink, error) {
	return s.repos.TagRecommendations.ListPending(dbctx.Of(ctx), projectID)
}

func (s *service) Review(ctx context.Context, reviews []Review) ([]*types.TagRecommendationLink, error) {
	const op = "review tag recommendations"
	if len(reviews) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "no reviews")
	}
	ids := make([]uuid.UUID, len(reviews))
	for i, r := range reviews {
		if r.Memo != nil && strings.TrimSpace(r.Memo.Title) == "" {
			return nil, apperrors.New(apperrors.KindInvalidArgument, op, "memo title required")
		}
		ids[i] = r.ID
	}

	var out []*types.TagRecommendationLink
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.InTx(ctx, tx)
		links, err := s.repos.TagRecommendations.GetByIDs(dbc, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*types.TagRecommendationLink, len(links))
		for _, l := range links {
			byID[l.ID] = l
		}
		for _, r := range reviews {
			link, ok := byID[r.ID]
			if !ok {
				return apperrors.New(apperrors.KindNotFound, op, fmt.Sprintf("recommendation %s not found", r.ID))
			}
			changed, err := s.repos.TagRecommendations.MarkReviewed(dbc, link.ID, r.Accept)
			if err != nil {
				return err
			}
			if !changed {
				return apperrors.New(apperrors.KindConflict, op, fmt.Sprintf("recommendation %s already reviewed", r.ID))
			}
			link.IsReviewed = true
			link.Accepted = r.Accept
			if r.Accept {
				if err := s.repos.Tags.Link(dbc, link.SourceDocumentID, []uuid.UUID{link.PredictedTagID}); err != nil {
					return fmt.Errorf("link tag: %w", err)
				}
			}
			if r.Memo != nil {
				handle, err := s.repos.ObjectHandles.GetOrCreate(dbc, handles.KindTagRecommendation, link.ID)
				if err != nil {
					return fmt.Errorf("object handle: %w", err)
				}
				if err := s.repos.Memos.Create(dbc, &types.Memo{
					ProjectID:        link.ProjectID,
					AttachedHandleID: handle.ID,
					Title:            r.Memo.Title,
					Content:          r.Memo.Content,
				}); err != nil {
					return fmt.Errorf("create memo: %w", err)
				}
			}
			out = append(out, link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Tag recommendations reviewed", "count", len(out))
	return out, nil
}

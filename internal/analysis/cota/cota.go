// Package cota builds concept-over-time search spaces: for every concept of a
// COTA, the sentences closest to the concept description, each scored
// against all concepts.
package cota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

const JobRefineCOTA = "refine_cota"

const (
	StatusWaiting  = "waiting"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusError    = "error"
)

const defaultTopK = 20

type Embedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

type Input struct {
	COTAID uuid.UUID `json:"cota_id"`
	TopK   int       `json:"top_k,omitempty"`
}

func (in *Input) Validate() error {
	if in.COTAID == uuid.Nil {
		return errors.New("cota_id required")
	}
	if in.TopK < 0 {
		return errors.New("top_k must be >= 0")
	}
	return nil
}

type Output struct {
	Sentences  int            `json:"sentences"`
	PerConcept map[string]int `json:"per_concept"`
}

type Service interface {
	Register(reg *runtime.Registry) error
	Create(ctx context.Context, projectID uuid.UUID, name string, concepts []types.COTAConcept) (*types.COTA, error)
	Get(ctx context.Context, id uuid.UUID) (*types.COTA, error)
	SearchSpace(ctx context.Context, id uuid.UUID) ([]*types.COTASentence, error)
}

type service struct {
	log      *logger.Logger
	repos    *repos.Set
	vectors  vectorstore.Store
	embedder Embedder
}

func NewService(baseLog *logger.Logger, set *repos.Set, vectors vectorstore.Store, embedder Embedder) Service {
	return &service{log: baseLog.With("service", "COTAService"), repos: set, vectors: vectors, embedder: embedder}
}

func (s *service) Register(reg *runtime.Registry) error {
	return reg.Register(runtime.Spec{
		Type:    JobRefineCOTA,
		Device:  types.DeviceCPU,
		Handler: runtime.Bind(s.refine),
	})
}

func (s *service) Create(ctx context.Context, projectID uuid.UUID, name string, concepts []types.COTAConcept) (*types.COTA, error) {
	const op = "create cota"
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "name required")
	}
	if len(concepts) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "at least one concept required")
	}
	seen := map[string]bool{}
	for i := range concepts {
		c := &concepts[i]
		if strings.TrimSpace(c.Description) == "" {
			return nil, apperrors.New(apperrors.KindInvalidArgument, op, fmt.Sprintf("concept %q has no description", c.Name))
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if seen[c.ID] {
			return nil, apperrors.New(apperrors.KindInvalidArgument, op, fmt.Sprintf("duplicate concept id %s", c.ID))
		}
		seen[c.ID] = true
	}
	row := &types.COTA{ProjectID: projectID, Name: name, Concepts: concepts, Status: StatusWaiting}
	if err := s.repos.COTAs.Create(dbctx.Of(ctx), row); err != nil {
		return nil, fmt.Errorf("create cota: %w", err)
	}
	return row, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*types.COTA, error) {
	row, err := s.repos.COTAs.GetByID(dbctx.Of(ctx), id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "get cota", "cota not found")
	}
	return row, nil
}

func (s *service) SearchSpace(ctx context.Context, id uuid.UUID) ([]*types.COTASentence, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repos.COTAs.ListSearchSpace(dbctx.Of(ctx), id)
}

func (s *service) refine(jc *runtime.Context, in Input) (out Output, err error) {
	ctx := jc.Ctx
	dbc := dbctx.Of(ctx)
	row, err := s.Get(ctx, in.COTAID)
	if err != nil {
		return out, err
	}
	if row.ProjectID != jc.ProjectID() {
		return out, apperrors.New(apperrors.KindInvalidArgument, "refine cota", "cota belongs to another project")
	}
	if err := s.repos.COTAs.UpdateStatus(dbc, row.ID, StatusRunning); err != nil {
		return out, err
	}
	defer func() {
		status := StatusFinished
		if err != nil {
			status = StatusError
		}
		if uerr := s.repos.COTAs.UpdateStatus(dbctx.Of(context.WithoutCancel(ctx)), row.ID, status); uerr != nil {
			jc.Log.Warn("Update cota status failed", "cota_id", row.ID, "error", uerr)
		}
	}()
	topK := in.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	concepts := []types.COTAConcept(row.Concepts)
	descriptions := make([]string, len(concepts))
	for i, c := range concepts {
		descriptions[i] = c.Description
	}
	jc.Progress("embed_concepts", 10, fmt.Sprintf("%d concepts", len(concepts)))
	conceptVecs, err := s.embedder.EmbedText(ctx, descriptions)
	if err != nil {
		return out, fmt.Errorf("embed concepts: %w", err)
	}
	if len(conceptVecs) != len(concepts) {
		return out, fmt.Errorf("embed concepts: got %d vectors for %d concepts", len(conceptVecs), len(concepts))
	}

	ns := vectorstore.Namespace(row.ProjectID, vectorstore.KindSentence)
	members := map[string][]string{}
	var order []string
	out.PerConcept = map[string]int{}
	for i, c := range concepts {
		if err := jc.CheckAbort(); err != nil {
			return out, err
		}
		matches, err := s.vectors.QueryMatches(ctx, ns, conceptVecs[i], topK, nil)
		if err != nil {
			return out, fmt.Errorf("query concept %s: %w", c.ID, err)
		}
		out.PerConcept[c.ID] = len(matches)
		for _, m := range matches {
			if _, ok := members[m.ID]; !ok {
				order = append(order, m.ID)
			}
			members[m.ID] = append(members[m.ID], c.ID)
		}
		jc.Progress("search", 10+60*(i+1)/len(concepts), c.Name)
	}

	jc.Progress("score", 75, fmt.Sprintf("%d sentences", len(order)))
	sentences, err := s.vectors.Fetch(ctx, ns, order)
	if err != nil {
		return out, fmt.Errorf("fetch sentence vectors: %w", err)
	}
	rows := make([]*types.COTASentence, 0, len(sentences))
	for _, v := range sentences {
		docID, sentID, perr := vectorstore.ParseSentenceVectorID(v.ID)
		if perr != nil {
			jc.Log.Warn("Skipping sentence vector", "id", v.ID, "error", perr)
			continue
		}
		scores := make(map[string]float64, len(concepts))
		for i, c := range concepts {
			scores[c.ID] = vectorstore.Cosine(conceptVecs[i], v.Values)
		}
		text, _ := v.Metadata[vectorstore.MetaText].(string)
		rows = append(rows, &types.COTASentence{
			COTAID:           row.ID,
			SourceDocumentID: docID,
			SentenceID:       sentID,
			Text:             text,
			ConceptScores:    datatypes.NewJSONType(scores),
			Concepts:         members[v.ID],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SourceDocumentID != rows[j].SourceDocumentID {
			return rows[i].SourceDocumentID.String() < rows[j].SourceDocumentID.String()
		}
		return rows[i].SentenceID < rows[j].SentenceID
	})
	if err := s.repos.COTAs.ReplaceSearchSpace(dbc, row.ID, rows); err != nil {
		return out, fmt.Errorf("persist search space: %w", err)
	}
	out.Sentences = len(rows)
	s.log.Info("COTA refined", "cota_id", row.ID, "concepts", len(concepts), "sentences", out.Sentences)
	return out, nil
}

package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// Keys of the read-only definitions the pipeline fills.
const (
	KeyLanguage = "language"
	KeyWidth    = "width"
	KeyHeight   = "height"
	KeyDuration = "duration"
	KeyPages    = "pages"
	KeyMimeType = "mime_type"
)

type systemDef struct {
	key      string
	metatype types.MetaType
	doctypes []types.DocType
	desc     string
}

var systemDefs = []systemDef{
	{KeyLanguage, types.MetaTypeString, []types.DocType{types.DocTypeText, types.DocTypeImage, types.DocTypeAudio, types.DocTypeVideo}, "detected language (ISO 639-1)"},
	{KeyMimeType, types.MetaTypeString, []types.DocType{types.DocTypeText, types.DocTypeImage, types.DocTypeAudio, types.DocTypeVideo}, "sniffed MIME type"},
	{KeyPages, types.MetaTypeNumber, []types.DocType{types.DocTypeText}, "page count of the source PDF"},
	{KeyWidth, types.MetaTypeNumber, []types.DocType{types.DocTypeImage}, "image width in pixels"},
	{KeyHeight, types.MetaTypeNumber, []types.DocType{types.DocTypeImage}, "image height in pixels"},
	{KeyDuration, types.MetaTypeNumber, []types.DocType{types.DocTypeAudio, types.DocTypeVideo}, "duration in seconds"},
}

type Service interface {
	// CreateProjectMetadata adds a definition and back-fills an empty value for
	// every existing document of its doctype in the same transaction.
	CreateProjectMetadata(ctx context.Context, def *types.ProjectMetadata) (*types.ProjectMetadata, error)
	// FillForDocument writes one value per definition matching the document's
	// doctype. Definitions without a supplied value get an empty row.
	FillForDocument(dbc dbctx.Context, doc *types.SourceDocument, values map[string]any) error
	EnsureSystemMetadata(ctx context.Context, projectID uuid.UUID) error
}

type service struct {
	db        *gorm.DB
	log       *logger.Logger
	metadata  repos.MetadataRepo
	documents repos.SourceDocumentRepo
}

func NewService(db *gorm.DB, baseLog *logger.Logger, metadata repos.MetadataRepo, documents repos.SourceDocumentRepo) Service {
	return &service{
		db:        db,
		log:       baseLog.With("service", "MetadataService"),
		metadata:  metadata,
		documents: documents,
	}
}

func (s *service) CreateProjectMetadata(ctx context.Context, def *types.ProjectMetadata) (*types.ProjectMetadata, error) {
	const op = "create project metadata"
	if def == nil || def.ProjectID == uuid.Nil {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "project_id required")
	}
	def.Key = strings.TrimSpace(def.Key)
	if def.Key == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, "key required")
	}
	if !def.DocType.Valid() || !def.MetaType.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op, fmt.Sprintf("invalid doctype %q or metatype %q", def.DocType, def.MetaType))
	}
	err := dbctx.Transaction(ctx, s.db, func(dbc dbctx.Context) error {
		existing, err := s.metadata.GetDefinition(dbc, def.ProjectID, def.DocType, def.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.New(apperrors.KindConflict, op, fmt.Sprintf("metadata %q already exists for %s", def.Key, def.DocType))
		}
		if err := s.metadata.CreateDefinition(dbc, def); err != nil {
			if repos.IsUniqueViolation(err) {
				return apperrors.Wrap(apperrors.KindConflict, op, err)
			}
			return err
		}
		docs, err := s.documents.ListByProject(dbc, def.ProjectID, def.DocType, "")
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		values := make([]*types.SourceDocumentMetadata, 0, len(docs))
		for _, d := range docs {
			values = append(values, &types.SourceDocumentMetadata{SourceDocumentID: d.ID, ProjectMetadataID: def.ID})
		}
		return s.metadata.CreateValues(dbc, values)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Project metadata created", "project_id", def.ProjectID, "key", def.Key, "doctype", def.DocType)
	return def, nil
}

func (s *service) FillForDocument(dbc dbctx.Context, doc *types.SourceDocument, values map[string]any) error {
	defs, err := s.metadata.ListDefinitions(dbc, doc.ProjectID, doc.DocType)
	if err != nil {
		return fmt.Errorf("list metadata definitions: %w", err)
	}
	rows := make([]*types.SourceDocumentMetadata, 0, len(defs))
	for _, def := range defs {
		row := &types.SourceDocumentMetadata{SourceDocumentID: doc.ID, ProjectMetadataID: def.ID}
		if v, ok := values[def.Key]; ok {
			if err := row.SetValue(def.MetaType, v); err != nil {
				return apperrors.Wrap(apperrors.KindInvalidArgument, "fill metadata "+def.Key, err)
			}
		}
		rows = append(rows, row)
	}
	return s.metadata.CreateValues(dbc, rows)
}

func (s *service) EnsureSystemMetadata(ctx context.Context, projectID uuid.UUID) error {
	dbc := dbctx.Of(ctx)
	for _, sd := range systemDefs {
		for _, dt := range sd.doctypes {
			existing, err := s.metadata.GetDefinition(dbc, projectID, dt, sd.key)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			def := &types.ProjectMetadata{
				ProjectID:   projectID,
				Key:         sd.key,
				DocType:     dt,
				MetaType:    sd.metatype,
				ReadOnly:    true,
				Description: sd.desc,
			}
			if err := s.metadata.CreateDefinition(dbc, def); err != nil && !repos.IsUniqueViolation(err) {
				return fmt.Errorf("create system metadata %s/%s: %w", dt, sd.key, err)
			}
		}
	}
	return nil
}

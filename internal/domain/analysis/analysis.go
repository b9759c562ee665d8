package analysis

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Everything in this package is re-derivable from documents and embeddings
// and may be deleted and regenerated.

type TagRecommendationLink struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID            uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	ProjectID        uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	SourceDocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tagrec_pair,priority:1" json:"source_document_id"`
	PredictedTagID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tagrec_pair,priority:2" json:"predicted_tag_id"`
	PredictionScore  float64   `gorm:"column:prediction_score;not null" json:"prediction_score"`
	IsReviewed       bool      `gorm:"column:is_reviewed;not null;index" json:"is_reviewed"`
	Accepted         bool      `gorm:"column:accepted;not null" json:"accepted"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (TagRecommendationLink) TableName() string { return "tag_recommendation_link" }

func (l *TagRecommendationLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type DuplicateCluster struct {
	ID        uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID                      `gorm:"type:uuid;not null;index" json:"job_id"`
	ProjectID uuid.UUID                      `gorm:"type:uuid;not null;index" json:"project_id"`
	Members   datatypes.JSONSlice[uuid.UUID] `gorm:"column:members" json:"members"`
	CreatedAt time.Time                      `gorm:"not null" json:"created_at"`
}

func (DuplicateCluster) TableName() string { return "duplicate_cluster" }

func (c *DuplicateCluster) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// COTA is a concept-over-time analysis definition. Concepts are free text
// descriptions that are embedded and matched against sentence embeddings.
type COTA struct {
	ID        uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID                    `gorm:"type:uuid;not null;index" json:"project_id"`
	Name      string                       `gorm:"column:name;not null" json:"name"`
	Concepts  datatypes.JSONSlice[Concept] `gorm:"column:concepts" json:"concepts"`
	Status    string                       `gorm:"column:status;not null" json:"status"`
	CreatedAt time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time                    `gorm:"not null" json:"updated_at"`
}

type Concept struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (COTA) TableName() string { return "cota" }

func (c *COTA) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// COTASentence is one entry of a COTA search space.
type COTASentence struct {
	ID               uuid.UUID                              `gorm:"type:uuid;primaryKey" json:"id"`
	COTAID           uuid.UUID                              `gorm:"type:uuid;column:cota_id;not null;index" json:"cota_id"`
	SourceDocumentID uuid.UUID                              `gorm:"type:uuid;not null;index" json:"source_document_id"`
	SentenceID       int                                    `gorm:"column:sentence_id;not null" json:"sentence_id"`
	Text             string                                 `gorm:"column:text;not null" json:"text"`
	ConceptScores    datatypes.JSONType[map[string]float64] `gorm:"column:concept_scores" json:"concept_scores"`
	Concepts         datatypes.JSONSlice[string]            `gorm:"column:concepts" json:"concepts"`
	CreatedAt        time.Time                              `gorm:"not null" json:"created_at"`
}

func (COTASentence) TableName() string { return "cota_sentence" }

func (s *COTASentence) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AutoSpan is a named-entity candidate written by the pipeline for review.
type AutoSpan struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceDocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_document_id"`
	Label            string    `gorm:"column:label;not null;index" json:"label"`
	Text             string    `gorm:"column:text;not null" json:"text"`
	BeginToken       int       `gorm:"column:begin_token;not null" json:"begin_token"`
	EndToken         int       `gorm:"column:end_token;not null" json:"end_token"`
	Begin            int       `gorm:"column:begin_offset;not null" json:"begin"`
	End              int       `gorm:"column:end_offset;not null" json:"end"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (AutoSpan) TableName() string { return "auto_span" }

func (a *AutoSpan) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// AutoBBox is an object-detection candidate in pixel coordinates.
type AutoBBox struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceDocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_document_id"`
	Label            string    `gorm:"column:label;not null;index" json:"label"`
	Score            float64   `gorm:"column:score;not null" json:"score"`
	X                int       `gorm:"column:x;not null" json:"x"`
	Y                int       `gorm:"column:y;not null" json:"y"`
	Width            int       `gorm:"column:width;not null" json:"width"`
	Height           int       `gorm:"column:height;not null" json:"height"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (AutoBBox) TableName() string { return "auto_bbox" }

func (a *AutoBBox) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentTag struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tag_name,priority:1" json:"project_id"`
	Name        string    `gorm:"column:name;not null;uniqueIndex:idx_tag_name,priority:2" json:"name"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Color       string    `gorm:"column:color" json:"color,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentTag) TableName() string { return "document_tag" }

func (t *DocumentTag) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

type SourceDocumentTag struct {
	SourceDocumentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"source_document_id"`
	DocumentTagID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"document_tag_id"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (SourceDocumentTag) TableName() string { return "source_document_tag" }

type WordFrequency struct {
	SourceDocumentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"source_document_id"`
	Word             string    `gorm:"column:word;primaryKey" json:"word"`
	Count            int       `gorm:"column:count;not null" json:"count"`
}

func (WordFrequency) TableName() string { return "word_frequency" }

package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocType string

const (
	DocTypeText  DocType = "text"
	DocTypeImage DocType = "image"
	DocTypeAudio DocType = "audio"
	DocTypeVideo DocType = "video"
)

func (d DocType) Valid() bool {
	switch d {
	case DocTypeText, DocTypeImage, DocTypeAudio, DocTypeVideo:
		return true
	}
	return false
}

// Status gates every downstream read of a document.
type Status string

const (
	StatusUnfinished Status = "unfinished"
	StatusRunning    Status = "running"
	StatusFinished   Status = "finished"
	StatusErroneous  Status = "erroneous"
)

type SourceDocument struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_sdoc_project_filename,priority:1" json:"project_id"`
	Filename    string     `gorm:"column:filename;not null;uniqueIndex:idx_sdoc_project_filename,priority:2" json:"filename"`
	Name        string     `gorm:"column:name" json:"name"`
	DocType     DocType    `gorm:"column:doctype;not null;index" json:"doctype"`
	Status      Status     `gorm:"column:status;not null;index" json:"status"`
	FolderID    *uuid.UUID `gorm:"type:uuid;column:folder_id;index" json:"folder_id,omitempty"`
	StorageKey  string     `gorm:"column:storage_key" json:"storage_key"`
	MimeType    string     `gorm:"column:mime_type" json:"mime_type"`
	PreproJobID *uuid.UUID `gorm:"type:uuid;column:prepro_job_id;index" json:"prepro_job_id,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (SourceDocument) TableName() string { return "source_document" }

func (d *SourceDocument) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	if d.Status == "" {
		d.Status = StatusUnfinished
	}
	if d.Name == "" {
		d.Name = d.Filename
	}
	return nil
}

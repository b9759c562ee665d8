package preprocessing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/domain/documents"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusAborted  Status = "aborted"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusAborted
}

// Settings are the knobs a caller may pass when starting preprocessing.
type Settings struct {
	PagesPerChunk int         `json:"pages_per_chunk"`
	KeepArchive   bool        `json:"keep_archive"`
	TagIDs        []uuid.UUID `json:"tag_ids,omitempty"`
}

type PreprocessingJob struct {
	ID        uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID                    `gorm:"type:uuid;not null;index" json:"project_id"`
	Status    Status                       `gorm:"column:status;not null;index" json:"status"`
	Aborted   bool                         `gorm:"column:aborted;not null" json:"aborted"`
	Settings  datatypes.JSONType[Settings] `gorm:"column:settings" json:"settings"`
	CreatedAt time.Time                    `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time                    `gorm:"not null" json:"updated_at"`

	Payloads []*PreprocessingJobPayload `gorm:"foreignKey:PreproJobID" json:"payloads,omitempty"`
}

func (PreprocessingJob) TableName() string { return "preprocessing_job" }

func (j *PreprocessingJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = StatusWaiting
	}
	return nil
}

// PreprocessingJobPayload is one document's worth of work. SourceDocumentID is
// assigned when the payload is created so retries land on the same document.
type PreprocessingJobPayload struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	PreproJobID      uuid.UUID          `gorm:"type:uuid;column:prepro_job_id;not null;index" json:"prepro_job_id"`
	ProjectID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"project_id"`
	SourceDocumentID uuid.UUID          `gorm:"type:uuid;not null;index" json:"source_document_id"`
	FolderID         *uuid.UUID         `gorm:"type:uuid;column:folder_id" json:"folder_id,omitempty"`
	Filename         string             `gorm:"column:filename;not null" json:"filename"`
	StorageKey       string             `gorm:"column:storage_key;not null" json:"storage_key"`
	DocType          documents.DocType  `gorm:"column:doctype;not null" json:"doctype"`
	MimeType         string             `gorm:"column:mime_type;not null" json:"mime_type"`
	Status           Status             `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage     string             `gorm:"column:error_message" json:"error_message,omitempty"`
	JobRunID         *uuid.UUID         `gorm:"type:uuid;column:job_run_id;index" json:"job_run_id,omitempty"`
	CreatedAt        time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null" json:"updated_at"`
}

func (PreprocessingJobPayload) TableName() string { return "preprocessing_job_payload" }

func (p *PreprocessingJobPayload) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.SourceDocumentID == uuid.Nil {
		p.SourceDocumentID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusWaiting
	}
	return nil
}

// AggregateStatus merges payload states into the job state. It is recomputed on
// every payload transition and never cached.
func AggregateStatus(jobAborted bool, payloads []Status) Status {
	if jobAborted {
		return StatusAborted
	}
	if len(payloads) == 0 {
		return StatusWaiting
	}
	var waiting, active, errored, aborted int
	for _, s := range payloads {
		switch s {
		case StatusWaiting:
			waiting++
			active++
		case StatusRunning:
			active++
		case StatusError:
			errored++
		case StatusAborted:
			aborted++
		}
	}
	switch {
	case waiting == len(payloads):
		return StatusWaiting
	case active > 0:
		return StatusRunning
	case errored > 0:
		return StatusError
	case aborted > 0:
		return StatusAborted
	}
	return StatusFinished
}

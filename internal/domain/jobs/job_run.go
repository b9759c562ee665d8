package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusWaiting  = "waiting"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusError    = "error"
	StatusAborted  = "aborted"
)

type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

func (d Device) Valid() bool { return d == DeviceCPU || d == DeviceGPU }

// TerminalStatuses are the states a job never leaves.
var TerminalStatuses = []string{StatusFinished, StatusError, StatusAborted}

func IsTerminal(status string) bool {
	switch status {
	case StatusFinished, StatusError, StatusAborted:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	if IsTerminal(from) {
		return false
	}
	switch from {
	case StatusWaiting:
		return to == StatusRunning || to == StatusAborted || to == StatusError
	case StatusRunning:
		return to == StatusRunning || IsTerminal(to)
	}
	return false
}

type JobRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	JobType       string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Device        Device         `gorm:"column:device;not null;index" json:"device"`
	Priority      int            `gorm:"column:priority;not null;default:0;index" json:"priority"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	StatusMessage string         `gorm:"column:status_message" json:"status_message,omitempty"`
	Stage         string         `gorm:"column:stage;not null" json:"stage"`
	Progress      int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Error         string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt      *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt   *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	StartedAt     *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result        datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = StatusWaiting
	}
	if j.Stage == "" {
		j.Stage = "queued"
	}
	if j.Device == "" {
		j.Device = DeviceCPU
	}
	return nil
}

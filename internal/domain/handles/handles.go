package handles

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ObjectKind is the closed set of entities a handle can point at.
type ObjectKind string

const (
	KindProject           ObjectKind = "project"
	KindSourceDocument    ObjectKind = "source_document"
	KindTag               ObjectKind = "tag"
	KindMemo              ObjectKind = "memo"
	KindSpanAnnotation    ObjectKind = "span_annotation"
	KindBBoxAnnotation    ObjectKind = "bbox_annotation"
	KindCOTA              ObjectKind = "cota"
	KindTagRecommendation ObjectKind = "tag_recommendation"
)

// AllKinds lists every ObjectKind; switch statements over ObjectKind are
// checked against it in tests.
var AllKinds = []ObjectKind{
	KindProject,
	KindSourceDocument,
	KindTag,
	KindMemo,
	KindSpanAnnotation,
	KindBBoxAnnotation,
	KindCOTA,
	KindTagRecommendation,
}

func (k ObjectKind) Valid() bool {
	for _, c := range AllKinds {
		if c == k {
			return true
		}
	}
	return false
}

// TableName returns the table a kind's target id lives in.
func (k ObjectKind) TableName() string {
	switch k {
	case KindProject:
		return "project"
	case KindSourceDocument:
		return "source_document"
	case KindTag:
		return "document_tag"
	case KindMemo:
		return "memo"
	case KindSpanAnnotation:
		return "auto_span"
	case KindBBoxAnnotation:
		return "auto_bbox"
	case KindCOTA:
		return "cota"
	case KindTagRecommendation:
		return "tag_recommendation_link"
	}
	return ""
}

// ObjectHandle is a polymorphic reference. (kind, target_id) is unique, so
// there is exactly one handle per target.
type ObjectHandle struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      ObjectKind `gorm:"column:kind;not null;uniqueIndex:idx_handle_target,priority:1" json:"kind"`
	TargetID  uuid.UUID  `gorm:"type:uuid;column:target_id;not null;uniqueIndex:idx_handle_target,priority:2" json:"target_id"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (ObjectHandle) TableName() string { return "object_handle" }

func (h *ObjectHandle) BeforeCreate(tx *gorm.DB) error {
	if !h.Kind.Valid() {
		return fmt.Errorf("invalid object kind %q", h.Kind)
	}
	if h.TargetID == uuid.Nil {
		return fmt.Errorf("object handle without target")
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

type Memo struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID        uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	AttachedHandleID uuid.UUID `gorm:"type:uuid;column:attached_handle_id;not null;index" json:"attached_handle_id"`
	Title            string    `gorm:"column:title;not null" json:"title"`
	Content          string    `gorm:"column:content" json:"content"`
	Starred          bool      `gorm:"column:starred;not null" json:"starred"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (Memo) TableName() string { return "memo" }

func (m *Memo) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MetaType string

const (
	MetaTypeString  MetaType = "string"
	MetaTypeNumber  MetaType = "number"
	MetaTypeDate    MetaType = "date"
	MetaTypeBoolean MetaType = "boolean"
	MetaTypeList    MetaType = "list"
)

func (m MetaType) Valid() bool {
	switch m {
	case MetaTypeString, MetaTypeNumber, MetaTypeDate, MetaTypeBoolean, MetaTypeList:
		return true
	}
	return false
}

// ProjectMetadata defines one typed field applied to every document of DocType.
type ProjectMetadata struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_pmeta_key,priority:1" json:"project_id"`
	Key         string    `gorm:"column:meta_key;not null;uniqueIndex:idx_pmeta_key,priority:3" json:"key"`
	DocType     DocType   `gorm:"column:doctype;not null;uniqueIndex:idx_pmeta_key,priority:2" json:"doctype"`
	MetaType    MetaType  `gorm:"column:metatype;not null" json:"metatype"`
	ReadOnly    bool      `gorm:"column:read_only;not null" json:"read_only"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (ProjectMetadata) TableName() string { return "project_metadata" }

func (m *ProjectMetadata) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// SourceDocumentMetadata stores exactly one value column, the one matching the
// definition's MetaType. Untouched values stay NULL.
type SourceDocumentMetadata struct {
	ID                uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	SourceDocumentID  uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_sdmeta_pair,priority:1" json:"source_document_id"`
	ProjectMetadataID uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_sdmeta_pair,priority:2;index" json:"project_metadata_id"`
	StringValue       *string                     `gorm:"column:string_value" json:"string_value,omitempty"`
	NumberValue       *float64                    `gorm:"column:number_value" json:"number_value,omitempty"`
	DateValue         *time.Time                  `gorm:"column:date_value" json:"date_value,omitempty"`
	BooleanValue      *bool                       `gorm:"column:boolean_value" json:"boolean_value,omitempty"`
	ListValue         datatypes.JSONSlice[string] `gorm:"column:list_value" json:"list_value,omitempty"`
	CreatedAt         time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"not null" json:"updated_at"`
}

func (SourceDocumentMetadata) TableName() string { return "source_document_metadata" }

func (m *SourceDocumentMetadata) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// SetValue stores v in the column matching t. A nil v clears the value.
func (m *SourceDocumentMetadata) SetValue(t MetaType, v any) error {
	m.StringValue, m.NumberValue, m.DateValue, m.BooleanValue, m.ListValue = nil, nil, nil, nil, nil
	if v == nil {
		return nil
	}
	switch t {
	case MetaTypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("metadata of type %s cannot hold %T", t, v)
		}
		m.StringValue = &s
	case MetaTypeNumber:
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		default:
			return fmt.Errorf("metadata of type %s cannot hold %T", t, v)
		}
		m.NumberValue = &f
	case MetaTypeDate:
		d, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("metadata of type %s cannot hold %T", t, v)
		}
		m.DateValue = &d
	case MetaTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("metadata of type %s cannot hold %T", t, v)
		}
		m.BooleanValue = &b
	case MetaTypeList:
		l, ok := v.([]string)
		if !ok {
			return fmt.Errorf("metadata of type %s cannot hold %T", t, v)
		}
		m.ListValue = datatypes.JSONSlice[string](l)
	default:
		return fmt.Errorf("unknown metatype %q", t)
	}
	return nil
}

// Value returns the stored value of type t, or nil.
func (m *SourceDocumentMetadata) Value(t MetaType) any {
	switch t {
	case MetaTypeString:
		if m.StringValue != nil {
			return *m.StringValue
		}
	case MetaTypeNumber:
		if m.NumberValue != nil {
			return *m.NumberValue
		}
	case MetaTypeDate:
		if m.DateValue != nil {
			return *m.DateValue
		}
	case MetaTypeBoolean:
		if m.BooleanValue != nil {
			return *m.BooleanValue
		}
	case MetaTypeList:
		if m.ListValue != nil {
			return []string(m.ListValue)
		}
	}
	return nil
}

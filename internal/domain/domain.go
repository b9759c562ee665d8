package domain

import (
	"github.com/yungbote/dats-backend/internal/domain/analysis"
	"github.com/yungbote/dats-backend/internal/domain/documents"
	"github.com/yungbote/dats-backend/internal/domain/handles"
	"github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/domain/preprocessing"
)

type Project = documents.Project
type SourceDocument = documents.SourceDocument
type SourceDocumentFolder = documents.SourceDocumentFolder
type SourceDocumentData = documents.SourceDocumentData
type ProjectMetadata = documents.ProjectMetadata
type SourceDocumentMetadata = documents.SourceDocumentMetadata
type DocumentTag = documents.DocumentTag
type SourceDocumentTag = documents.SourceDocumentTag
type WordFrequency = documents.WordFrequency
type AutoSpan = documents.AutoSpan
type AutoBBox = documents.AutoBBox

type DocType = documents.DocType
type DocStatus = documents.Status
type MetaType = documents.MetaType

const (
	DocTypeText  = documents.DocTypeText
	DocTypeImage = documents.DocTypeImage
	DocTypeAudio = documents.DocTypeAudio
	DocTypeVideo = documents.DocTypeVideo

	DocStatusUnfinished = documents.StatusUnfinished
	DocStatusRunning    = documents.StatusRunning
	DocStatusFinished   = documents.StatusFinished
	DocStatusErroneous  = documents.StatusErroneous

	MetaTypeString  = documents.MetaTypeString
	MetaTypeNumber  = documents.MetaTypeNumber
	MetaTypeDate    = documents.MetaTypeDate
	MetaTypeBoolean = documents.MetaTypeBoolean
	MetaTypeList    = documents.MetaTypeList
)

type PreprocessingJob = preprocessing.PreprocessingJob
type PreprocessingJobPayload = preprocessing.PreprocessingJobPayload
type PreproStatus = preprocessing.Status
type PreproSettings = preprocessing.Settings

const (
	PreproWaiting  = preprocessing.StatusWaiting
	PreproRunning  = preprocessing.StatusRunning
	PreproFinished = preprocessing.StatusFinished
	PreproError    = preprocessing.StatusError
	PreproAborted  = preprocessing.StatusAborted
)

type JobRun = jobs.JobRun
type JobRunEvent = jobs.JobRunEvent
type Device = jobs.Device

const (
	DeviceCPU = jobs.DeviceCPU
	DeviceGPU = jobs.DeviceGPU
)

type TagRecommendationLink = analysis.TagRecommendationLink
type DuplicateCluster = analysis.DuplicateCluster
type COTA = analysis.COTA
type COTAConcept = analysis.Concept
type COTASentence = analysis.COTASentence

type ObjectHandle = handles.ObjectHandle
type ObjectKind = handles.ObjectKind
type Memo = handles.Memo

// Models returns every persisted model in migration order.
func Models() []any {
	return []any{
		&Project{},
		&SourceDocumentFolder{},
		&SourceDocument{},
		&SourceDocumentData{},
		&ProjectMetadata{},
		&SourceDocumentMetadata{},
		&DocumentTag{},
		&SourceDocumentTag{},
		&WordFrequency{},
		&AutoSpan{},
		&AutoBBox{},
		&PreprocessingJob{},
		&PreprocessingJobPayload{},
		&JobRun{},
		&JobRunEvent{},
		&TagRecommendationLink{},
		&DuplicateCluster{},
		&COTA{},
		&COTASentence{},
		&ObjectHandle{},
		&Memo{},
	}
}

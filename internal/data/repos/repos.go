package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos/analysis"
	"github.com/yungbote/dats-backend/internal/data/repos/dberr"
	"github.com/yungbote/dats-backend/internal/data/repos/documents"
	"github.com/yungbote/dats-backend/internal/data/repos/handles"
	"github.com/yungbote/dats-backend/internal/data/repos/jobs"
	"github.com/yungbote/dats-backend/internal/data/repos/preprocessing"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type ProjectRepo = documents.ProjectRepo
type FolderRepo = documents.FolderRepo
type SourceDocumentRepo = documents.SourceDocumentRepo
type SourceDocumentDataRepo = documents.SourceDocumentDataRepo
type MetadataRepo = documents.MetadataRepo
type TagRepo = documents.TagRepo
type WordFrequencyRepo = documents.WordFrequencyRepo
type AnnotationRepo = documents.AnnotationRepo

type PreproJobRepo = preprocessing.PreproJobRepo

type JobRunRepo = jobs.JobRunRepo
type JobRunEventRepo = jobs.JobRunEventRepo

type TagRecommendationRepo = analysis.TagRecommendationRepo
type DuplicateClusterRepo = analysis.DuplicateClusterRepo
type COTARepo = analysis.COTARepo

type ObjectHandleRepo = handles.ObjectHandleRepo
type MemoRepo = handles.MemoRepo

var IsUniqueViolation = dberr.IsUniqueViolation

// Set bundles every repo over one database handle.
type Set struct {
	Projects           ProjectRepo
	Folders            FolderRepo
	Documents          SourceDocumentRepo
	DocumentData       SourceDocumentDataRepo
	Metadata           MetadataRepo
	Tags               TagRepo
	WordFrequencies    WordFrequencyRepo
	Annotations        AnnotationRepo
	PreproJobs         PreproJobRepo
	JobRuns            JobRunRepo
	JobRunEvents       JobRunEventRepo
	TagRecommendations TagRecommendationRepo
	DuplicateClusters  DuplicateClusterRepo
	COTAs              COTARepo
	ObjectHandles      ObjectHandleRepo
	Memos              MemoRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) *Set {
	return &Set{
		Projects:           documents.NewProjectRepo(db, baseLog),
		Folders:            documents.NewFolderRepo(db, baseLog),
		Documents:          documents.NewSourceDocumentRepo(db, baseLog),
		DocumentData:       documents.NewSourceDocumentDataRepo(db, baseLog),
		Metadata:           documents.NewMetadataRepo(db, baseLog),
		Tags:               documents.NewTagRepo(db, baseLog),
		WordFrequencies:    documents.NewWordFrequencyRepo(db, baseLog),
		Annotations:        documents.NewAnnotationRepo(db, baseLog),
		PreproJobs:         preprocessing.NewPreproJobRepo(db, baseLog),
		JobRuns:            jobs.NewJobRunRepo(db, baseLog),
		JobRunEvents:       jobs.NewJobRunEventRepo(db, baseLog),
		TagRecommendations: analysis.NewTagRecommendationRepo(db, baseLog),
		DuplicateClusters:  analysis.NewDuplicateClusterRepo(db, baseLog),
		COTAs:              analysis.NewCOTARepo(db, baseLog),
		ObjectHandles:      handles.NewObjectHandleRepo(db, baseLog),
		Memos:              handles.NewMemoRepo(db, baseLog),
	}
}

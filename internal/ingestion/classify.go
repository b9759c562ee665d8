package ingestion

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	types "github.com/yungbote/dats-backend/internal/domain"
)

type ArchiveFormat string

const (
	ArchiveZip   ArchiveFormat = "zip"
	ArchiveTar   ArchiveFormat = "tar"
	ArchiveTarGz ArchiveFormat = "tar.gz"
)

// Class is the ingestion path elected for one file.
type Class struct {
	MimeType string
	DocType  types.DocType
	Archive  ArchiveFormat
}

func (c Class) Supported() bool { return c.DocType != "" || c.Archive != "" }

func (c Class) IsPDF() bool { return c.MimeType == "application/pdf" }

var docTypes = map[string]types.DocType{
	"text/plain":            types.DocTypeText,
	"text/html":             types.DocTypeText,
	"application/xhtml+xml": types.DocTypeText,
	"text/markdown":         types.DocTypeText,
	"text/csv":              types.DocTypeText,
	"application/pdf":       types.DocTypeText,
	"application/rtf":       types.DocTypeText,
	"text/rtf":              types.DocTypeText,
	"application/msword":    types.DocTypeText,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": types.DocTypeText,
	"application/vnd.oasis.opendocument.text":                                 types.DocTypeText,

	"image/png":  types.DocTypeImage,
	"image/jpeg": types.DocTypeImage,
	"image/gif":  types.DocTypeImage,
	"image/bmp":  types.DocTypeImage,
	"image/tiff": types.DocTypeImage,
	"image/webp": types.DocTypeImage,

	"audio/mpeg":   types.DocTypeAudio,
	"audio/wav":    types.DocTypeAudio,
	"audio/x-wav":  types.DocTypeAudio,
	"audio/ogg":    types.DocTypeAudio,
	"audio/flac":   types.DocTypeAudio,
	"audio/x-flac": types.DocTypeAudio,
	"audio/mp4":    types.DocTypeAudio,
	"audio/x-m4a":  types.DocTypeAudio,
	"audio/aac":    types.DocTypeAudio,
	"audio/webm":   types.DocTypeAudio,

	"video/mp4":        types.DocTypeVideo,
	"video/webm":       types.DocTypeVideo,
	"video/quicktime":  types.DocTypeVideo,
	"video/x-matroska": types.DocTypeVideo,
	"video/x-msvideo":  types.DocTypeVideo,
	"video/mpeg":       types.DocTypeVideo,
}

// Classify sniffs the content and falls back to the extension where the
// sniffer only sees generic text or a zip container.
func Classify(filename string, data []byte) Class {
	detected := mimetype.Detect(data)
	mime := baseMime(detected.String())
	ext := strings.ToLower(path.Ext(filename))

	switch mime {
	case "application/zip":
		return Class{MimeType: mime, Archive: ArchiveZip}
	case "application/x-tar":
		return Class{MimeType: mime, Archive: ArchiveTar}
	case "application/gzip", "application/x-gzip":
		if ext == ".tgz" || strings.HasSuffix(strings.ToLower(filename), ".tar.gz") {
			return Class{MimeType: mime, Archive: ArchiveTarGz}
		}
		return Class{MimeType: mime}
	case "text/plain":
		switch ext {
		case ".md", ".markdown":
			mime = "text/markdown"
		case ".csv":
			mime = "text/csv"
		case ".html", ".htm":
			mime = "text/html"
		}
	}
	if dt, ok := docTypes[mime]; ok {
		return Class{MimeType: mime, DocType: dt}
	}
	for p := detected.Parent(); p != nil; p = p.Parent() {
		if dt, ok := docTypes[baseMime(p.String())]; ok && dt != types.DocTypeText {
			return Class{MimeType: baseMime(p.String()), DocType: dt}
		}
	}
	return Class{MimeType: mime}
}

func baseMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

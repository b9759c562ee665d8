package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/pdfx"
)

var officeMimes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/msword":                      true,
	"application/vnd.oasis.opendocument.text": true,
	"application/rtf":                         true,
	"text/rtf":                                true,
}

func (p *Pipeline) extract(ctx context.Context, c *TextCargo) error {
	mime := baseMime(c.Payload.MimeType)
	switch {
	case mime == "text/html" || mime == "application/xhtml+xml":
		c.RawHTML = validUTF8(c.Raw)
	case mime == "application/pdf":
		return p.extractPDF(ctx, c)
	case officeMimes[mime]:
		res, err := docconv.Convert(bytes.NewReader(c.Raw), mime, true)
		if err != nil {
			return apperrors.Wrap(apperrors.KindCorruption, "extract.office", err)
		}
		c.RawHTML = plainToHTML(res.Body)
	case strings.HasPrefix(mime, "text/"):
		c.RawHTML = plainToHTML(validUTF8(c.Raw))
	default:
		return apperrors.New(apperrors.KindUnsupportedMedia, "extract", fmt.Sprintf("cannot extract text from %s", mime))
	}
	return nil
}

func (p *Pipeline) extractPDF(ctx context.Context, c *TextCargo) error {
	pages, err := pdfx.PageCount(c.Raw)
	if err != nil {
		return apperrors.Wrap(apperrors.KindCorruption, "extract.pdf", err)
	}
	c.Metadata[metaPages] = pages

	if p.cfg.PDFExtractor == "local" || p.PDF == nil {
		body, err := localPDFToHTML(c.Raw)
		if err != nil {
			return err
		}
		c.RawHTML = body
		return nil
	}

	conv, err := p.PDF.PDFToHTML(ctx, c.Raw)
	if err != nil {
		return fmt.Errorf("pdf to html: %w", err)
	}
	body := conv.HTML
	c.Images = make(map[string][]byte, len(conv.Images))
	names := make([]string, 0, len(conv.Images))
	for name := range conv.Images {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := childImageName(c.Payload.Filename, name)
		c.Images[child] = conv.Images[name]
		body = strings.ReplaceAll(body, `src="`+name+`"`, `src="`+child+`"`)
	}
	c.RawHTML = body
	return nil
}

// childImageName names an image extracted from a PDF after its parent, so the
// filename stays unique within the project.
func childImageName(parent, image string) string {
	stem := strings.TrimSuffix(parent, path.Ext(parent))
	return stem + "_" + path.Base(image)
}

func localPDFToHTML(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindCorruption, "extract.pdf", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindCorruption, "extract.pdf", fmt.Errorf("page %d: %w", i, err))
		}
		fmt.Fprintf(&sb, `<div pagenum="%d">%s</div>`, i, plainToHTML(text))
	}
	return sb.String(), nil
}

// plainToHTML wraps blank-line separated paragraphs in <p> elements.
func plainToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var sb strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(para))
		sb.WriteString("</p>")
	}
	return sb.String()
}

func validUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

func baseMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

package htmlx

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
)

// TextMap is the plain text of an HTML document plus, for every text byte,
// the half-open byte range in the HTML that produced it. Separator bytes
// inserted between blocks map to an empty range at the preceding run's end.
type TextMap struct {
	Text   string
	Starts []int
	Ends   []int
}

func (m *TextMap) Len() int { return len(m.Text) }

// HTMLRange maps the text range [start, end) to an HTML byte range.
func (m *TextMap) HTMLRange(start, end int) (int, int, error) {
	if start < 0 || end <= start || end > len(m.Starts) {
		return 0, 0, apperrors.Corruption("map offsets", "text range [%d,%d) outside text of length %d", start, end, len(m.Starts))
	}
	return m.Starts[start], m.Ends[end-1], nil
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true, atom.Section: true, atom.Article: true,
	atom.Blockquote: true, atom.Pre: true, atom.Hr: true, atom.Figure: true, atom.Figcaption: true,
	atom.Dt: true, atom.Dd: true, atom.Caption: true,
}

var skipAtoms = map[atom.Atom]bool{atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true}

// ExtractText streams the HTML tokens and records, for every contiguous text
// run outside tags, where each decoded byte came from.
func ExtractText(src string) (*TextMap, error) {
	z := xhtml.NewTokenizer(strings.NewReader(src))
	var (
		sb      strings.Builder
		starts  []int
		ends    []int
		pos     int
		skip    int
		pending bool
	)
	sep := func() {
		if !pending {
			return
		}
		pending = false
		if sb.Len() == 0 {
			return
		}
		last := sb.String()[sb.Len()-1]
		if last == ' ' || last == '\n' {
			return
		}
		sb.WriteByte('\n')
		starts = append(starts, pos)
		ends = append(ends, pos)
	}
	for {
		tt := z.Next()
		raw := z.Raw()
		rawLen := len(raw)
		switch tt {
		case xhtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return &TextMap{Text: sb.String(), Starts: starts, Ends: ends}, nil
			}
			return nil, fmt.Errorf("tokenize html: %w", z.Err())
		case xhtml.TextToken:
			if skip == 0 {
				text := string(raw)
				if strings.TrimSpace(text) != "" {
					sep()
				}
				decodeRun(text, pos, &sb, &starts, &ends)
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken, xhtml.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipAtoms[a] && tt != xhtml.SelfClosingTagToken {
				if tt == xhtml.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
			if blockAtoms[a] {
				pending = true
			}
		}
		pos += rawLen
	}
}

// decodeRun appends the decoded text of one raw run starting at base.
func decodeRun(raw string, base int, sb *strings.Builder, starts, ends *[]int) {
	for i := 0; i < len(raw); {
		if raw[i] == '&' {
			if j := strings.IndexByte(raw[i:min(len(raw), i+32)], ';'); j > 0 {
				ent := raw[i : i+j+1]
				if dec := html.UnescapeString(ent); dec != ent {
					for k := 0; k < len(dec); k++ {
						sb.WriteByte(dec[k])
						*starts = append(*starts, base+i)
						*ends = append(*ends, base+i+j+1)
					}
					i += j + 1
					continue
				}
			}
		}
		sb.WriteByte(raw[i])
		*starts = append(*starts, base+i)
		*ends = append(*ends, base+i+1)
		i++
	}
}

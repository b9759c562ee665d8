// Package htmlx cleans uploaded HTML, extracts its plain text with an offset
// map back into the HTML, and injects token and sentence markers.
package htmlx

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Watermark marks HTML that already went through Clean.
const Watermark = `<div class="dats-cleaned">`

var (
	killList   = []string{"head", "script", "iframe", "object", "style", "noscript"}
	allowAttrs = []string{"src", "alt", "href", "title", "width", "height", "target", "pagenum"}
	allowTags  = []string{
		"a", "abbr", "b", "blockquote", "br", "caption", "cite", "code", "dd", "del", "div", "dl", "dt",
		"em", "figcaption", "figure", "h1", "h2", "h3", "h4", "h5", "h6", "hr", "i", "img", "ins", "li",
		"mark", "ol", "p", "pre", "q", "s", "section", "article", "small", "span", "strong", "sub", "sup",
		"table", "tbody", "td", "tfoot", "th", "thead", "tr", "u", "ul",
	}

	boilerplateSelector = "nav, footer, aside, form, header, menu, [role=navigation], [role=banner], [role=contentinfo]"
	boilerplateHint     = regexp.MustCompile(`(?i)(^|[-_ ])(nav|navbar|menu|footer|sidebar|comment|comments|advert|ads|banner|cookie|share|social|related|breadcrumb)([-_ ]|$)`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

type Cleaner struct {
	policy      *bluemonday.Policy
	readability bool
}

func NewCleaner(readability bool) *Cleaner {
	p := bluemonday.NewPolicy()
	p.SkipElementsContent(killList...)
	p.AllowElements(allowTags...)
	p.AllowAttrs(allowAttrs...).Globally()
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.AllowDataURIImages()
	p.RequireNoFollowOnLinks(false)
	return &Cleaner{policy: p, readability: readability}
}

// Clean sanitizes html and wraps it in the watermark. Input that already
// carries the watermark is returned unchanged, so Clean(Clean(x)) == Clean(x).
func (c *Cleaner) Clean(html string) string {
	if IsCleaned(html) {
		return html
	}
	if c.readability {
		html = mainContent(html)
	}
	out := c.policy.Sanitize(html)
	out = unescapeText(out)
	out = strings.TrimSpace(whitespaceRun.ReplaceAllString(out, " "))
	return Watermark + out + "</div>"
}

func IsCleaned(html string) bool {
	return strings.HasPrefix(strings.TrimSpace(html), Watermark)
}

// mainContent drops boilerplate and keeps the densest content subtree.
func mainContent(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find(boilerplateSelector).Remove()
	doc.Find("div, section, ul, table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		class, _ := s.Attr("class")
		return boilerplateHint.MatchString(id) || boilerplateHint.MatchString(class)
	}).Remove()

	if main := doc.Find("article, main, [role=main]").First(); main.Length() > 0 && len(strings.TrimSpace(main.Text())) > 0 {
		if h, err := goquery.OuterHtml(main); err == nil {
			return h
		}
	}

	body := doc.Find("body")
	bodyText := len(strings.TrimSpace(body.Text()))
	var best *goquery.Selection
	bestScore := 0.0
	body.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		text := len(strings.TrimSpace(s.Text()))
		if text == 0 || bodyText == 0 || float64(text) < 0.6*float64(bodyText) {
			return
		}
		links := len(strings.TrimSpace(s.Find("a").Text()))
		if float64(links) > 0.5*float64(text) {
			return
		}
		inner, _ := s.Html()
		score := float64(text) / float64(len(inner)+1) * float64(text-links)
		if score > bestScore {
			best, bestScore = s, score
		}
	})
	if best != nil {
		if h, err := goquery.OuterHtml(best); err == nil {
			return h
		}
	}
	if h, err := body.Html(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	return raw
}

var textEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&#160;", " ",
	"\u00a0", " ",
	"&#39;", "'",
	"&#34;", `"`,
	"&quot;", `"`,
)

// unescapeText folds entities that need no escaping in text content.
// Markup-significant entities (&amp; &lt; &gt;) stay escaped. Attribute
// values are left as the sanitizer wrote them.
func unescapeText(html string) string {
	var sb strings.Builder
	sb.Grow(len(html))
	inTag := false
	start := 0
	flush := func(end int) {
		if start < end {
			sb.WriteString(textEntities.Replace(html[start:end]))
		}
	}
	for i := 0; i < len(html); i++ {
		switch html[i] {
		case '<':
			if !inTag {
				flush(i)
				start = i
				inTag = true
			}
		case '>':
			if inTag {
				sb.WriteString(html[start : i+1])
				start = i + 1
				inTag = false
			}
		}
	}
	if inTag {
		sb.WriteString(html[start:])
	} else {
		flush(len(html))
	}
	return sb.String()
}

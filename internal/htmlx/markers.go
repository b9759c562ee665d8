package htmlx

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Span is a half-open [Start, End) range of text byte offsets.
type Span struct {
	Start int
	End   int
}

type insertion struct {
	pos   int
	rank  int
	id    int
	after int
	text  string
}

// Ranks at one position: closers before openers, tokens close before
// sentences, sentences open before tokens.
const (
	rankCloseToken = iota
	rankCloseSent
	rankOpenSent
	rankOpenToken
)

var markerRe = regexp.MustCompile(`<t id=\d+>|</t>|<sent id=\d+>|</sent>`)

// InjectMarkers wraps every token in <t id=K>...</t> and every sentence in
// <sent id=K>...</sent>, writing markers in strictly increasing position.
// A range that maps outside tm is a corruption error.
func InjectMarkers(src string, tm *TextMap, tokens, sentences []Span) (string, error) {
	ins := make([]insertion, 0, 2*(len(tokens)+len(sentences)))
	for i, s := range sentences {
		a, b, err := tm.HTMLRange(s.Start, s.End)
		if err != nil {
			return "", fmt.Errorf("sentence %d: %w", i, err)
		}
		ins = append(ins,
			insertion{pos: a, rank: rankOpenSent, id: i, after: -b, text: fmt.Sprintf("<sent id=%d>", i)},
			insertion{pos: b, rank: rankCloseSent, id: -i, after: -a, text: "</sent>"},
		)
	}
	for i, t := range tokens {
		a, b, err := tm.HTMLRange(t.Start, t.End)
		if err != nil {
			return "", fmt.Errorf("token %d: %w", i, err)
		}
		ins = append(ins,
			insertion{pos: a, rank: rankOpenToken, id: i, after: -b, text: fmt.Sprintf("<t id=%d>", i)},
			insertion{pos: b, rank: rankCloseToken, id: -i, after: -a, text: "</t>"},
		)
	}
	sort.SliceStable(ins, func(i, j int) bool {
		x, y := ins[i], ins[j]
		if x.pos != y.pos {
			return x.pos < y.pos
		}
		if x.rank != y.rank {
			return x.rank < y.rank
		}
		if x.after != y.after {
			return x.after < y.after
		}
		return x.id < y.id
	})

	var sb strings.Builder
	sb.Grow(len(src) + 12*len(ins))
	last := 0
	for _, in := range ins {
		if in.pos < last || in.pos > len(src) {
			return "", fmt.Errorf("marker position %d out of order", in.pos)
		}
		sb.WriteString(src[last:in.pos])
		sb.WriteString(in.text)
		last = in.pos
	}
	sb.WriteString(src[last:])
	return sb.String(), nil
}

// StripMarkers removes exactly the markers InjectMarkers writes.
func StripMarkers(html string) string {
	return markerRe.ReplaceAllString(html, "")
}

package modelworker

import "fmt"

// runeOffsets maps a code point index to its byte offset in s. The extra
// trailing entry maps len(runes) to len(s).
func runeOffsets(s string) []int {
	out := make([]int, 0, len(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

func toByteOffsets(text string, res ProcessResult) (ProcessResult, error) {
	table := runeOffsets(text)
	conv := func(cp int) (int, error) {
		if cp < 0 || cp >= len(table) {
			return 0, fmt.Errorf("offset %d outside text of %d code points", cp, len(table)-1)
		}
		return table[cp], nil
	}
	spans := func(in []Span) ([]Span, error) {
		out := make([]Span, len(in))
		for i, sp := range in {
			s, err := conv(sp.Start)
			if err != nil {
				return nil, err
			}
			e, err := conv(sp.End)
			if err != nil {
				return nil, err
			}
			out[i] = Span{Start: s, End: e}
		}
		return out, nil
	}

	out := ProcessResult{ID: res.ID}
	var err error
	if out.Tokens, err = spans(res.Tokens); err != nil {
		return out, err
	}
	if out.Sentences, err = spans(res.Sentences); err != nil {
		return out, err
	}
	out.Entities = make([]Entity, len(res.Entities))
	for i, ent := range res.Entities {
		s, err := conv(ent.Start)
		if err != nil {
			return out, err
		}
		e, err := conv(ent.End)
		if err != nil {
			return out, err
		}
		ent.Start, ent.End = s, e
		out.Entities[i] = ent
	}
	return out, nil
}

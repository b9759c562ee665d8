package documents

import (
	"testing"
	"time"
)

func validData() SourceDocumentData {
	// "Hello world. Bye."
	return SourceDocumentData{
		Content:        "Hello world. Bye.",
		TokenStarts:    []int{0, 6, 11, 13, 16},
		TokenEnds:      []int{5, 11, 12, 16, 17},
		SentenceStarts: []int{0, 13},
		SentenceEnds:   []int{12, 17},
	}
}

func TestValidateAcceptsWellFormedOffsets(t *testing.T) {
	d := validData()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBrokenOffsets(t *testing.T) {
	cases := map[string]func(d *SourceDocumentData){
		"length mismatch":      func(d *SourceDocumentData) { d.TokenEnds = d.TokenEnds[:2] },
		"start after end":      func(d *SourceDocumentData) { d.TokenStarts[1] = 12 },
		"end past content":     func(d *SourceDocumentData) { d.TokenEnds[4] = 40 },
		"non monotonic":        func(d *SourceDocumentData) { d.TokenStarts[2], d.TokenEnds[2] = 1, 2 },
		"sentence mid token":   func(d *SourceDocumentData) { d.SentenceStarts[1] = 14 },
		"overlapping sentence": func(d *SourceDocumentData) { d.SentenceStarts[1] = 6 },
		"token between sentences": func(d *SourceDocumentData) {
			d.SentenceStarts = []int{0, 16}
			d.SentenceEnds = []int{12, 17}
		},
		"tokens without sentences": func(d *SourceDocumentData) {
			d.SentenceStarts = nil
			d.SentenceEnds = nil
		},
		"partial token times": func(d *SourceDocumentData) {
			d.TokenTimeStarts = []int{0}
			d.TokenTimeEnds = []int{1}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := validData()
			mutate(&d)
			if err := d.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSetValueIsTypeChecked(t *testing.T) {
	var m SourceDocumentMetadata
	if err := m.SetValue(MetaTypeNumber, "12"); err == nil {
		t.Fatalf("string accepted for number metadata")
	}
	if err := m.SetValue(MetaTypeNumber, 12); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if got := m.Value(MetaTypeNumber); got != float64(12) {
		t.Fatalf("number value: got %v", got)
	}
	now := time.Now()
	if err := m.SetValue(MetaTypeDate, now); err != nil {
		t.Fatalf("SetValue date: %v", err)
	}
	if m.NumberValue != nil {
		t.Fatalf("previous column not cleared")
	}
	if err := m.SetValue(MetaTypeList, []string{"a", "b"}); err != nil {
		t.Fatalf("SetValue list: %v", err)
	}
	if got := m.Value(MetaTypeList).([]string); len(got) != 2 {
		t.Fatalf("list value: %v", got)
	}
}

package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SourceDocumentData is keyed by the owning SourceDocument id. Offsets are
// UTF-8 byte offsets into Content.
type SourceDocumentData struct {
	ID              uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	Content         string                   `gorm:"column:content;not null" json:"content"`
	HTML            string                   `gorm:"column:html;not null" json:"html"`
	Language        string                   `gorm:"column:language" json:"language"`
	TokenStarts     datatypes.JSONSlice[int] `gorm:"column:token_starts" json:"token_starts"`
	TokenEnds       datatypes.JSONSlice[int] `gorm:"column:token_ends" json:"token_ends"`
	SentenceStarts  datatypes.JSONSlice[int] `gorm:"column:sentence_starts" json:"sentence_starts"`
	SentenceEnds    datatypes.JSONSlice[int] `gorm:"column:sentence_ends" json:"sentence_ends"`
	TokenTimeStarts datatypes.JSONSlice[int] `gorm:"column:token_time_starts" json:"token_time_starts,omitempty"`
	TokenTimeEnds   datatypes.JSONSlice[int] `gorm:"column:token_time_ends" json:"token_time_ends,omitempty"`
	CreatedAt       time.Time                `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                `gorm:"not null" json:"updated_at"`
}

func (SourceDocumentData) TableName() string { return "source_document_data" }

// Validate checks the offset invariants. Sentences must start on a token start,
// end on a token end, must not overlap, and together must cover every token.
func (d *SourceDocumentData) Validate() error {
	n := len(d.Content)
	if len(d.TokenStarts) != len(d.TokenEnds) {
		return fmt.Errorf("token arrays differ in length: starts=%d ends=%d", len(d.TokenStarts), len(d.TokenEnds))
	}
	if len(d.SentenceStarts) != len(d.SentenceEnds) {
		return fmt.Errorf("sentence arrays differ in length: starts=%d ends=%d", len(d.SentenceStarts), len(d.SentenceEnds))
	}
	if len(d.TokenTimeStarts) != len(d.TokenTimeEnds) {
		return fmt.Errorf("token time arrays differ in length: starts=%d ends=%d", len(d.TokenTimeStarts), len(d.TokenTimeEnds))
	}
	if len(d.TokenTimeStarts) > 0 && len(d.TokenTimeStarts) != len(d.TokenStarts) {
		return fmt.Errorf("token time arrays cover %d of %d tokens", len(d.TokenTimeStarts), len(d.TokenStarts))
	}
	starts := make(map[int]struct{}, len(d.TokenStarts))
	ends := make(map[int]struct{}, len(d.TokenEnds))
	prev := 0
	for i := range d.TokenStarts {
		s, e := d.TokenStarts[i], d.TokenEnds[i]
		if s < 0 || s > e || e > n {
			return fmt.Errorf("token %d has invalid range [%d,%d) for content length %d", i, s, e, n)
		}
		if s < prev {
			return fmt.Errorf("token %d starts at %d before previous start %d", i, s, prev)
		}
		prev = s
		starts[s] = struct{}{}
		ends[e] = struct{}{}
	}
	lastEnd := 0
	for i := range d.SentenceStarts {
		s, e := d.SentenceStarts[i], d.SentenceEnds[i]
		if s > e || s < lastEnd || e > n {
			return fmt.Errorf("sentence %d has invalid range [%d,%d)", i, s, e)
		}
		if _, ok := starts[s]; !ok {
			return fmt.Errorf("sentence %d start %d is not a token start", i, s)
		}
		if _, ok := ends[e]; !ok {
			return fmt.Errorf("sentence %d end %d is not a token end", i, e)
		}
		lastEnd = e
	}
	j := 0
	for i := range d.TokenStarts {
		s, e := d.TokenStarts[i], d.TokenEnds[i]
		for j < len(d.SentenceEnds) && d.SentenceEnds[j] < e {
			j++
		}
		if j == len(d.SentenceStarts) || d.SentenceStarts[j] > s {
			return fmt.Errorf("token %d [%d,%d) is outside every sentence", i, s, e)
		}
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/htmlx"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/storage"
)

// noSpeechText stands in for a transcript without words so every audio
// document still has a token stream.
const noSpeechText = "File contains no spoken words"

type AudioCargo struct {
	*Base
	Raw           []byte
	Filename      string
	Transcription *modelworker.Transcription
	Text          *TextCargo
}

func newAudioCargo(b *Base, settings types.PreproSettings, dt types.DocType) *AudioCargo {
	return &AudioCargo{
		Base:     b,
		Filename: b.Payload.Filename,
		Text:     newTextCargoFor(b, settings, dt),
	}
}

func (p *Pipeline) runAudio(ctx context.Context, payloads []*types.PreprocessingJobPayload, settings types.PreproSettings, abort func() bool) []*Base {
	cargos := make([]*AudioCargo, 0, len(payloads))
	bases := make([]*Base, 0, len(payloads))
	for _, pl := range payloads {
		c := newAudioCargo(&Base{Payload: pl}, settings, types.DocTypeAudio)
		cargos = append(cargos, c)
		bases = append(bases, c.Base)
	}
	stages := append([]Stage[*AudioCargo]{
		Each("load", func(ctx context.Context, c *AudioCargo) error {
			raw, err := storage.ReadAll(ctx, p.Storage, c.Payload.StorageKey)
			c.Raw = raw
			return err
		}),
	}, p.audioStages()...)
	runStages(ctx, string(types.DocTypeAudio), stages, cargos, abort)
	p.runTextTail(ctx, string(types.DocTypeAudio), audioTexts(cargos), abort)
	return bases
}

func (p *Pipeline) audioStages() []Stage[*AudioCargo] {
	return []Stage[*AudioCargo]{
		Each("transcribe", func(ctx context.Context, c *AudioCargo) error {
			if p.Transcriber == nil {
				return fmt.Errorf("no transcriber configured")
			}
			tr, err := p.Transcriber.Transcribe(ctx, c.Raw, c.Filename, "")
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}
			c.Transcription = tr
			return nil
		}),
		Each("synthesize_tokens", func(ctx context.Context, c *AudioCargo) error {
			t := c.Text
			var words []modelworker.Word
			if c.Transcription != nil {
				words = c.Transcription.Words
				if lang := strings.TrimSpace(c.Transcription.Language); lang != "" && lang != "auto" {
					t.Language = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
				}
			}
			s := synthesizeTokens(words)
			t.Content = s.Content
			t.Tokens = s.Tokens
			t.Sentences = s.Sentences
			t.TokenTimeStarts = s.TimeStarts
			t.TokenTimeEnds = s.TimeEnds
			t.prefilled = true
			t.RawHTML = paragraphHTML(s.Content)
			if _, ok := t.Metadata[metaDuration]; !ok && len(words) > 0 {
				t.Metadata[metaDuration] = float64(words[len(words)-1].EndMS) / 1000
			}
			return nil
		}),
	}
}

func audioTexts(cargos []*AudioCargo) []*TextCargo {
	out := make([]*TextCargo, 0, len(cargos))
	for _, c := range cargos {
		if !c.Failed() {
			out = append(out, c.Text)
		}
	}
	return out
}

func (p *Pipeline) runTextTail(ctx context.Context, modality string, texts []*TextCargo, abort func() bool) {
	if len(texts) == 0 {
		return
	}
	runStages(ctx, modality, p.textTail(), texts, abort)
}

type synthesized struct {
	Content    string
	Tokens     []htmlx.Span
	Sentences  []htmlx.Span
	TimeStarts []int
	TimeEnds   []int
}

// synthesizeTokens joins transcript words with single spaces. Each word is a
// token carrying its time range; sentences end at words ending in . ! or ?
// and at the last word.
func synthesizeTokens(words []modelworker.Word) synthesized {
	if len(words) == 0 {
		for _, w := range strings.Fields(noSpeechText) {
			words = append(words, modelworker.Word{Text: w})
		}
	}
	var out synthesized
	var sb strings.Builder
	sentStart := 0
	for i, w := range words {
		text := strings.Join(strings.Fields(w.Text), " ")
		if text == "" {
			text = "_"
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		start := sb.Len()
		sb.WriteString(text)
		out.Tokens = append(out.Tokens, htmlx.Span{Start: start, End: sb.Len()})
		out.TimeStarts = append(out.TimeStarts, w.StartMS)
		out.TimeEnds = append(out.TimeEnds, w.EndMS)
		if endsSentence(text) || i == len(words)-1 {
			out.Sentences = append(out.Sentences, htmlx.Span{Start: out.Tokens[sentStart].Start, End: out.Tokens[i].End})
			sentStart = i + 1
		}
	}
	out.Content = sb.String()
	return out
}

func endsSentence(word string) bool {
	switch word[len(word)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

package pipeline

import (
	"context"
	"fmt"
	"path"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/platform/storage"
)

type VideoCargo struct {
	*Base
	Raw   []byte
	Audio *AudioCargo
}

func (p *Pipeline) runVideo(ctx context.Context, payloads []*types.PreprocessingJobPayload, settings types.PreproSettings, abort func() bool) []*Base {
	cargos := make([]*VideoCargo, 0, len(payloads))
	bases := make([]*Base, 0, len(payloads))
	for _, pl := range payloads {
		b := &Base{Payload: pl}
		audio := newAudioCargo(b, settings, types.DocTypeVideo)
		audio.Filename = "audio.wav"
		cargos = append(cargos, &VideoCargo{Base: b, Audio: audio})
		bases = append(bases, b)
	}
	stages := []Stage[*VideoCargo]{
		Each("load", func(ctx context.Context, c *VideoCargo) error {
			raw, err := storage.ReadAll(ctx, p.Storage, c.Payload.StorageKey)
			c.Raw = raw
			return err
		}),
		Each("extract_audio_track", func(ctx context.Context, c *VideoCargo) error {
			if p.Media == nil {
				return fmt.Errorf("no media tools configured")
			}
			wav, err := p.Media.ExtractAudio(ctx, c.Raw, path.Ext(c.Payload.Filename))
			if err != nil {
				return fmt.Errorf("extract audio track: %w", err)
			}
			c.Audio.Raw = wav
			return nil
		}),
		Each("probe_duration", p.probeDuration),
	}
	runStages(ctx, string(types.DocTypeVideo), stages, cargos, abort)

	audios := make([]*AudioCargo, 0, len(cargos))
	for _, c := range cargos {
		if !c.Failed() {
			audios = append(audios, c.Audio)
		}
	}
	if len(audios) > 0 {
		runStages(ctx, string(types.DocTypeVideo), p.audioStages(), audios, abort)
	}
	p.runTextTail(ctx, string(types.DocTypeVideo), audioTexts(audios), abort)
	return bases
}

// probeDuration records the container duration. A failed probe only loses
// the metadata value; transcription can still proceed.
func (p *Pipeline) probeDuration(ctx context.Context, c *VideoCargo) error {
	file, cleanup, err := p.Media.WriteTempFile(ctx, c.Raw, path.Ext(c.Payload.Filename))
	if err != nil {
		return err
	}
	defer cleanup()
	d, err := p.Media.ProbeDuration(ctx, file)
	if err != nil {
		p.log.Warn("Probe duration failed", "payload_id", c.Payload.ID, "error", err)
		return nil
	}
	c.Audio.Text.Metadata[metaDuration] = d.Seconds()
	return nil
}

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	types "github.com/yungbote/dats-backend/internal/domain"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/storage"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

type ImageCargo struct {
	*Base
	Raw        []byte
	Width      int
	Height     int
	Format     string
	Detections []modelworker.Detection
	Caption    string
	Text       *TextCargo
}

func (p *Pipeline) runImage(ctx context.Context, payloads []*types.PreprocessingJobPayload, settings types.PreproSettings, abort func() bool) []*Base {
	cargos := make([]*ImageCargo, 0, len(payloads))
	bases := make([]*Base, 0, len(payloads))
	for _, pl := range payloads {
		b := &Base{Payload: pl}
		cargos = append(cargos, &ImageCargo{Base: b, Text: newTextCargoFor(b, settings, types.DocTypeImage)})
		bases = append(bases, b)
	}
	stages := []Stage[*ImageCargo]{
		Each("load", func(ctx context.Context, c *ImageCargo) error {
			raw, err := storage.ReadAll(ctx, p.Storage, c.Payload.StorageKey)
			c.Raw = raw
			return err
		}),
		Each("image_metadata", func(ctx context.Context, c *ImageCargo) error {
			cfg, format, err := image.DecodeConfig(bytes.NewReader(c.Raw))
			if err != nil {
				return apperrors.Wrap(apperrors.KindCorruption, "image_metadata", err)
			}
			c.Width, c.Height, c.Format = cfg.Width, cfg.Height, format
			c.Text.Metadata[metaWidth] = cfg.Width
			c.Text.Metadata[metaHeight] = cfg.Height
			return nil
		}),
		Each("detect_objects", func(ctx context.Context, c *ImageCargo) error {
			if p.Detector == nil {
				return fmt.Errorf("no detector configured")
			}
			dets, err := p.Detector.DetectObjects(ctx, c.Raw)
			if err != nil {
				return fmt.Errorf("detect objects: %w", err)
			}
			c.Detections = dets
			return nil
		}),
		Each("caption", func(ctx context.Context, c *ImageCargo) error {
			caption, err := p.Detector.Caption(ctx, c.Raw)
			if err != nil {
				return fmt.Errorf("caption: %w", err)
			}
			c.Caption = strings.TrimSpace(caption)
			return nil
		}),
		{Name: "embed_image", Run: p.embedImages},
		Each("prepare_text", func(ctx context.Context, c *ImageCargo) error {
			caption := c.Caption
			if caption == "" {
				caption = captionFromDetections(c.Detections)
			}
			c.Text.RawHTML = paragraphHTML(caption)
			c.Text.BBoxes = toBBoxes(c.DocID(), c.Detections, c.Width, c.Height)
			return nil
		}),
	}
	runStages(ctx, string(types.DocTypeImage), stages, cargos, abort)

	texts := make([]*TextCargo, 0, len(cargos))
	for _, c := range cargos {
		if !c.Failed() {
			texts = append(texts, c.Text)
		}
	}
	p.runTextTail(ctx, string(types.DocTypeImage), texts, abort)
	return bases
}

func (p *Pipeline) embedImages(ctx context.Context, batch []*ImageCargo) []error {
	errs := make([]error, len(batch))
	if p.Images == nil || p.Vectors == nil {
		return errs
	}
	raws := make([][]byte, len(batch))
	for i, c := range batch {
		raws[i] = c.Raw
	}
	vecs, err := p.Images.EmbedImage(ctx, raws)
	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("embedder returned %d vectors for %d images", len(vecs), len(batch))
	}
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("embed image: %w", err)
		}
		return errs
	}
	for i, c := range batch {
		ns := vectorstore.Namespace(c.ProjectID(), vectorstore.KindImage)
		id := vectorstore.DocumentVectorID(c.DocID())
		c.trackVectors(ns, id)
		errs[i] = p.Vectors.Upsert(ctx, ns, []vectorstore.Vector{{
			ID:     id,
			Values: vecs[i],
			Metadata: map[string]any{
				vectorstore.MetaSourceDocumentID: c.DocID().String(),
				vectorstore.MetaDocType:          string(types.DocTypeImage),
			},
		}})
	}
	return errs
}

func captionFromDetections(dets []modelworker.Detection) string {
	if len(dets) == 0 {
		return "Image without recognizable content"
	}
	seen := map[string]bool{}
	var labels []string
	for _, d := range dets {
		if !seen[d.Label] {
			seen[d.Label] = true
			labels = append(labels, d.Label)
		}
	}
	return "Image showing " + strings.Join(labels, ", ")
}

// toBBoxes clamps detections to the image bounds and drops empty boxes.
func toBBoxes(docID uuid.UUID, dets []modelworker.Detection, width, height int) []*types.AutoBBox {
	out := make([]*types.AutoBBox, 0, len(dets))
	for _, d := range dets {
		x, y := max(d.X, 0), max(d.Y, 0)
		w, h := d.Width-(x-d.X), d.Height-(y-d.Y)
		if width > 0 {
			w = min(w, width-x)
		}
		if height > 0 {
			h = min(h, height-y)
		}
		if w <= 0 || h <= 0 {
			continue
		}
		out = append(out, &types.AutoBBox{
			SourceDocumentID: docID,
			Label:            d.Label,
			Score:            d.Score,
			X:                x,
			Y:                y,
			Width:            w,
			Height:           h,
		})
	}
	return out
}

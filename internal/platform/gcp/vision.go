package gcp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
)

// Vision runs object localization and label detection through Cloud Vision.
type Vision struct {
	log      *logger.Logger
	client   *vision.ImageAnnotatorClient
	maxBoxes int
}

func NewVision(ctx context.Context, log *logger.Logger) (*Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptions(ServiceVision)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{log: log.With("service", "gcp.Vision"), client: c, maxBoxes: 50}, nil
}

func (v *Vision) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}

func (v *Vision) annotate(ctx context.Context, img []byte, features ...*visionpb.Feature) (*visionpb.AnnotateImageResponse, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 60*time.Second)
	defer cancel()
	req := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{{
		Image:    &visionpb.Image{Content: img},
		Features: features,
	}}}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &visionpb.AnnotateImageResponse{}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return r0, nil
}

// DetectObjects returns pixel boxes. The image header is decoded to scale
// the normalized vertices Vision returns.
func (v *Vision) DetectObjects(ctx context.Context, img []byte) ([]modelworker.Detection, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	r, err := v.annotate(ctx, img, &visionpb.Feature{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: int32(v.maxBoxes)})
	if err != nil {
		return nil, err
	}
	return detectionsFromAnnotations(r.LocalizedObjectAnnotations, cfg.Width, cfg.Height), nil
}

// Caption is assembled from the top labels; Vision has no captioning model.
func (v *Vision) Caption(ctx context.Context, img []byte) (string, error) {
	r, err := v.annotate(ctx, img, &visionpb.Feature{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 8})
	if err != nil {
		return "", err
	}
	return captionFromLabels(r.LabelAnnotations), nil
}

func detectionsFromAnnotations(objs []*visionpb.LocalizedObjectAnnotation, width, height int) []modelworker.Detection {
	out := make([]modelworker.Detection, 0, len(objs))
	for _, o := range objs {
		if o == nil || o.BoundingPoly == nil || len(o.BoundingPoly.NormalizedVertices) == 0 {
			continue
		}
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, p := range o.BoundingPoly.NormalizedVertices {
			if p == nil {
				continue
			}
			minX = math.Min(minX, float64(p.X))
			minY = math.Min(minY, float64(p.Y))
			maxX = math.Max(maxX, float64(p.X))
			maxY = math.Max(maxY, float64(p.Y))
		}
		if math.IsInf(minX, 0) {
			continue
		}
		x := int(math.Round(minX * float64(width)))
		y := int(math.Round(minY * float64(height)))
		out = append(out, modelworker.Detection{
			Label:  strings.ToLower(strings.TrimSpace(o.Name)),
			Score:  float64(o.Score),
			X:      x,
			Y:      y,
			Width:  int(math.Round(maxX*float64(width))) - x,
			Height: int(math.Round(maxY*float64(height))) - y,
		})
	}
	return out
}

func captionFromLabels(labels []*visionpb.EntityAnnotation) string {
	sorted := make([]*visionpb.EntityAnnotation, 0, len(labels))
	for _, l := range labels {
		if l != nil && strings.TrimSpace(l.Description) != "" {
			sorted = append(sorted, l)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) == 0 {
		return ""
	}
	names := make([]string, 0, len(sorted))
	for _, l := range sorted {
		names = append(names, strings.ToLower(strings.TrimSpace(l.Description)))
	}
	return "An image showing " + strings.Join(names, ", ") + "."
}

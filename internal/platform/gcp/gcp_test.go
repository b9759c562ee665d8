package gcp

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestTranscriptionFromResponse(t *testing.T) {
	resp := &speechpb.LongRunningRecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{
			LanguageCode: "de-de",
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Confidence: 0.8,
				Words: []*speechpb.WordInfo{
					{Word: "Hallo", StartTime: durationpb.New(0), EndTime: &durationpb.Duration{Nanos: 400_000_000}},
					{Word: " ", StartTime: durationpb.New(0), EndTime: durationpb.New(0)},
					{Word: "Welt", StartTime: &durationpb.Duration{Nanos: 500_000_000}, EndTime: &durationpb.Duration{Seconds: 1, Nanos: 250_000_000}},
				},
			}},
		},
		nil,
	}}

	got := transcriptionFromResponse(resp)
	if got.Language != "de-de" {
		t.Fatalf("language: got=%q", got.Language)
	}
	if len(got.Words) != 2 {
		t.Fatalf("words: want=2 got=%d", len(got.Words))
	}
	if got.Words[1].Text != "Welt" || got.Words[1].StartMS != 500 || got.Words[1].EndMS != 1250 {
		t.Fatalf("word timing: %+v", got.Words[1])
	}
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Fatalf("confidence: got=%v", got.Confidence)
	}
}

func TestDetectionsFromAnnotationsScalesToPixels(t *testing.T) {
	objs := []*visionpb.LocalizedObjectAnnotation{{
		Name:  "Dog",
		Score: 0.9,
		BoundingPoly: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
			{X: 0.1, Y: 0.2}, {X: 0.5, Y: 0.2}, {X: 0.5, Y: 0.7}, {X: 0.1, Y: 0.7},
		}},
	}, {Name: "empty"}}

	got := detectionsFromAnnotations(objs, 200, 100)
	if len(got) != 1 {
		t.Fatalf("detections: want=1 got=%d", len(got))
	}
	d := got[0]
	if d.Label != "dog" || d.X != 20 || d.Y != 20 || d.Width != 80 || d.Height != 50 {
		t.Fatalf("detection: %+v", d)
	}
}

func TestCaptionFromLabels(t *testing.T) {
	got := captionFromLabels([]*visionpb.EntityAnnotation{
		{Description: "Grass", Score: 0.5},
		{Description: "Dog", Score: 0.9},
	})
	if got != "An image showing dog, grass." {
		t.Fatalf("caption: %q", got)
	}
	if captionFromLabels(nil) != "" {
		t.Fatalf("empty labels should give empty caption")
	}
}

func TestClientOptions(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_CLOUD_QUOTA_PROJECT", "")
	t.Setenv("GCP_SPEECH_ENDPOINT", "")
	if got := ClientOptions(ServiceSpeech); len(got) != 0 {
		t.Fatalf("expected no options without env, got %d", len(got))
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	t.Setenv("GOOGLE_CLOUD_QUOTA_PROJECT", "dats-billing")
	t.Setenv("GCP_SPEECH_ENDPOINT", "eu-speech.googleapis.com:443")
	if got := ClientOptions(ServiceSpeech); len(got) != 3 {
		t.Fatalf("speech: want=3 options got=%d", len(got))
	}
	if got := ClientOptions(ServiceVision); len(got) != 2 {
		t.Fatalf("vision: endpoint override must not leak, got=%d", len(got))
	}
}

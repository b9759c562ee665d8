package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
)

// Speech transcribes audio with word offsets through Cloud Speech-to-Text.
// It produces the same shape as the model worker's whisper endpoint.
type Speech struct {
	log             *logger.Logger
	client          *speech.Client
	maxRetries      int
	defaultLanguage string
}

func NewSpeech(ctx context.Context, log *logger.Logger, defaultLanguage string) (*Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctx, ClientOptions(ServiceSpeech)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if defaultLanguage == "" {
		defaultLanguage = "en-US"
	}
	return &Speech{
		log:             log.With("service", "gcp.Speech"),
		client:          c,
		maxRetries:      4,
		defaultLanguage: defaultLanguage,
	}, nil
}

func (s *Speech) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Speech) Transcribe(ctx context.Context, audio []byte, filename, language string) (*modelworker.Transcription, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 30*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &modelworker.Transcription{Language: language}, nil
	}
	lang := strings.TrimSpace(language)
	if lang == "" || strings.EqualFold(lang, "auto") {
		lang = s.defaultLanguage
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               lang,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
			Encoding:                   inferSpeechEncoding(filename),
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	out := transcriptionFromResponse(resp)
	if out.Language == "" {
		out.Language = lang
	}
	s.log.Debug("Transcribed audio", "filename", filename, "words", len(out.Words), "language", out.Language)
	return out, nil
}

func inferSpeechEncoding(filename string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func transcriptionFromResponse(resp *speechpb.LongRunningRecognizeResponse) *modelworker.Transcription {
	out := &modelworker.Transcription{}
	if resp == nil {
		return out
	}
	var confSum float64
	var confN int
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if out.Language == "" && r.LanguageCode != "" {
			out.Language = r.LanguageCode
		}
		alt := r.Alternatives[0]
		if alt.Confidence > 0 {
			confSum += float64(alt.Confidence)
			confN++
		}
		for _, w := range alt.Words {
			if w == nil || strings.TrimSpace(w.Word) == "" {
				continue
			}
			out.Words = append(out.Words, modelworker.Word{
				Text:    strings.TrimSpace(w.Word),
				StartMS: durToMS(w.StartTime),
				EndMS:   durToMS(w.EndTime),
			})
		}
	}
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	return out
}

func durToMS(d *durationpb.Duration) int {
	if d == nil {
		return 0
	}
	return int(d.Seconds*1000) + int(d.Nanos/1e6)
}

func (s *Speech) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		if !retryableGRPC(err) || attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func retryableGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	}
	return false
}

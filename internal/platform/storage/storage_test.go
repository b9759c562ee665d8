package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	project := uuid.New()
	key := RawKey(project, "report.pdf")

	if ok, err := st.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists before put: ok=%v err=%v", ok, err)
	}
	if err := st.Put(ctx, key, bytes.NewBufferString("%PDF-1.7"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := ReadAll(ctx, st, key)
	if err != nil || string(got) != "%PDF-1.7" {
		t.Fatalf("ReadAll: %q %v", got, err)
	}
	info, err := st.Stat(ctx, key)
	if err != nil || info.Size != 8 || info.ContentType != "application/pdf" {
		t.Fatalf("Stat: %+v %v", info, err)
	}
	keys, err := st.List(ctx, "projects/"+project.String()+"/raw/")
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Fatalf("List: %v %v", keys, err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete of missing key should be a no-op: %v", err)
	}
	if _, err := st.Open(ctx, key); !IsNotExist(err) {
		t.Fatalf("Open after delete: want not-exist, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "a//b"} {
		if err := st.Put(context.Background(), key, bytes.NewBufferString("x"), ""); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

func TestRawKeySanitizesFilename(t *testing.T) {
	p := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	if got := RawKey(p, "../../evil.txt"); got != "projects/"+p.String()+"/raw/evil.txt" {
		t.Fatalf("RawKey: %s", got)
	}
	if got := RawKey(p, `dir\nested.txt`); got != "projects/"+p.String()+"/raw/nested.txt" {
		t.Fatalf("RawKey backslash: %s", got)
	}
}

func TestResolveConfigFromEnv(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		bucket   string
		emulator string
		region   string
		want     Mode
		wantCode ConfigErrorCode
	}{
		{name: "default local", want: ModeLocal},
		{name: "emulator fallback", bucket: "b", emulator: "http://fake-gcs:4443", want: ModeGCSEmulator},
		{name: "gcs", mode: "gcs", bucket: "b", want: ModeGCS},
		{name: "gcs missing bucket", mode: "gcs", wantCode: ConfigErrorMissingBucket},
		{name: "emulator bad host", mode: "gcs_emulator", bucket: "b", emulator: "fake-gcs", wantCode: ConfigErrorInvalidEmulatorHost},
		{name: "s3 missing region", mode: "s3", bucket: "b", wantCode: ConfigErrorMissingRegion},
		{name: "s3", mode: "S3", bucket: "b", region: "eu-west-1", want: ModeS3},
		{name: "invalid", mode: "ftp", wantCode: ConfigErrorInvalidMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("OBJECT_STORAGE_BUCKET", tc.bucket)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulator)
			t.Setenv("AWS_REGION", tc.region)
			cfg, err := ResolveConfigFromEnv()
			if tc.wantCode != "" {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) || cfgErr.Code != tc.wantCode {
					t.Fatalf("want code %q, got %v", tc.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.want {
				t.Fatalf("mode: want=%q got=%q", tc.want, cfg.Mode)
			}
		})
	}
}

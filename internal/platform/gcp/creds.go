package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Services that accept a per-service endpoint override via
// GCP_<SERVICE>_ENDPOINT.
const (
	ServiceSpeech  = "speech"
	ServiceVision  = "vision"
	ServiceStorage = "storage"
)

// ClientOptions builds the option set for one Google client. Credentials may
// be inline JSON or a file path; GOOGLE_CLOUD_QUOTA_PROJECT bills requests to
// a different project than the credentials belong to.
func ClientOptions(service string) []option.ClientOption {
	var opts []option.ClientOption
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if qp := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_QUOTA_PROJECT")); qp != "" {
		opts = append(opts, option.WithQuotaProject(qp))
	}
	if service != "" {
		key := "GCP_" + strings.ToUpper(service) + "_ENDPOINT"
		if ep := strings.TrimSpace(os.Getenv(key)); ep != "" {
			opts = append(opts, option.WithEndpoint(ep))
		}
	}
	return opts
}

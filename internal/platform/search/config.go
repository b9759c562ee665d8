package search

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

type Config struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL    ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL    ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidPrefix ConfigErrorCode = "invalid_index_prefix"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid elasticsearch config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "ELASTICSEARCH_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid ELASTICSEARCH_URL=%q; expected absolute URL like http://elasticsearch:9200", e.Value)
	case ConfigErrorInvalidPrefix:
		return fmt.Sprintf("invalid ELASTICSEARCH_INDEX_PREFIX=%q; expected lowercase letters, digits, '-' or '_'", e.Value)
	default:
		return "invalid elasticsearch config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

var prefixRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Enabled reports whether a full-text index is configured at all.
func Enabled() bool {
	return strings.TrimSpace(os.Getenv("ELASTICSEARCH_URL")) != ""
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:         strings.TrimSpace(os.Getenv("ELASTICSEARCH_URL")),
		Username:    strings.TrimSpace(os.Getenv("ELASTICSEARCH_USERNAME")),
		Password:    os.Getenv("ELASTICSEARCH_PASSWORD"),
		IndexPrefix: strings.TrimSpace(os.Getenv("ELASTICSEARCH_INDEX_PREFIX")),
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "dats"
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if !prefixRe.MatchString(cfg.IndexPrefix) {
		return &ConfigError{Code: ConfigErrorInvalidPrefix, Value: cfg.IndexPrefix}
	}
	return nil
}

package envutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// Load reads an optional .env file and an optional YAML overlay named by
// DATS_CONFIG_FILE. Variables already present in the environment win.
func Load(log *logger.Logger) error {
	envFile := strings.TrimSpace(os.Getenv("DATS_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		if log != nil {
			log.Info("Loaded env file", "path", envFile)
		}
	}

	overlay := strings.TrimSpace(os.Getenv("DATS_CONFIG_FILE"))
	if overlay == "" {
		return nil
	}
	raw, err := os.ReadFile(overlay)
	if err != nil {
		return fmt.Errorf("read config overlay: %w", err)
	}
	applied, err := ApplyYAML(raw)
	if err != nil {
		return fmt.Errorf("parse config overlay %s: %w", overlay, err)
	}
	if log != nil {
		log.Info("Applied config overlay", "path", overlay, "keys", applied)
	}
	return nil
}

// ApplyYAML sets every top-level scalar of a YAML mapping as an environment
// variable unless it is already set. Returns the number of keys applied.
func ApplyYAML(raw []byte) (int, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return 0, err
	}
	applied := 0
	for k, v := range m {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" || v == nil {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			return applied, fmt.Errorf("key %q: nested values are not supported", k)
		}
		if err := os.Setenv(key, fmt.Sprint(v)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Float(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func Bool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Duration accepts Go duration strings or a bare number of seconds.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultKM24BaseURL = "https://km24.dk/api"
	DefaultModel       = "gemini-2.5-flash"
)

type Config struct {
	Port string
	Env  string
	KM24 KM24Config
	LLM  LLMConfig
}

type KM24Config struct {
	BaseURL string
	APIKey  string
	// CacheDir holds one JSON file per endpoint.
	CacheDir string
	// ModuleSnapshot is an optional modules/basic dump used instead of the live API.
	ModuleSnapshot string
	Timeout        time.Duration
	MinInterval    time.Duration
}

type LLMConfig struct {
	APIKey      string
	Model       string
	MaxAttempts int
	BaseDelay   time.Duration
}

// Load reads .env (if present) and then the process environment.
// Command-line flags are applied on top by the caller.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), ":8000")
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		port = ":" + port
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port: port,
		Env:  env,
		KM24: loadKM24Config(),
		LLM:  loadLLMConfig(),
	}, nil
}

func loadKM24Config() KM24Config {
	return KM24Config{
		BaseURL:        strings.TrimRight(firstNonEmpty(strings.TrimSpace(os.Getenv("KM24_BASE_URL")), strings.TrimSpace(os.Getenv("KM24_BASE")), DefaultKM24BaseURL), "/"),
		APIKey:         strings.TrimSpace(os.Getenv("KM24_API_KEY")),
		CacheDir:       firstNonEmpty(strings.TrimSpace(os.Getenv("KM24_CACHE_DIR")), "cache"),
		ModuleSnapshot: strings.TrimSpace(os.Getenv("KM24_MODULE_SNAPSHOT")),
		Timeout:        durationEnv("KM24_TIMEOUT", 30*time.Second),
		MinInterval:    durationEnv("KM24_MIN_INTERVAL", 100*time.Millisecond),
	}
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:      firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
		Model:       firstNonEmpty(strings.TrimSpace(os.Getenv("VEJVISER_MODEL")), DefaultModel),
		MaxAttempts: intEnv("VEJVISER_MAX_ATTEMPTS", 3),
		BaseDelay:   durationEnv("VEJVISER_RETRY_DELAY", 2*time.Second),
	}
}

// IsProduction reports whether logging and error output should use the
// production profile.
func (c *Config) IsProduction() bool {
	if c == nil {
		return false
	}
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

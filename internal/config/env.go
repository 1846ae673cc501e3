package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port            string
	MaxUploadMB     int64
	ShutdownTimeout time.Duration
}

// ViewerConfig controls rendering and search behavior of a session.
type ViewerConfig struct {
	Scale          float64
	SpeechLang     string
	SearchTimeout  time.Duration // 0 disables the bound
	SessionIdleTTL time.Duration
	ProbeThreshold int
}

// StorageConfig selects where uploaded sources are kept.
type StorageConfig struct {
	Backend              string // "local"|"s3"
	UploadDir            string
	S3Bucket             string
	S3Prefix             string
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	EncryptionPassphrase string
}

// StoreConfig defines session metadata persistence.
type StoreConfig struct {
	RedisURL     string
	HistoryLimit int
	TTL          time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	HTTP    HTTPConfig
	Viewer  ViewerConfig
	Storage StorageConfig
	Store   StoreConfig
}

// DefaultScale is the zoom factor pages are rendered at.
const DefaultScale = 1.5

// Load reads an optional .env file and then the environment.
func Load(files ...string) Config {
	// missing .env is the normal case outside local dev
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfseek.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfseek",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.HTTP = HTTPConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Viewer = ViewerConfig{
		Scale:          parseFloat(getEnv("VIEWER_SCALE", ""), DefaultScale),
		SpeechLang:     getEnv("SPEECH_LANG", "en-US"),
		SearchTimeout:  parseDuration(getEnv("SEARCH_TIMEOUT", ""), 0),
		SessionIdleTTL: parseDuration(getEnv("SESSION_IDLE_TTL", "30m"), 30*time.Minute),
		ProbeThreshold: parseInt(getEnv("TEXT_PROBE_THRESHOLD", "1"), 1),
	}
	if cfg.Viewer.Scale <= 0 {
		cfg.Viewer.Scale = DefaultScale
	}

	cfg.Storage = StorageConfig{
		Backend:              strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		UploadDir:            getEnv("UPLOAD_DIR", "uploads"),
		S3Bucket:             getEnv("AWS_S3_BUCKET", ""),
		S3Prefix:             getEnv("AWS_S3_PREFIX", "pdfseek/"),
		AWSRegion:            getEnv("AWS_REGION", ""),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		EncryptionPassphrase: getEnv("UPLOAD_ENCRYPTION_PASSPHRASE", ""),
	}

	cfg.Store = StoreConfig{
		RedisURL:     getEnv("REDIS_URL", ""),
		HistoryLimit: parseInt(getEnv("SEARCH_HISTORY_LIMIT", "50"), 50),
		TTL:          parseDuration(getEnv("SESSION_STORE_TTL", "168h"), 7*24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the service reads at startup.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Ledger   LedgerConfig
	Archive  ArchiveConfig
	Logger   LoggerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the pgx keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type GeminiConfig struct {
	APIKey string
	Model  string
	// PollInterval and PollTimeout bound the file-readiness polling loop
	// after uploading a native document to the extraction service.
	PollInterval time.Duration
	PollTimeout  time.Duration
	// CallTimeout caps a single extraction round-trip.
	CallTimeout time.Duration
}

type PipelineConfig struct {
	// BatchSize is the maximum number of table rows sent in one extraction
	// call. 40 keeps the model from truncating its JSON output.
	BatchSize int
	// Pacing is the delay between consecutive chunk calls within one run.
	Pacing time.Duration
	// DebounceWindow is how long the coordinator waits for more files from
	// the same user before triggering one consolidated run.
	DebounceWindow time.Duration
	// MaxUploadBytes caps a single inbound document.
	MaxUploadBytes int64
}

type LedgerConfig struct {
	DefaultAccountType string
	DefaultCurrency    string
}

type ArchiveConfig struct {
	// Bucket is the GCS bucket for raw-document archival. Empty disables
	// archival entirely.
	Bucket string
}

type LoggerConfig struct {
	Level string
}

// Load reads configuration from a .env file when present, then from the
// environment, falling back to defaults. A missing .env file is not an
// error (containers usually inject variables directly).
func Load() (*Config, error) {
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout := getInt("SERVER_READ_TIMEOUT", 30)
	writeTimeout := getInt("SERVER_WRITE_TIMEOUT", 30)
	pollInterval := getInt("GEMINI_POLL_INTERVAL_MS", 1000)
	pollTimeout := getInt("GEMINI_POLL_TIMEOUT_SEC", 120)
	callTimeout := getInt("GEMINI_CALL_TIMEOUT_SEC", 180)
	batchSize := getInt("PIPELINE_BATCH_SIZE", 40)
	pacing := getInt("PIPELINE_PACING_MS", 1000)
	debounce := getInt("PIPELINE_DEBOUNCE_MS", 5000)
	maxUpload := getInt("PIPELINE_MAX_UPLOAD_MB", 25)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "afin"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Gemini: GeminiConfig{
			APIKey:       getEnv("GOOGLE_API_KEY", ""),
			Model:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			PollInterval: time.Duration(pollInterval) * time.Millisecond,
			PollTimeout:  time.Duration(pollTimeout) * time.Second,
			CallTimeout:  time.Duration(callTimeout) * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:      batchSize,
			Pacing:         time.Duration(pacing) * time.Millisecond,
			DebounceWindow: time.Duration(debounce) * time.Millisecond,
			MaxUploadBytes: int64(maxUpload) << 20,
		},
		Ledger: LedgerConfig{
			DefaultAccountType: getEnv("DEFAULT_ACCOUNT_TYPE", "Wallet"),
			DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "COP"),
		},
		Archive: ArchiveConfig{
			Bucket: getEnv("ARCHIVE_BUCKET", ""),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

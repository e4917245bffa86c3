package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Archive    ArchiveConfig
	Provider   ProviderConfig
	Resilience ResilienceConfig
	Ingest     IngestConfig
	Topics     TopicsConfig
}

// ArchiveConfig holds the local archive store configuration
type ArchiveConfig struct {
	DBPath      string
	DialTimeout time.Duration
}

// ProviderConfig holds the remote transcription provider configuration
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	LanguageCode   string
	SpeakerLabels  bool
	Sentiment      bool
	Punctuate      bool
	FormatText     bool
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MaxWait        time.Duration // 0 means no overall polling deadline
}

// ResilienceConfig holds retry and circuit-breaker configuration
type ResilienceConfig struct {
	MaxRetryAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	JitterMax        time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
	SamplingWindow   time.Duration
}

// IngestConfig holds intake and worker-pool configuration
type IngestConfig struct {
	WatchRoots      []string
	WorkDir         string
	Workers         int
	QueueSize       int
	ProcessTimeout  time.Duration
	IndexRetries    int
	IndexRetryDelay time.Duration
}

// TopicsConfig holds the optional topic-extraction configuration
type TopicsConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			DBPath:      getEnv("ARCHIVE_DB_PATH", "./archive.db"),
			DialTimeout: getEnvAsDuration("ARCHIVE_DIAL_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			BaseURL:        getEnv("TRANSCRIBE_BASE_URL", "https://api.assemblyai.com"),
			APIKey:         getEnv("TRANSCRIBE_API_KEY", ""),
			LanguageCode:   getEnv("TRANSCRIBE_LANGUAGE", "en"),
			SpeakerLabels:  getEnvAsBool("TRANSCRIBE_SPEAKER_LABELS", true),
			Sentiment:      getEnvAsBool("TRANSCRIBE_SENTIMENT", false),
			Punctuate:      getEnvAsBool("TRANSCRIBE_PUNCTUATE", true),
			FormatText:     getEnvAsBool("TRANSCRIBE_FORMAT_TEXT", true),
			RequestTimeout: getEnvAsDuration("TRANSCRIBE_REQUEST_TIMEOUT", 30*time.Second),
			PollInterval:   getEnvAsDuration("TRANSCRIBE_POLL_INTERVAL", 5*time.Second),
			MaxWait:        getEnvAsDuration("TRANSCRIBE_MAX_WAIT", 0),
		},
		Resilience: ResilienceConfig{
			MaxRetryAttempts: getEnvAsInt("RESILIENCE_MAX_RETRIES", 3),
			BaseDelay:        getEnvAsDuration("RESILIENCE_BASE_DELAY", time.Second),
			MaxDelay:         getEnvAsDuration("RESILIENCE_MAX_DELAY", 30*time.Second),
			JitterMax:        getEnvAsDuration("RESILIENCE_JITTER_MAX", 500*time.Millisecond),
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			OpenDuration:     getEnvAsDuration("BREAKER_OPEN_DURATION", 30*time.Second),
			SamplingWindow:   getEnvAsDuration("BREAKER_SAMPLING_WINDOW", time.Minute),
		},
		Ingest: IngestConfig{
			WatchRoots:      getEnvAsList("INGEST_WATCH_ROOTS"),
			WorkDir:         getEnv("INGEST_WORK_DIR", os.TempDir()),
			Workers:         getEnvAsInt("INGEST_WORKERS", 4),
			QueueSize:       getEnvAsInt("INGEST_QUEUE_SIZE", 256),
			ProcessTimeout:  getEnvAsDuration("INGEST_PROCESS_TIMEOUT", 45*time.Minute),
			IndexRetries:    getEnvAsInt("INGEST_INDEX_RETRIES", 2),
			IndexRetryDelay: getEnvAsDuration("INGEST_INDEX_RETRY_DELAY", 2*time.Second),
		},
		Topics: TopicsConfig{
			BaseURL: getEnv("TOPICS_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("TOPICS_API_KEY", ""),
			Model:   getEnv("TOPICS_MODEL", "gpt-4o-mini"),
			Timeout: getEnvAsDuration("TOPICS_TIMEOUT", 45*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "TRANSCRIBE_API_KEY is required", ErrInvalidInput)
	}
	if c.Archive.DBPath == "" {
		return NewAppError("CONFIG_ERROR", "ARCHIVE_DB_PATH is required", ErrInvalidInput)
	}
	if len(c.Ingest.WatchRoots) == 0 {
		return NewAppError("CONFIG_ERROR", "INGEST_WATCH_ROOTS is required", ErrInvalidInput)
	}
	return nil
}

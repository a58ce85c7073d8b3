package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	FeedURL              string
	RecentResourceID     string
	HistoricalResourceID string
	FeedPageSize         int
	FeedRetryMax         int
	FeedRetryBaseDelay   time.Duration
	FeedTimeout          time.Duration
	FeedSuccessPath      string
	FeedRecordsPath      string
	FeedTotalPath        string
	FieldMapFile         string
	PeriodMinYear        int
	PeriodMaxYear        int
	StaleAfterMonths     int
	SyncInterval         time.Duration
	SheetsSpreadsheetID  string
	GoogleCredentials    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:          envOrDefaultWarn("DATABASE_URL", ""),
		FeedURL:              envOrDefault("FEED_URL", "https://data.gov.il/api/3/action/datastore_search"),
		RecentResourceID:     envOrDefault("FEED_RECENT_RESOURCE_ID", "2016d770-f094-4a2e-983e-797c26479720"),
		HistoricalResourceID: envOrDefault("FEED_HISTORICAL_RESOURCE_ID", "91c849ed-ddc4-472b-bd09-0f5486cea35c"),
		FeedPageSize:         envOrDefaultInt("FEED_PAGE_SIZE", 1000),
		FeedRetryMax:         envOrDefaultInt("FEED_RETRY_MAX", 5),
		FeedRetryBaseDelay:   envOrDefaultDuration("FEED_RETRY_BASE_DELAY", 2*time.Second),
		FeedTimeout:          envOrDefaultDuration("FEED_TIMEOUT", 60*time.Second),
		FeedSuccessPath:      envOrDefault("FEED_SUCCESS_PATH", "$.success"),
		FeedRecordsPath:      envOrDefault("FEED_RECORDS_PATH", "$.result.records"),
		FeedTotalPath:        envOrDefault("FEED_TOTAL_PATH", "$.result.total"),
		FieldMapFile:         envOrDefault("FIELD_MAP_FILE", ""),
		PeriodMinYear:        envOrDefaultInt("PERIOD_MIN_YEAR", 1999),
		PeriodMaxYear:        envOrDefaultInt("PERIOD_MAX_YEAR", 2025),
		StaleAfterMonths:     envOrDefaultInt("STALE_AFTER_MONTHS", 3),
		SyncInterval:         envOrDefaultDuration("SYNC_INTERVAL", 24*time.Hour),
		SheetsSpreadsheetID:  envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		GoogleCredentials:    envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

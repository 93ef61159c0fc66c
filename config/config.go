package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// LoadENV reads .env into the process environment when GO_ENV is unset or
// development. A missing file surfaces as an os.ErrNotExist error.
func LoadENV() error {
	switch os.Getenv("GO_ENV") {
	case "", "development":
		return godotenv.Load()
	}
	return nil
}

type EnviornmentVariable struct {
	GO_ENV   string
	LOG_MODE string
	PORT     int `validate:"min=1,max=65535"`
	// Database
	DB_DRIVER    string `validate:"oneof=postgres sqlite"`
	DB_PATH      string // sqlite file when DB_DRIVER=sqlite
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// HTTP
	ALLOWED_ORIGINS string
	JWT_SECRET      string
	JWT_ISSUER      string
	REDIS_URL       string
	// Spaces archive
	DO_SPACES_ACCESS_KEY string
	DO_SPACES_SECRET_KEY string
	DO_SPACES_BUCKET     string
	DO_SPACES_REGION     string
	DO_SPACES_ENDPOINT   string
	// Inference (extraction oracle)
	MODEL_ACCESS_KEY       string
	INFERENCE_BASE_URL     string
	INFERENCE_MODEL        string
	INFERENCE_RATE_PER_SEC float64       `validate:"gt=0"`
	INFERENCE_MAX_BURST    float64       `validate:"gte=1"`
	INFERENCE_MAX_RETRIES  int           `validate:"min=0,max=10"`
	ORACLE_TIMEOUT         time.Duration `validate:"gt=0"`
	// Question ingestion
	INGEST_MAX_INPUT_BYTES    int    `validate:"min=1"`
	INGEST_MAX_BULK_BLOCKS    int    `validate:"min=1"`
	INGEST_BULK_POLICY        string `validate:"oneof=lenient strict"`
	INGEST_SECTION_PARALLEL   int    `validate:"min=1,max=32"`
	INGEST_QUOTA_PER_HOUR     int    `validate:"min=0"`
	INGEST_LOG_RETENTION_DAYS int    `validate:"min=1"`
	INGEST_ARCHIVE_ENABLED    bool
	// Seeding
	ADMIN_EMAIL    string
	ADMIN_PASSWORD string
	SEED_DEMO_EXAM bool
	// Jobs
	CRON_ENABLED bool
}

var validate = validator.New()

// Get reads the environment, filling defaults for anything unset or
// unparseable, and rejects values that are out of range
func Get() (*EnviornmentVariable, error) {
	goEnv := os.Getenv("GO_ENV")

	env := &EnviornmentVariable{
		GO_ENV:   goEnv,
		LOG_MODE: getString("LOG_MODE", goEnv),
		PORT:     getInt("PORT", 8080),

		DB_DRIVER:    strings.ToLower(getString("DB_DRIVER", "postgres")),
		DB_PATH:      getString("DB_PATH", "exam-prep.db"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      getString("DB_HOST", "localhost"),
		DB_PORT:      getString("DB_PORT", "5432"),
		DB_SSL_MODE:  getString("DB_SSL_MODE", "disable"),

		ALLOWED_ORIGINS: getString("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWT_SECRET:      os.Getenv("JWT_SECRET"),
		JWT_ISSUER:      getString("JWT_ISSUER", "exam-prep-api"),
		REDIS_URL:       os.Getenv("REDIS_URL"),

		DO_SPACES_ACCESS_KEY: os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY: os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:     os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:     os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:   os.Getenv("DO_SPACES_ENDPOINT"),

		MODEL_ACCESS_KEY:       os.Getenv("MODEL_ACCESS_KEY"),
		INFERENCE_BASE_URL:     os.Getenv("INFERENCE_BASE_URL"),
		INFERENCE_MODEL:        os.Getenv("INFERENCE_MODEL"),
		INFERENCE_RATE_PER_SEC: getFloat("INFERENCE_RATE_PER_SEC", 1),
		INFERENCE_MAX_BURST:    getFloat("INFERENCE_MAX_BURST", 5),
		INFERENCE_MAX_RETRIES:  getInt("INFERENCE_MAX_RETRIES", 2),
		ORACLE_TIMEOUT:         getDuration("ORACLE_TIMEOUT", 90*time.Second),

		INGEST_MAX_INPUT_BYTES:    getInt("INGEST_MAX_INPUT_BYTES", 64*1024),
		INGEST_MAX_BULK_BLOCKS:    getInt("INGEST_MAX_BULK_BLOCKS", 30),
		INGEST_BULK_POLICY:        strings.ToLower(getString("INGEST_BULK_POLICY", "lenient")),
		INGEST_SECTION_PARALLEL:   getInt("INGEST_SECTION_PARALLEL", 4),
		INGEST_QUOTA_PER_HOUR:     getInt("INGEST_QUOTA_PER_HOUR", 60),
		INGEST_LOG_RETENTION_DAYS: getInt("INGEST_LOG_RETENTION_DAYS", 30),
		INGEST_ARCHIVE_ENABLED:    getBool("INGEST_ARCHIVE_ENABLED", false),

		ADMIN_EMAIL:    os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD: os.Getenv("ADMIN_PASSWORD"),
		SEED_DEMO_EXAM: getBool("SEED_DEMO_EXAM", false),

		CRON_ENABLED: getBool("CRON_ENABLED", true),
	}

	if err := validate.Struct(env); err != nil {
		return nil, describe(err)
	}
	return env, nil
}

// IsProduction reports whether GO_ENV is production
func (e *EnviornmentVariable) IsProduction() bool {
	return e.GO_ENV == "production"
}

func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getString(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration also accepts a bare number of seconds
func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return fallback
}

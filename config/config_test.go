package config

import (
	"testing"
	"time"
)

func TestGet_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ORACLE_TIMEOUT", "INGEST_MAX_INPUT_BYTES", "INGEST_MAX_BULK_BLOCKS", "INGEST_BULK_POLICY", "CRON_ENABLED", "INGEST_ARCHIVE_ENABLED", "DB_DRIVER", "INGEST_SECTION_PARALLEL"} {
		t.Setenv(key, "")
	}

	env, err := Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.PORT != 8080 {
		t.Errorf("expected default port 8080, got %d", env.PORT)
	}
	if env.ORACLE_TIMEOUT != 90*time.Second {
		t.Errorf("expected 90s oracle timeout, got %s", env.ORACLE_TIMEOUT)
	}
	if env.INGEST_MAX_INPUT_BYTES != 65536 || env.INGEST_MAX_BULK_BLOCKS != 30 {
		t.Errorf("unexpected ingestion limits: %d bytes, %d blocks", env.INGEST_MAX_INPUT_BYTES, env.INGEST_MAX_BULK_BLOCKS)
	}
	if env.INGEST_BULK_POLICY != "lenient" {
		t.Errorf("expected lenient bulk policy, got %q", env.INGEST_BULK_POLICY)
	}
	if !env.CRON_ENABLED || env.INGEST_ARCHIVE_ENABLED {
		t.Errorf("unexpected flags: cron=%v archive=%v", env.CRON_ENABLED, env.INGEST_ARCHIVE_ENABLED)
	}
}

func TestGet_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ORACLE_TIMEOUT", "15s")
	t.Setenv("INGEST_MAX_BULK_BLOCKS", "10")
	t.Setenv("INGEST_BULK_POLICY", "strict")
	t.Setenv("INGEST_ARCHIVE_ENABLED", "true")
	t.Setenv("INFERENCE_RATE_PER_SEC", "0.5")

	env, err := Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.PORT != 9090 || env.ORACLE_TIMEOUT != 15*time.Second || env.INGEST_MAX_BULK_BLOCKS != 10 {
		t.Errorf("overrides not applied: %+v", env)
	}
	if env.INGEST_BULK_POLICY != "strict" || !env.INGEST_ARCHIVE_ENABLED || env.INFERENCE_RATE_PER_SEC != 0.5 {
		t.Errorf("overrides not applied: %+v", env)
	}
}

func TestGet_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT", "soon")
	t.Setenv("INGEST_MAX_INPUT_BYTES", "lots")

	env, err := Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ORACLE_TIMEOUT != 90*time.Second || env.INGEST_MAX_INPUT_BYTES != 65536 {
		t.Errorf("invalid values should fall back to defaults: %s, %d", env.ORACLE_TIMEOUT, env.INGEST_MAX_INPUT_BYTES)
	}
}

func TestGet_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"INGEST_BULK_POLICY", "sometimes"},
		{"DB_DRIVER", "mysql"},
		{"INGEST_SECTION_PARALLEL", "0"},
		{"PORT", "70000"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Get(); err == nil {
				t.Errorf("%s=%s should be rejected", tt.key, tt.value)
			}
		})
	}
}

func TestGet_DurationAcceptsSeconds(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT", "45")
	env, err := Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ORACLE_TIMEOUT != 45*time.Second {
		t.Errorf("expected 45s, got %s", env.ORACLE_TIMEOUT)
	}
}

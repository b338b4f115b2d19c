package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0644); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "database:\n  dsn: file:metering.db\n")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Quota.Timezone != "Asia/Bangkok" {
		t.Fatalf("timezone = %q, want Asia/Bangkok", cfg.Quota.Timezone)
	}
	if cfg.Quota.SoftWindowPercent != 5 || cfg.Quota.WriteThroughPercent != 10 {
		t.Fatalf("quota heuristics = %d/%d, want 5/10", cfg.Quota.SoftWindowPercent, cfg.Quota.WriteThroughPercent)
	}
	if cfg.Appender.Backend != AppenderBackendQueue {
		t.Fatalf("backend = %q, want queue", cfg.Appender.Backend)
	}
	if cfg.Appender.MaxQueue != 5000 || cfg.Appender.FlushIntervalMS != 200 || cfg.Appender.MaxBatch != 500 {
		t.Fatalf("appender defaults = %d/%d/%d", cfg.Appender.MaxQueue, cfg.Appender.FlushIntervalMS, cfg.Appender.MaxBatch)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	path := writeConfigFile(t, "server:\n  addr: ':9000'\n")

	if _, errLoad := Load(path); errLoad == nil {
		t.Fatal("load succeeded without database.dsn")
	}
}

func TestLoadRejectsInvalidTimezone(t *testing.T) {
	path := writeConfigFile(t, "database:\n  dsn: file:metering.db\nquota:\n  timezone: Not/AZone\n")

	if _, errLoad := Load(path); errLoad == nil {
		t.Fatal("load succeeded with invalid timezone")
	}
}

func TestLoadRejectsRedisBackendWithoutAddr(t *testing.T) {
	path := writeConfigFile(t, "database:\n  dsn: file:metering.db\nappender:\n  backend: redis\n")

	if _, errLoad := Load(path); errLoad == nil {
		t.Fatal("load succeeded with redis backend and no redis.addr")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfigFile(t, "database:\n  dsn: file:metering.db\nappender:\n  backend: kafka\n")

	if _, errLoad := Load(path); errLoad == nil {
		t.Fatal("load succeeded with unknown backend")
	}
}

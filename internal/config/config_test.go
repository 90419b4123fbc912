package config

import "testing"

func TestConfig_Default(t *testing.T) {
	cfg := Default()
	if cfg.Concurrency.Cap != 5 {
		t.Errorf("Concurrency.Cap default = %d, want 5", cfg.Concurrency.Cap)
	}
	if cfg.Lock.GetTTL().String() != "5m0s" {
		t.Errorf("Lock.GetTTL() = %s, want 5m0s", cfg.Lock.GetTTL())
	}
}

func TestConfig_ConcurrencyEnvOverride(t *testing.T) {
	t.Setenv("REPORT_WORKER_CONCURRENCY", "12")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Concurrency.Cap != 12 {
		t.Errorf("Concurrency.Cap = %d after env override, want 12", cfg.Concurrency.Cap)
	}
}

func TestConfig_BucketEnvOverride(t *testing.T) {
	t.Setenv("REPORT_WORKER_BUCKET", "reports-bucket")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Bucket.Name != "reports-bucket" {
		t.Errorf("Bucket.Name = %q, want %q", cfg.Bucket.Name, "reports-bucket")
	}
}

func TestMetadataConfig_CollectionFor(t *testing.T) {
	m := MetadataConfig{CollectionName: "reportRef"}

	if got := m.CollectionFor("production"); got != "reportRef" {
		t.Errorf("CollectionFor(production) = %q, want reportRef", got)
	}
	if got := m.CollectionFor("development"); got != "reportRef_dev" {
		t.Errorf("CollectionFor(development) = %q, want reportRef_dev", got)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Environment: "prod"}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true for \"prod\"")
	}
	cfg.Environment = "development"
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false for \"development\"")
	}
}

func TestLockConfig_GetTTL_InvalidFallsBackToDefault(t *testing.T) {
	l := LockConfig{TTL: "not-a-duration"}
	if got := l.GetTTL(); got.String() != "5m0s" {
		t.Errorf("GetTTL() = %s, want 5m0s fallback", got)
	}
}

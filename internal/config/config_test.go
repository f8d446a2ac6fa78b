package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "ADMIN_TOKEN", "USERDICT_PATH", "SPECFUSION_API_URL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3456 {
		t.Errorf("default port = %d, want 3456", cfg.Server.Port)
	}
	if cfg.Storage.DBPath != "./data/specfusion.db" {
		t.Errorf("default db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Server.AdminToken != "dev-token" {
		t.Errorf("default admin token = %q", cfg.Server.AdminToken)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/sf.db")
	t.Setenv("ADMIN_TOKEN", "secret")
	t.Setenv("SPECFUSION_API_URL", "http://api.internal:3456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.DBPath != "/tmp/sf.db" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Server.AdminToken != "secret" || cfg.Sync.AdminToken != "secret" {
		t.Errorf("admin token not propagated: %q / %q", cfg.Server.AdminToken, cfg.Sync.AdminToken)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.MaxUploadBytes() != 500*1024*1024 {
		t.Fatalf("expected 500 MiB upload ceiling, got %d", cfg.MaxUploadBytes())
	}
	if cfg.DefaultQuotaBytes() != 10*1024*1024*1024 {
		t.Fatalf("expected 10 GiB quota, got %d", cfg.DefaultQuotaBytes())
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %v", cfg.TokenTTL())
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("expected rate limiting disabled by default")
	}
	if cfg.RateLimit.RequestsPerMinute != DefaultRequestsPerMin {
		t.Fatalf("expected %d rpm, got %d", DefaultRequestsPerMin, cfg.RateLimit.RequestsPerMinute)
	}
	if len(cfg.CORS.AllowOrigins) != 1 || cfg.CORS.AllowOrigins[0] != "*" {
		t.Fatalf("expected wildcard origins, got %#v", cfg.CORS.AllowOrigins)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"
max_upload_size_mb = 5

[rate_limit]
enabled = true
requests_per_minute = 30

[bridge]
api_url = "http://backend:8000"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.MaxUploadSizeMB != 5 {
		t.Fatalf("expected max upload 5, got %d", cfg.MaxUploadSizeMB)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerMinute != 30 {
		t.Fatalf("unexpected rate limit: %#v", cfg.RateLimit)
	}
	if cfg.Bridge.APIURL != "http://backend:8000" {
		t.Fatalf("expected bridge api url, got %q", cfg.Bridge.APIURL)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/"+configFileName, &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"UPDRIVE_SECRET_KEY":            "s3cret",
		"UPDRIVE_MAX_UPLOAD_SIZE_MB":    "1",
		"UPDRIVE_DEFAULT_USER_QUOTA_GB": "2",
		"UPDRIVE_ENABLE_RATE_LIMITING":  "true",
		"UPDRIVE_CORS_ALLOW_ORIGINS":    "https://a.example, https://b.example",
		"UPDRIVE_BRIDGE_API_URL":        "http://core:8000",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.SecretKey != "s3cret" {
		t.Fatalf("expected secret key override, got %q", cfg.SecretKey)
	}
	if cfg.MaxUploadBytes() != 1024*1024 {
		t.Fatalf("expected 1 MiB ceiling, got %d", cfg.MaxUploadBytes())
	}
	if cfg.DefaultQuotaBytes() != 2*1024*1024*1024 {
		t.Fatalf("expected 2 GiB quota, got %d", cfg.DefaultQuotaBytes())
	}
	if !cfg.RateLimit.Enabled {
		t.Fatal("expected rate limiting enabled")
	}
	if len(cfg.CORS.AllowOrigins) != 2 || cfg.CORS.AllowOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORS.AllowOrigins)
	}
	if cfg.Bridge.APIURL != "http://core:8000" {
		t.Fatalf("expected bridge api url override, got %q", cfg.Bridge.APIURL)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value string
	}{
		{"UPDRIVE_MAX_UPLOAD_SIZE_MB", "lots"},
		{"UPDRIVE_REQUESTS_PER_MINUTE", "-1"},
		{"UPDRIVE_ENABLE_RATE_LIMITING", "maybe"},
		{"UPDRIVE_MAX_UPLOAD_SIZE_MB", "9223372036854775807"},
		{"UPDRIVE_DEFAULT_USER_QUOTA_GB", "9000000000"},
	} {
		t.Run(tc.name+"="+tc.value, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(key string) (string, bool) {
				if key == tc.name {
					return tc.value, true
				}
				return "", false
			})
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.name, tc.value)
			}
		})
	}
}

func TestSizeLimitsFitInt64(t *testing.T) {
	cfg := Default()
	cfg.MaxUploadSizeMB = maxUploadSizeMBLimit
	cfg.DefaultUserQuotaGB = maxUserQuotaGBLimit
	if err := cfg.validateLimits(); err != nil {
		t.Fatalf("limits should be accepted: %v", err)
	}
	if cfg.MaxUploadBytes() <= 0 || cfg.DefaultQuotaBytes() <= 0 {
		t.Fatalf("conversion wrapped: upload=%d quota=%d", cfg.MaxUploadBytes(), cfg.DefaultQuotaBytes())
	}

	cfg.DefaultUserQuotaGB = maxUserQuotaGBLimit + 1
	if err := cfg.validateLimits(); err == nil {
		t.Fatal("expected oversized quota from file to be rejected")
	}

	path := filepath.Join(t.TempDir(), configFileName)
	if err := SetKey(path, "max_upload_size_mb", "9223372036854775807"); err == nil {
		t.Fatal("expected oversized upload ceiling to be rejected")
	}
}

func TestLoadDerivesPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)
	t.Setenv("UPDRIVE_STORAGE_PATH", filepath.Join(dir, "store"))
	t.Setenv("UPDRIVE_DB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != filepath.Join(dir, "store", DefaultDBFileName) {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.BlobDir() != filepath.Join(dir, "store", "files") {
		t.Fatalf("unexpected blob dir %q", cfg.BlobDir())
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"storage_path",
		"secret_key",
		"max_upload_size_mb",
		"default_user_quota_gb",
		"cors.allow_origins",
		"rate_limit.enabled",
		"bridge.api_url",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.SecretKey = "hidden"
	cfg.StoragePath = "/srv/updrive"

	val, err := cfg.Get("secret_key")
	if err != nil || val != "********" {
		t.Fatalf("expected masked secret, got %q (err: %v)", val, err)
	}
	val, err = cfg.Get("storage_path")
	if err != nil || val != "/srv/updrive" {
		t.Fatalf("expected storage path, got %q (err: %v)", val, err)
	}
	val, err = cfg.Get("cors.allow_credentials")
	if err != nil || val != "true" {
		t.Fatalf("expected allow_credentials true, got %q (err: %v)", val, err)
	}
	if _, err := cfg.Get("nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestSetKeyWritesNestedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	if err := SetKey(path, "rate_limit.requests_per_minute", "60"); err != nil {
		t.Fatalf("set rpm: %v", err)
	}
	if err := SetKey(path, "cors.allow_origins", "https://x.example,https://y.example"); err != nil {
		t.Fatalf("set origins: %v", err)
	}
	if err := SetKey(path, "max_upload_size_mb", "zero"); err == nil {
		t.Fatal("expected invalid integer error")
	}
	if err := SetKey(path, "bogus", "1"); err == nil {
		t.Fatal("expected unknown key error")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		t.Fatalf("decode written config: %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 60 {
		t.Fatalf("expected rpm 60, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	if len(cfg.CORS.AllowOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %#v", cfg.CORS.AllowOrigins)
	}
}

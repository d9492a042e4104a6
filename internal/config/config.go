package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	AppName    = "UpDrive"
	AppVersion = "0.1.0"

	DefaultAPIURL         = "http://127.0.0.1:8000"
	DefaultBridgeURL      = "http://127.0.0.1:8080"
	DefaultStorageDir     = "data"
	DefaultDBFileName     = "updrive.db"
	DefaultLogLevel       = "info"
	DefaultJWTAlgorithm   = "HS256"
	DefaultTokenTTLMin    = 24 * 60
	DefaultMaxUploadMB    = 500
	DefaultUserQuotaGB    = 10
	DefaultRequestsPerMin = 120

	// Largest values whose byte or duration conversion fits in int64.
	maxUploadSizeMBLimit       = math.MaxInt64 >> 20
	maxUserQuotaGBLimit        = math.MaxInt64 >> 30
	maxTokenExpireMinutesLimit = math.MaxInt64 / int64(time.Minute)

	configFileName           = ".updrive.toml"
	configDirEnvKey          = "UPDRIVE_CONFIG_DIR"
	trustProjectConfigEnvKey = "UPDRIVE_TRUST_PROJECT_CONFIG"
	envPrefix                = "UPDRIVE_"
)

// CORSConfig holds the allow-lists applied by the API server.
type CORSConfig struct {
	AllowOrigins     []string `toml:"allow_origins"`
	AllowMethods     []string `toml:"allow_methods"`
	AllowHeaders     []string `toml:"allow_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

// RateLimitConfig toggles per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
}

// BridgeConfig configures the cookie-to-bearer front tier.
type BridgeConfig struct {
	ListenURL    string `toml:"listen_url"`
	APIURL       string `toml:"api_url"`
	SecureCookie bool   `toml:"secure_cookie"`
}

// Config defines runtime configuration for updrive.
type Config struct {
	APIURL                   string          `toml:"api_url"`
	DBPath                   string          `toml:"db_path"`
	StoragePath              string          `toml:"storage_path"`
	SecretKey                string          `toml:"secret_key"`
	JWTAlgorithm             string          `toml:"jwt_algorithm"`
	AccessTokenExpireMinutes int             `toml:"access_token_expire_minutes"`
	MaxUploadSizeMB          int64           `toml:"max_upload_size_mb"`
	DefaultUserQuotaGB       int64           `toml:"default_user_quota_gb"`
	LogLevel                 string          `toml:"log_level"`
	AuditLogPath             string          `toml:"audit_log_path"`
	CORS                     CORSConfig      `toml:"cors"`
	RateLimit                RateLimitConfig `toml:"rate_limit"`
	Bridge                   BridgeConfig    `toml:"bridge"`
	TrustedProxies           []string        `toml:"trusted_proxies"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:                   DefaultAPIURL,
		JWTAlgorithm:             DefaultJWTAlgorithm,
		AccessTokenExpireMinutes: DefaultTokenTTLMin,
		MaxUploadSizeMB:          DefaultMaxUploadMB,
		DefaultUserQuotaGB:       DefaultUserQuotaGB,
		LogLevel:                 DefaultLogLevel,
		CORS: CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"*"},
			AllowHeaders:     []string{"*"},
			AllowCredentials: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: DefaultRequestsPerMin,
		},
		Bridge: BridgeConfig{
			ListenURL: DefaultBridgeURL,
			APIURL:    DefaultAPIURL,
		},
	}
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}

// DefaultQuotaBytes returns the quota assigned to new accounts.
func (c *Config) DefaultQuotaBytes() int64 {
	return c.DefaultUserQuotaGB * 1024 * 1024 * 1024
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// BlobDir returns the directory holding physical blobs.
func (c *Config) BlobDir() string {
	return filepath.Join(c.StoragePath, "files")
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"storage_path",
	"secret_key",
	"jwt_algorithm",
	"access_token_expire_minutes",
	"max_upload_size_mb",
	"default_user_quota_gb",
	"log_level",
	"audit_log_path",
	"cors.allow_origins",
	"cors.allow_methods",
	"cors.allow_headers",
	"cors.allow_credentials",
	"rate_limit.enabled",
	"rate_limit.requests_per_minute",
	"bridge.listen_url",
	"bridge.api_url",
	"bridge.secure_cookie",
	"trusted_proxies",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. The secret key is masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "storage_path":
		return c.StoragePath, nil
	case "secret_key":
		if c.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "jwt_algorithm":
		return c.JWTAlgorithm, nil
	case "access_token_expire_minutes":
		return strconv.Itoa(c.AccessTokenExpireMinutes), nil
	case "max_upload_size_mb":
		return strconv.FormatInt(c.MaxUploadSizeMB, 10), nil
	case "default_user_quota_gb":
		return strconv.FormatInt(c.DefaultUserQuotaGB, 10), nil
	case "log_level":
		return c.LogLevel, nil
	case "audit_log_path":
		return c.AuditLogPath, nil
	case "cors.allow_origins":
		return strings.Join(c.CORS.AllowOrigins, ","), nil
	case "cors.allow_methods":
		return strings.Join(c.CORS.AllowMethods, ","), nil
	case "cors.allow_headers":
		return strings.Join(c.CORS.AllowHeaders, ","), nil
	case "cors.allow_credentials":
		return strconv.FormatBool(c.CORS.AllowCredentials), nil
	case "rate_limit.enabled":
		return strconv.FormatBool(c.RateLimit.Enabled), nil
	case "rate_limit.requests_per_minute":
		return strconv.Itoa(c.RateLimit.RequestsPerMinute), nil
	case "bridge.listen_url":
		return c.Bridge.ListenURL, nil
	case "bridge.api_url":
		return c.Bridge.APIURL, nil
	case "bridge.secure_cookie":
		return strconv.FormatBool(c.Bridge.SecureCookie), nil
	case "trusted_proxies":
		return strings.Join(c.TrustedProxies, ","), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalizeDefaults()
	if err := cfg.validateLimits(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv overlays UPDRIVE_* variables. Malformed numeric or boolean values are errors.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if raw, ok := lookup(envPrefix + name); ok && strings.TrimSpace(raw) != "" {
			*dst = strings.TrimSpace(raw)
		}
	}
	list := func(name string, dst *[]string) {
		if raw, ok := lookup(envPrefix + name); ok && strings.TrimSpace(raw) != "" {
			*dst = splitCSV(raw)
		}
	}
	boolean := func(name string, dst *bool) error {
		raw, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(raw) == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s%s must be true or false", envPrefix, name)
		}
		*dst = parsed
		return nil
	}
	integer := func(name string, dst *int64, limit int64) error {
		raw, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(raw) == "" {
			return nil
		}
		parsed, err := parseBoundedInt(raw, limit)
		if err != nil {
			return fmt.Errorf("%s%s %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}

	str("API_URL", &c.APIURL)
	str("DB", &c.DBPath)
	str("STORAGE_PATH", &c.StoragePath)
	str("SECRET_KEY", &c.SecretKey)
	str("JWT_ALGORITHM", &c.JWTAlgorithm)
	str("LOG_LEVEL", &c.LogLevel)
	str("AUDIT_LOG", &c.AuditLogPath)
	str("BRIDGE_LISTEN_URL", &c.Bridge.ListenURL)
	str("BRIDGE_API_URL", &c.Bridge.APIURL)
	list("CORS_ALLOW_ORIGINS", &c.CORS.AllowOrigins)
	list("CORS_ALLOW_METHODS", &c.CORS.AllowMethods)
	list("CORS_ALLOW_HEADERS", &c.CORS.AllowHeaders)
	list("TRUSTED_PROXIES", &c.TrustedProxies)

	for name, dst := range map[string]*bool{
		"CORS_ALLOW_CREDENTIALS": &c.CORS.AllowCredentials,
		"ENABLE_RATE_LIMITING":   &c.RateLimit.Enabled,
		"BRIDGE_SECURE_COOKIE":   &c.Bridge.SecureCookie,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}

	ttl := int64(c.AccessTokenExpireMinutes)
	rpm := int64(c.RateLimit.RequestsPerMinute)
	for _, field := range []struct {
		name  string
		dst   *int64
		limit int64
	}{
		{"ACCESS_TOKEN_EXPIRE_MINUTES", &ttl, maxTokenExpireMinutesLimit},
		{"MAX_UPLOAD_SIZE_MB", &c.MaxUploadSizeMB, maxUploadSizeMBLimit},
		{"DEFAULT_USER_QUOTA_GB", &c.DefaultUserQuotaGB, maxUserQuotaGBLimit},
		{"REQUESTS_PER_MINUTE", &rpm, math.MaxInt32},
	} {
		if err := integer(field.name, field.dst, field.limit); err != nil {
			return err
		}
	}
	c.AccessTokenExpireMinutes = int(ttl)
	c.RateLimit.RequestsPerMinute = int(rpm)
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "access_token_expire_minutes", "max_upload_size_mb", "default_user_quota_gb", "rate_limit.requests_per_minute":
		parsed, err := parseBoundedInt(value, integerKeyLimits[key])
		if err != nil {
			return nil, fmt.Errorf("%s %w", key, err)
		}
		return parsed, nil
	case "cors.allow_credentials", "rate_limit.enabled", "bridge.secure_cookie":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "cors.allow_origins", "cors.allow_methods", "cors.allow_headers", "trusted_proxies":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

var integerKeyLimits = map[string]int64{
	"access_token_expire_minutes":    maxTokenExpireMinutesLimit,
	"max_upload_size_mb":             maxUploadSizeMBLimit,
	"default_user_quota_gb":          maxUserQuotaGBLimit,
	"rate_limit.requests_per_minute": math.MaxInt32,
}

func parseBoundedInt(raw string, limit int64) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	if parsed > limit {
		return 0, fmt.Errorf("must be at most %d", limit)
	}
	return parsed, nil
}

// validateLimits rejects file values too large to convert to bytes or durations.
func (c *Config) validateLimits() error {
	switch {
	case c.MaxUploadSizeMB > maxUploadSizeMBLimit:
		return fmt.Errorf("max_upload_size_mb must be at most %d", int64(maxUploadSizeMBLimit))
	case c.DefaultUserQuotaGB > maxUserQuotaGBLimit:
		return fmt.Errorf("default_user_quota_gb must be at most %d", int64(maxUserQuotaGBLimit))
	case int64(c.AccessTokenExpireMinutes) > maxTokenExpireMinutesLimit:
		return fmt.Errorf("access_token_expire_minutes must be at most %d", maxTokenExpireMinutesLimit)
	}
	return nil
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if c.StoragePath == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.StoragePath = filepath.Join(cwd, DefaultStorageDir)
		} else {
			c.StoragePath = DefaultStorageDir
		}
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.StoragePath, DefaultDBFileName)
	}
	if c.JWTAlgorithm == "" {
		c.JWTAlgorithm = DefaultJWTAlgorithm
	}
	if c.AccessTokenExpireMinutes <= 0 {
		c.AccessTokenExpireMinutes = DefaultTokenTTLMin
	}
	if c.MaxUploadSizeMB <= 0 {
		c.MaxUploadSizeMB = DefaultMaxUploadMB
	}
	if c.DefaultUserQuotaGB <= 0 {
		c.DefaultUserQuotaGB = DefaultUserQuotaGB
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = DefaultRequestsPerMin
	}
	if c.Bridge.ListenURL == "" {
		c.Bridge.ListenURL = DefaultBridgeURL
	}
	if c.Bridge.APIURL == "" {
		c.Bridge.APIURL = c.APIURL
	}
}

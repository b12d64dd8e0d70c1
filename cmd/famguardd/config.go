package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/famguard"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML layout. Zero values keep the engine
// defaults.
type fileConfig struct {
	Listen     string `yaml:"listen"`
	TrustProxy bool   `yaml:"trust_proxy"`
	LogLevel   string `yaml:"log_level"`
	AuditLog   string `yaml:"audit_log"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
		URL  string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		SigningMethod  string        `yaml:"signing_method"`
		PrivateKeyFile string        `yaml:"private_key_file"`
		PublicKeyFile  string        `yaml:"public_key_file"`
		Secret         string        `yaml:"secret"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		AccessTTL      time.Duration `yaml:"access_ttl"`
	} `yaml:"jwt"`

	RefreshTTL time.Duration `yaml:"refresh_ttl"`

	Session struct {
		TrustTTL         time.Duration `yaml:"trust_ttl"`
		SuspiciousWindow time.Duration `yaml:"suspicious_window"`
	} `yaml:"session"`

	Throttle struct {
		LoginWindow       time.Duration `yaml:"login_window"`
		LoginMaxFailures  int           `yaml:"login_max_failures"`
		DownloadWindow    time.Duration `yaml:"download_window"`
		DownloadThreshold int           `yaml:"download_threshold"`
	} `yaml:"throttle"`

	Reset struct {
		TTL         time.Duration `yaml:"ttl"`
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
	} `yaml:"password_reset"`

	CSRFTTL      time.Duration `yaml:"csrf_ttl"`
	InviteTTL    time.Duration `yaml:"invite_ttl"`
	ServiceToken string        `yaml:"service_token"`

	Maintenance struct {
		Enabled  *bool  `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"maintenance"`

	Alerts struct {
		SESRegion string `yaml:"ses_region"`
		From      string `yaml:"from"`
		FromName  string `yaml:"from_name"`
	} `yaml:"alerts"`
}

// loadFile reads path. A missing file is not an error; every setting can
// come from the environment instead.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// applyEnv lets FAMGUARD_* variables override the file.
func (fc *fileConfig) applyEnv() {
	fc.Listen = getEnv("FAMGUARD_LISTEN", fc.Listen)
	fc.LogLevel = getEnv("FAMGUARD_LOG_LEVEL", fc.LogLevel)
	fc.AuditLog = getEnv("FAMGUARD_AUDIT_LOG", fc.AuditLog)
	fc.Redis.Addr = getEnv("FAMGUARD_REDIS_ADDR", fc.Redis.Addr)
	fc.Redis.Password = getEnv("FAMGUARD_REDIS_PASSWORD", fc.Redis.Password)
	fc.Redis.DB = getEnvInt("FAMGUARD_REDIS_DB", fc.Redis.DB)
	fc.Database.Type = getEnv("FAMGUARD_DB_TYPE", fc.Database.Type)
	fc.Database.Path = getEnv("FAMGUARD_DB_PATH", fc.Database.Path)
	fc.Database.URL = getEnv("FAMGUARD_DB_URL", fc.Database.URL)
	fc.JWT.SigningMethod = getEnv("FAMGUARD_JWT_METHOD", fc.JWT.SigningMethod)
	fc.JWT.PrivateKeyFile = getEnv("FAMGUARD_JWT_PRIVATE_KEY_FILE", fc.JWT.PrivateKeyFile)
	fc.JWT.PublicKeyFile = getEnv("FAMGUARD_JWT_PUBLIC_KEY_FILE", fc.JWT.PublicKeyFile)
	fc.JWT.Secret = getEnv("FAMGUARD_JWT_SECRET", fc.JWT.Secret)
	fc.ServiceToken = getEnv("FAMGUARD_SERVICE_TOKEN", fc.ServiceToken)
	fc.Alerts.SESRegion = getEnv("FAMGUARD_SES_REGION", fc.Alerts.SESRegion)
	fc.Alerts.From = getEnv("FAMGUARD_ALERT_FROM", fc.Alerts.From)
}

// engineConfig overlays the file onto famguard.DefaultConfig.
func (fc fileConfig) engineConfig() (famguard.Config, error) {
	cfg := famguard.DefaultConfig()

	if fc.Database.Type != "" {
		cfg.Database.Type = fc.Database.Type
	}
	if fc.Database.Path != "" {
		cfg.Database.Path = fc.Database.Path
	}
	cfg.Database.URL = fc.Database.URL

	if fc.JWT.SigningMethod != "" {
		cfg.JWT.SigningMethod = strings.ToLower(fc.JWT.SigningMethod)
	}
	switch cfg.JWT.SigningMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(fc.JWT.Secret)
	default:
		var err error
		if cfg.JWT.PrivateKey, err = readKey(fc.JWT.PrivateKeyFile); err != nil {
			return cfg, err
		}
		if cfg.JWT.PublicKey, err = readKey(fc.JWT.PublicKeyFile); err != nil {
			return cfg, err
		}
	}
	cfg.JWT.Issuer = fc.JWT.Issuer
	cfg.JWT.Audience = fc.JWT.Audience
	setDuration(&cfg.JWT.AccessTTL, fc.JWT.AccessTTL)
	setDuration(&cfg.Refresh.TTL, fc.RefreshTTL)

	setDuration(&cfg.Session.TrustTTL, fc.Session.TrustTTL)
	setDuration(&cfg.Session.SuspiciousWindow, fc.Session.SuspiciousWindow)
	setDuration(&cfg.Throttle.LoginWindow, fc.Throttle.LoginWindow)
	setDuration(&cfg.Throttle.DownloadWindow, fc.Throttle.DownloadWindow)
	if fc.Throttle.LoginMaxFailures > 0 {
		cfg.Throttle.LoginMaxFailures = fc.Throttle.LoginMaxFailures
	}
	if fc.Throttle.DownloadThreshold > 0 {
		cfg.Throttle.DownloadThreshold = fc.Throttle.DownloadThreshold
	}
	setDuration(&cfg.CSRF.TTL, fc.CSRFTTL)
	setDuration(&cfg.Invite.TTL, fc.InviteTTL)
	setDuration(&cfg.Reset.TTL, fc.Reset.TTL)
	setDuration(&cfg.Reset.Window, fc.Reset.Window)
	if fc.Reset.MaxRequests > 0 {
		cfg.Reset.MaxRequests = fc.Reset.MaxRequests
	}
	cfg.Service.Token = fc.ServiceToken

	if fc.Maintenance.Enabled != nil {
		cfg.Maintenance.Enabled = *fc.Maintenance.Enabled
	}
	if fc.Maintenance.Schedule != "" {
		cfg.Maintenance.SweepSchedule = fc.Maintenance.Schedule
	}

	return cfg, cfg.Validate()
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func readKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return key, nil
}

func (fc fileConfig) logLevel() slog.Level {
	switch strings.ToLower(fc.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

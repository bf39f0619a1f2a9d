// Package config loads embedset CLI configuration from an optional YAML file
// and EMBEDSET_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Wait    WaitConfig    `yaml:"wait"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
}

// APIConfig locates the hosted API.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// WaitConfig holds job wait defaults.
type WaitConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"` // 0 waits indefinitely
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
}

// StorageConfig describes the S3-compatible bucket used for saves and
// s3:// part URLs.
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API:  APIConfig{BaseURL: "https://api.cohere.com/v1"},
		Wait: WaitConfig{Interval: 10 * time.Second},
		Log:  LogConfig{Format: "text", Level: "info"},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $EMBEDSET_CONFIG when path is empty), then environment overrides.
// A missing file is an error only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("EMBEDSET_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnv("EMBEDSET_API_URL", cfg.API.BaseURL)
	cfg.API.Token = getEnv("EMBEDSET_API_TOKEN", cfg.API.Token)

	cfg.Log.Format = getEnv("EMBEDSET_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getEnv("EMBEDSET_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("EMBEDSET_LOG_FILE", cfg.Log.File)

	cfg.Storage.Bucket = getEnv("EMBEDSET_S3_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = getEnv("EMBEDSET_S3_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.Region = getEnv("EMBEDSET_S3_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = getEnv("EMBEDSET_S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKeyID = getEnv("EMBEDSET_S3_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = getEnv("EMBEDSET_S3_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)

	var err error
	if cfg.Storage.UsePathStyle, err = getEnvBool("EMBEDSET_S3_USE_PATH_STYLE", cfg.Storage.UsePathStyle); err != nil {
		return err
	}
	if cfg.Wait.Interval, err = getEnvDuration("EMBEDSET_WAIT_INTERVAL", cfg.Wait.Interval); err != nil {
		return err
	}
	if cfg.Wait.Timeout, err = getEnvDuration("EMBEDSET_WAIT_TIMEOUT", cfg.Wait.Timeout); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LESIONCHECK_PREDICT_BASE_URL.
const EnvPrefix = "LESIONCHECK"

// Config holds the workflow service configuration.
type Config struct {
	ListenAddr      string         `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
	Predict         PredictConfig  `mapstructure:"predict"`
	Media           MediaConfig    `mapstructure:"media"`
	Fallback        FallbackConfig `mapstructure:"fallback"`
	Camera          CameraConfig   `mapstructure:"camera"`
	Cache           CacheConfig    `mapstructure:"cache"`
	Log             LogConfig      `mapstructure:"log"`
}

// PredictConfig points at the remote classification service.
type PredictConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MediaConfig bounds accepted uploads.
type MediaConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// FallbackConfig paces the demo result.
type FallbackConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// CameraConfig selects the snapshot camera. An empty SnapshotURL disables capture.
type CameraConfig struct {
	SnapshotURL string `mapstructure:"snapshot_url"`
	Facing      string `mapstructure:"facing"`
}

// CacheConfig enables the short lived Redis result cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig controls the zap level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional file and the environment.
// A .env file in the working directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("predict.base_url", "http://localhost:8000")
	v.SetDefault("predict.path", "/api/predict")
	v.SetDefault("predict.timeout", 30*time.Second)
	v.SetDefault("media.max_bytes", int64(8*1024*1024))
	v.SetDefault("fallback.delay", 2*time.Second)
	v.SetDefault("camera.snapshot_url", "")
	v.SetDefault("camera.facing", "environment")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("log.level", "info")
}

// Validate rejects settings the workflow cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Predict.BaseURL) == "" {
		errs = append(errs, errors.New("predict.base_url is required"))
	}
	if c.Predict.Timeout <= 0 {
		errs = append(errs, errors.New("predict.timeout must be positive"))
	}
	if c.Media.MaxBytes <= 0 {
		errs = append(errs, errors.New("media.max_bytes must be positive"))
	}
	if c.Fallback.Delay < 0 {
		errs = append(errs, errors.New("fallback.delay must not be negative"))
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive when the cache is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

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

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Detection DetectionConfig `mapstructure:"detection"`
	Cache     CacheConfig     `mapstructure:"cache"`
	SMS       SMSConfig       `mapstructure:"sms"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ProviderConfig struct {
	PrimaryURL    string        `mapstructure:"primary_url"`
	PrimaryAPIKey string        `mapstructure:"primary_api_key"`
	BackupURL     string        `mapstructure:"backup_url"`
	BackupAPIKey  string        `mapstructure:"backup_api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
}

type DetectionConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxBatchSize        int     `mapstructure:"max_batch_size"`
	DefaultConcurrency  int     `mapstructure:"default_concurrency"`
	MaxConcurrency      int     `mapstructure:"max_concurrency"`
}

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	EvictCount int           `mapstructure:"evict_count"`
}

type SMSConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Sender     string        `mapstructure:"sender"`
	Signature  string        `mapstructure:"signature"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=plate_alert port=5432 sslmode=disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("provider.primary_url", "https://serverless.roboflow.com/infer/workflows/axient/acdns")
	v.SetDefault("provider.primary_api_key", "")
	v.SetDefault("provider.backup_url", "")
	v.SetDefault("provider.backup_api_key", "")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.base_delay", time.Second)

	v.SetDefault("detection.similarity_threshold", 0.75)
	v.SetDefault("detection.confidence_threshold", 0.6)
	v.SetDefault("detection.max_batch_size", 20)
	v.SetDefault("detection.default_concurrency", 5)
	v.SetDefault("detection.max_concurrency", 10)

	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.evict_count", 20)

	v.SetDefault("sms.url", "https://sms.arkesel.com/api/v2/sms/send")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.sender", "PlateSys")
	v.SetDefault("sms.signature", "Acdnsys Security")
	v.SetDefault("sms.max_retries", 2)
	v.SetDefault("sms.retry_delay", time.Second)
}

// Load reads configuration from an optional file, a .env file and the environment.
// Environment keys use underscores for nesting, e.g. PROVIDER_PRIMARY_API_KEY.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Detection.SimilarityThreshold < 0 || c.Detection.SimilarityThreshold > 1 {
		return fmt.Errorf("detection.similarity_threshold must be within [0,1], got %v", c.Detection.SimilarityThreshold)
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold must be within [0,1], got %v", c.Detection.ConfidenceThreshold)
	}
	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be at least 1, got %d", c.Provider.MaxAttempts)
	}
	if c.Detection.MaxBatchSize < 1 {
		return fmt.Errorf("detection.max_batch_size must be at least 1, got %d", c.Detection.MaxBatchSize)
	}
	if c.Detection.DefaultConcurrency < 1 || c.Detection.MaxConcurrency < 1 {
		return errors.New("detection concurrency limits must be at least 1")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be at least 1, got %d", c.Cache.MaxEntries)
	}
	if c.SMS.MaxRetries < 0 {
		return fmt.Errorf("sms.max_retries must not be negative, got %d", c.SMS.MaxRetries)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env" mapstructure:"env"`
	Server struct {
		Port           string   `yaml:"port" mapstructure:"port"`
		ReadTimeout    string   `yaml:"read_timeout" mapstructure:"read_timeout"`
		WriteTimeout   string   `yaml:"write_timeout" mapstructure:"write_timeout"`
		AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	} `yaml:"server" mapstructure:"server"`
	Auth struct {
		// JWTSecret verifies HS256 tokens from the hosted auth provider. Env only.
		JWTSecret string `yaml:"-" mapstructure:"jwt_secret"`
		Issuer    string `yaml:"issuer" mapstructure:"issuer"`
	} `yaml:"auth" mapstructure:"auth"`
	Postgres struct {
		URL string `yaml:"url" mapstructure:"url"`
		// ReadonlyURL is a privileged role used only for leaderboard reads.
		ReadonlyURL string `yaml:"readonly_url" mapstructure:"readonly_url"`
	} `yaml:"postgres" mapstructure:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr" mapstructure:"addr"`
		Password string `yaml:"password" mapstructure:"password"`
		DB       int    `yaml:"db" mapstructure:"db"`
		TTL      string `yaml:"ttl" mapstructure:"ttl"`
	} `yaml:"redis" mapstructure:"redis"`
	LLM struct {
		BaseURL              string  `yaml:"base_url" mapstructure:"base_url"`
		APIKey               string  `yaml:"-" mapstructure:"api_key"`
		Model                string  `yaml:"model" mapstructure:"model"`
		Temperature          float64 `yaml:"temperature" mapstructure:"temperature"`
		Timeout              string  `yaml:"timeout" mapstructure:"timeout"`
		Retries              int     `yaml:"retries" mapstructure:"retries"`
		GenerationsPerMinute int     `yaml:"generations_per_minute" mapstructure:"generations_per_minute"`
	} `yaml:"llm" mapstructure:"llm"`
	Content struct {
		CacheTTL          string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
		LeaderboardTTL    string `yaml:"leaderboard_ttl" mapstructure:"leaderboard_ttl"`
		LeaseTTL          string `yaml:"lease_ttl" mapstructure:"lease_ttl"`
		AllowDateOverride bool   `yaml:"allow_date_override" mapstructure:"allow_date_override"`
		Timezone          string `yaml:"timezone" mapstructure:"timezone"`
		WarmCron          string `yaml:"warm_cron" mapstructure:"warm_cron"`
	} `yaml:"content" mapstructure:"content"`
	Authored struct {
		Dir string `yaml:"dir" mapstructure:"dir"`
		S3  struct {
			Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
			AccessKey string `yaml:"access_key" mapstructure:"access_key"`
			SecretKey string `yaml:"-" mapstructure:"secret_key"`
			Bucket    string `yaml:"bucket" mapstructure:"bucket"`
			Prefix    string `yaml:"prefix" mapstructure:"prefix"`
			UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
		} `yaml:"s3" mapstructure:"s3"`
	} `yaml:"authored" mapstructure:"authored"`
	AMQP struct {
		URL   string `yaml:"-" mapstructure:"url"`
		Queue string `yaml:"queue" mapstructure:"queue"`
	} `yaml:"amqp" mapstructure:"amqp"`
	Game struct {
		HintDebounce   string              `yaml:"hint_debounce" mapstructure:"hint_debounce"`
		AnswerVariants map[string][]string `yaml:"answer_variants" mapstructure:"-"`
	} `yaml:"game" mapstructure:"game"`
	Log struct {
		Level string `yaml:"level" mapstructure:"level"`
	} `yaml:"log" mapstructure:"log"`
}

// envKeys are the settings that FANFRENZY_<KEY> variables may override,
// with dots replaced by underscores (server.port -> FANFRENZY_SERVER_PORT).
var envKeys = []string{
	"env",
	"server.port", "server.read_timeout", "server.write_timeout", "server.allowed_origins",
	"auth.jwt_secret", "auth.issuer",
	"postgres.url", "postgres.readonly_url",
	"redis.addr", "redis.password", "redis.db", "redis.ttl",
	"llm.base_url", "llm.api_key", "llm.model", "llm.timeout", "llm.retries", "llm.generations_per_minute",
	"content.cache_ttl", "content.leaderboard_ttl", "content.allow_date_override", "content.timezone", "content.warm_cron",
	"authored.dir", "authored.s3.endpoint", "authored.s3.access_key", "authored.s3.secret_key",
	"authored.s3.bucket", "authored.s3.prefix", "authored.s3.use_ssl",
	"amqp.url", "amqp.queue",
	"game.hint_debounce",
	"log.level",
}

// Load reads YAML config from path, then loads an optional .env file and
// applies FANFRENZY_* environment overrides. Secrets only come from the
// environment.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("apply env overrides: %w", err)
	}
	return cfg, nil
}

// applyEnv decodes only the variables that are set, so unset keys keep
// their YAML values.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("FANFRENZY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return v.Unmarshal(cfg)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Location resolves the content timezone, defaulting to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Content.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Content.Timezone)
}

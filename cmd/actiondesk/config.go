package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces every environment override, e.g. ACTIONDESK_LLM_API_KEY.
const envPrefix = "ACTIONDESK"

// Config holds all actiondesk server configuration.
// Priority: flags > env vars > .env > config file > defaults.
type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	DBPath          string        `mapstructure:"db_path" validate:"required"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=text json"`
	Timezone        string        `mapstructure:"timezone" validate:"required"`
	ExecutorTimeout time.Duration `mapstructure:"executor_timeout" validate:"min=1s"`

	LLM         LLMConfig         `mapstructure:"llm"`
	Detection   DetectionConfig   `mapstructure:"detection"`
	Google      GoogleConfig      `mapstructure:"google"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Files       FilesConfig       `mapstructure:"files"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Events      EventsConfig      `mapstructure:"events"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Invoice     InvoiceConfig     `mapstructure:"invoice"`
}

// LLMConfig selects the chat model. An empty provider runs without a model.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" validate:"omitempty,oneof=openai ollama anthropic gemini"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	ChatTemperature float32       `mapstructure:"chat_temperature" validate:"min=0,max=2"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=1s"`
}

type DetectionConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=lexical llm"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" validate:"omitempty,url"`
	CalendarID   string `mapstructure:"calendar_id"`
}

type StripeConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	SuccessURL string `mapstructure:"success_url" validate:"omitempty,url"`
	CancelURL  string `mapstructure:"cancel_url" validate:"omitempty,url"`
	// PaymentMethods maps a lowercase currency to checkout payment method types.
	PaymentMethods map[string][]string `mapstructure:"payment_methods"`
}

type FilesConfig struct {
	Backend string   `mapstructure:"backend" validate:"oneof=local s3"`
	Dir     string   `mapstructure:"dir" validate:"required_if=Backend local"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type CredentialsConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=vault file redis"`
	MasterKey  string `mapstructure:"master_key" validate:"required_without=Passphrase"`
	Passphrase string `mapstructure:"passphrase"`
	Salt       string `mapstructure:"salt" validate:"required_with=Passphrase"`
	Dir        string `mapstructure:"dir" validate:"required_if=Backend file"`
	RedisAddr  string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB    int    `mapstructure:"redis_db" validate:"min=0"`
}

type RefreshConfig struct {
	Schedule string        `mapstructure:"schedule" validate:"required"`
	Window   time.Duration `mapstructure:"window" validate:"min=1m"`
}

// EventsConfig controls how long status updates are kept for replay.
type EventsConfig struct {
	Retention     time.Duration `mapstructure:"retention" validate:"min=1h"`
	PruneSchedule string        `mapstructure:"prune_schedule" validate:"required"`
}

type AuthConfig struct {
	StateSecret string        `mapstructure:"state_secret" validate:"required,min=16"`
	StateTTL    time.Duration `mapstructure:"state_ttl" validate:"min=1m"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"min=0"`
	Burst int     `mapstructure:"burst" validate:"min=0"`
}

type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold" validate:"min=1"`
	Cooldown  time.Duration `mapstructure:"cooldown" validate:"min=1s"`
}

// InvoiceConfig is the business printed on generated invoices.
type InvoiceConfig struct {
	IssuerName    string `mapstructure:"issuer_name"`
	IssuerEmail   string `mapstructure:"issuer_email" validate:"omitempty,email"`
	IssuerAddress string `mapstructure:"issuer_address"`
	Terms         string `mapstructure:"terms"`
}

func actiondeskDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".actiondesk"
	}
	return filepath.Join(home, ".actiondesk")
}

func setDefaults(v *viper.Viper) {
	dir := actiondeskDir()
	defaults := map[string]any{
		"listen_addr":      ":4100",
		"base_url":         "",
		"db_path":          filepath.Join(dir, "actiondesk.db"),
		"log_level":        "info",
		"log_format":       "text",
		"timezone":         "Asia/Kuala_Lumpur",
		"executor_timeout": 30 * time.Second,

		"llm.provider":         "",
		"llm.model":            "",
		"llm.api_key":          "",
		"llm.base_url":         "",
		"llm.chat_temperature": 0.7,
		"llm.timeout":          45 * time.Second,

		"detection.mode": "lexical",

		"google.client_id":     "",
		"google.client_secret": "",
		"google.redirect_url":  "",
		"google.calendar_id":   "primary",

		"stripe.secret_key":  "",
		"stripe.success_url": "",
		"stripe.cancel_url":  "",

		"files.backend":              "local",
		"files.dir":                  filepath.Join(dir, "files"),
		"files.s3.bucket":            "",
		"files.s3.region":            "",
		"files.s3.endpoint":          "",
		"files.s3.prefix":            "invoices/",
		"files.s3.access_key_id":     "",
		"files.s3.secret_access_key": "",

		"credentials.backend":    "vault",
		"credentials.master_key": "",
		"credentials.passphrase": "",
		"credentials.salt":       "",
		"credentials.dir":        filepath.Join(dir, "credentials"),
		"credentials.redis_addr": "",
		"credentials.redis_db":   0,

		"refresh.schedule": "*/10 * * * *",
		"refresh.window":   15 * time.Minute,

		"events.retention":      7 * 24 * time.Hour,
		"events.prune_schedule": "30 3 * * *",

		"auth.state_secret": "",
		"auth.state_ttl":    10 * time.Minute,

		"rate_limit.rps":   2.0,
		"rate_limit.burst": 5,

		"breaker.threshold": 5,
		"breaker.cooldown":  time.Minute,

		"invoice.issuer_name":    "",
		"invoice.issuer_email":   "",
		"invoice.issuer_address": "",
		"invoice.terms":          "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// loadConfig layers defaults, the optional config file, .env and the
// environment into v and returns the validated result. An empty path
// searches the working directory and ~/.actiondesk for actiondesk.{yaml,json,toml}.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	_ = godotenv.Load()

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("actiondesk")
		v.AddConfigPath(".")
		v.AddConfigPath(actiondeskDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return decodeConfig(v)
}

// decodeConfig unmarshals and validates the current state of v.
func decodeConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Detection.Mode = strings.ToLower(strings.TrimSpace(c.Detection.Mode))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	// Derive base_url from listen_addr if empty.
	if c.BaseURL == "" {
		host := c.ListenAddr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.BaseURL = "http://" + host
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = strings.TrimRight(c.BaseURL, "/") + "/auth/google/callback"
	}
}

func (c Config) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Files.Backend == "s3" && c.Files.S3.Bucket == "" {
		return errors.New("invalid config: files.s3.bucket is required for the s3 backend")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged  bool
	DetectionChanged bool
	RestartNeeded    []string // keys that require a server restart
}

func (d configDiff) empty() bool {
	return !d.LogLevelChanged && !d.DetectionChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.Detection.Mode != new.Detection.Mode {
		d.DetectionChanged = true
	}

	restart := map[string]bool{
		"listen_addr":      old.ListenAddr != new.ListenAddr,
		"base_url":         old.BaseURL != new.BaseURL,
		"db_path":          old.DBPath != new.DBPath,
		"log_format":       old.LogFormat != new.LogFormat,
		"timezone":         old.Timezone != new.Timezone,
		"executor_timeout": old.ExecutorTimeout != new.ExecutorTimeout,
		"llm":              old.LLM != new.LLM,
		"google":           old.Google != new.Google,
		"stripe":           !stripeEqual(old.Stripe, new.Stripe),
		"files":            old.Files != new.Files,
		"credentials":      old.Credentials != new.Credentials,
		"refresh":          old.Refresh != new.Refresh,
		"events":           old.Events != new.Events,
		"auth":             old.Auth != new.Auth,
		"rate_limit":       old.RateLimit != new.RateLimit,
		"breaker":          old.Breaker != new.Breaker,
		"invoice":          old.Invoice != new.Invoice,
	}
	for key, changed := range restart {
		if changed {
			d.RestartNeeded = append(d.RestartNeeded, key)
		}
	}
	sort.Strings(d.RestartNeeded)
	return d
}

func stripeEqual(a, b StripeConfig) bool {
	if a.SecretKey != b.SecretKey || a.SuccessURL != b.SuccessURL || a.CancelURL != b.CancelURL {
		return false
	}
	if len(a.PaymentMethods) != len(b.PaymentMethods) {
		return false
	}
	for cur, methods := range a.PaymentMethods {
		other, ok := b.PaymentMethods[cur]
		if !ok || strings.Join(methods, ",") != strings.Join(other, ",") {
			return false
		}
	}
	return true
}

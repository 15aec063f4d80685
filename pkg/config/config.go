package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config gathers every tunable policy of the security pipeline. The
// thresholds are deliberately configuration rather than constants so
// integrators can tighten or relax them without code changes.
type Config struct {
	LogLevel   string                     `mapstructure:"log_level"`
	RateLimits map[string]RateLimitPolicy `mapstructure:"rate_limits"`
	Bot        BotPolicy                  `mapstructure:"bot"`
	Email      EmailPolicy                `mapstructure:"email"`
	IP         IPPolicy                   `mapstructure:"ip"`
	Threat     ThreatPolicy               `mapstructure:"threat"`
	Captcha    CaptchaPolicy              `mapstructure:"captcha"`
	Redis      RedisConfig                `mapstructure:"redis"`
	Database   DatabaseConfig             `mapstructure:"database"`
}

// RateLimitPolicy is the per-action attempt budget.
type RateLimitPolicy struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

type BotPolicy struct {
	Threshold          float64       `mapstructure:"threshold"`
	MinInteractionTime time.Duration `mapstructure:"min_interaction_time"`
	MaxTypingSpeed     float64       `mapstructure:"max_typing_speed"`
}

type EmailPolicy struct {
	DenyBelow   float64 `mapstructure:"deny_below"`
	VerifyBelow float64 `mapstructure:"verify_below"`
}

type IPPolicy struct {
	DenyReputationBelow    int           `mapstructure:"deny_reputation_below"`
	VPNConfidenceFactor    float64       `mapstructure:"vpn_confidence_factor"`
	MediumConfidenceFactor float64       `mapstructure:"medium_confidence_factor"`
	CacheTTL               time.Duration `mapstructure:"cache_ttl"`
}

type ThreatPolicy struct {
	DenyAbove         int           `mapstructure:"deny_above"`
	CaptchaAbove      int           `mapstructure:"captcha_above"`
	SurfaceRisksAbove int           `mapstructure:"surface_risks_above"`
	RetentionWindow   time.Duration `mapstructure:"retention_window"`
	AnalysisWindow    time.Duration `mapstructure:"analysis_window"`
	MaxEventsPerIP    int           `mapstructure:"max_events_per_ip"`
}

type CaptchaPolicy struct {
	AnswerTTL time.Duration `mapstructure:"answer_ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Load reads authguard.yaml from configPath (falling back to ./config
// and the working directory) merged with environment variables. A
// missing config file is not an error: defaults plus environment are
// enough to run.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("authguard")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("authguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file authguard.yaml: %w", err)
		}
	}

	cfg := Default()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the reference policy set. The rate-limit table is
// intentionally asymmetric: signup abuse is costlier to clean up than
// login abuse, so it blocks longer on a smaller budget.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		RateLimits: map[string]RateLimitPolicy{
			"login": {
				MaxAttempts:   5,
				Window:        15 * time.Minute,
				BlockDuration: time.Hour,
			},
			"signup": {
				MaxAttempts:   3,
				Window:        time.Hour,
				BlockDuration: 24 * time.Hour,
			},
			"password_reset": {
				MaxAttempts:   3,
				Window:        time.Hour,
				BlockDuration: 2 * time.Hour,
			},
		},
		Bot: BotPolicy{
			Threshold:          0.6,
			MinInteractionTime: 2 * time.Second,
			MaxTypingSpeed:     10,
		},
		Email: EmailPolicy{
			DenyBelow:   0.3,
			VerifyBelow: 0.7,
		},
		IP: IPPolicy{
			DenyReputationBelow:    30,
			VPNConfidenceFactor:    0.7,
			MediumConfidenceFactor: 0.8,
			CacheTTL:               time.Hour,
		},
		Threat: ThreatPolicy{
			DenyAbove:         80,
			CaptchaAbove:      60,
			SurfaceRisksAbove: 30,
			RetentionWindow:   24 * time.Hour,
			AnalysisWindow:    time.Hour,
			MaxEventsPerIP:    1000,
		},
		Captcha: CaptchaPolicy{
			AnswerTTL: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
	}
}

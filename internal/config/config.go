package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv        string `mapstructure:"app_env"`
	AppName       string `mapstructure:"app_name"`
	Port          string `mapstructure:"port"`
	LogLevel      string `mapstructure:"log_level"`
	DatabaseURL   string `mapstructure:"database_url"`
	SessionSecret string `mapstructure:"session_secret"`

	Redis   RedisConfig   `mapstructure:"redis"`
	Economy EconomyConfig `mapstructure:"economy"`
	Bots    BotsConfig    `mapstructure:"bots"`
}

// RedisConfig 为空 Addr 时 bot 引擎使用进程内锁
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// EconomyConfig holds the provisioning values for the treasury and
// economy settings singletons. They only apply when the rows are first created.
type EconomyConfig struct {
	TreasuryBalance     int64 `mapstructure:"treasury_balance"`
	DailyCap            int64 `mapstructure:"daily_cap"`
	AggressionLevel     int   `mapstructure:"aggression_level"`
	WalletCap           int64 `mapstructure:"wallet_cap"`
	BotPurchasesEnabled bool  `mapstructure:"bot_purchases_enabled"`
}

type BotsConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	NewContentWindow  time.Duration `mapstructure:"new_content_window"`
	PriceCeiling      int64         `mapstructure:"price_ceiling"`
	LikeReward        int64         `mapstructure:"like_reward"`
	FollowReward      int64         `mapstructure:"follow_reward"`
	MaxLikesPerThread int           `mapstructure:"max_likes_per_thread"`
	FollowerCeiling   int64         `mapstructure:"follower_ceiling"`
	RefundHour        int           `mapstructure:"refund_hour"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("app_name", "yoforex")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "host=localhost user=postgres password=postgres dbname=yoforex port=5432 sslmode=disable")
	v.SetDefault("session_secret", "secret_key_change_me")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 9*time.Minute)

	v.SetDefault("economy.treasury_balance", 100000)
	v.SetDefault("economy.daily_cap", 5000)
	v.SetDefault("economy.aggression_level", 5)
	v.SetDefault("economy.wallet_cap", 10000)
	v.SetDefault("economy.bot_purchases_enabled", false)

	v.SetDefault("bots.tick_interval", 10*time.Minute)
	v.SetDefault("bots.new_content_window", 30*time.Minute)
	v.SetDefault("bots.price_ceiling", 100)
	v.SetDefault("bots.like_reward", 1)
	v.SetDefault("bots.follow_reward", 1)
	v.SetDefault("bots.max_likes_per_thread", 3)
	v.SetDefault("bots.follower_ceiling", 50)
	v.SetDefault("bots.refund_hour", 3)
}

// Load reads .env (if present) and environment variables.
// Nested keys map to env vars with "_" in place of ".", e.g. ECONOMY_DAILY_CAP.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("no .env file found, reading env vars from system")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

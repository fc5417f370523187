package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cron       CronConfig       `mapstructure:"cron"`
	Odds       OddsConfig       `mapstructure:"odds"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	PriceFeed  PriceFeedConfig  `mapstructure:"price_feed"`
	Referral   ReferralConfig   `mapstructure:"referral"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DeadlineSweep string `mapstructure:"deadline_sweep"`
	Reconcile     string `mapstructure:"reconcile"`
}

type OddsConfig struct {
	MaxOdds      float64 `mapstructure:"max_odds"`
	FallbackOdds float64 `mapstructure:"fallback_odds"`
}

type SettlementConfig struct {
	// FlatBandPct is the relative band around the start price that
	// settles three-outcome price markets FLAT.
	FlatBandPct float64 `mapstructure:"flat_band_pct"`
}

type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	Concurrency   int           `mapstructure:"concurrency"`
	MarketTimeout time.Duration `mapstructure:"market_timeout"`
}

type PriceFeedConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReferralConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	NewUserBonus float64 `mapstructure:"new_user_bonus"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.deadline_sweep", "@every 1m")
	v.SetDefault("cron.reconcile", "@every 6h")
	v.SetDefault("odds.max_odds", 100)
	v.SetDefault("odds.fallback_odds", 2)
	v.SetDefault("settlement.flat_band_pct", 0)
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.concurrency", 4)
	v.SetDefault("monitor.market_timeout", "30s")
	v.SetDefault("price_feed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price_feed.timeout", "15s")
	v.SetDefault("price_feed.cache_ttl", "30s")
	v.SetDefault("referral.enabled", true)
	v.SetDefault("referral.new_user_bonus", 1)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

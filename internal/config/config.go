package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Economy EconomyConfig `mapstructure:"economy"`
	DupGate DupGateConfig `mapstructure:"dupgate"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// AuthHeader names the gateway-injected identity header.
	AuthHeader   string `mapstructure:"auth_header"`
	AuthRequired bool   `mapstructure:"auth_required"`
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

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ShieldSweep string `mapstructure:"shield_sweep"`
	LedgerAudit string `mapstructure:"ledger_audit"`
}

// EconomyConfig carries every injectable economic parameter: the price curve,
// the split of a steal price, the shield presets, and the lock window.
// The engine guarantees invariants (monotonic price, split sums to price),
// not specific numbers.
type EconomyConfig struct {
	Pricing PricingConfig `mapstructure:"pricing"`
	Split   SplitConfig   `mapstructure:"split"`
	Shields ShieldConfig  `mapstructure:"shields"`

	LockDuration   time.Duration `mapstructure:"lock_duration"`
	CreationCost   float64       `mapstructure:"creation_cost"`
	PlatformSeed   float64       `mapstructure:"platform_seed"`
	ReimburseOnWin bool          `mapstructure:"reimburse_creator"`
	StealTimeout   time.Duration `mapstructure:"steal_timeout"`
}

type PricingConfig struct {
	// Curve is "linear" or "multiplicative".
	Curve      string  `mapstructure:"curve"`
	BasePrice  float64 `mapstructure:"base_price"`
	Increment  float64 `mapstructure:"increment"`
	GrowthRate float64 `mapstructure:"growth_rate"`
	Ceiling    float64 `mapstructure:"ceiling"`
}

// SplitConfig percentages must sum to 100; Normalize rescales if they do not.
type SplitConfig struct {
	VictimPct   float64 `mapstructure:"victim_pct"`
	PoolPct     float64 `mapstructure:"pool_pct"`
	PlatformPct float64 `mapstructure:"platform_pct"`
}

type ShieldConfig struct {
	// Presets maps a preset name (e.g. "1h", "24h") to its duration.
	Presets map[string]time.Duration `mapstructure:"presets"`
	// PriceFactor is the shield price as a fraction of the current steal price
	// per hour of protection.
	PriceFactor float64 `mapstructure:"price_factor"`
	MinPrice    float64 `mapstructure:"min_price"`
}

type DupGateConfig struct {
	BlockThreshold int           `mapstructure:"block_threshold"`
	WarnThreshold  int           `mapstructure:"warn_threshold"`
	MinTitleLength int           `mapstructure:"min_title_length"`
	CandidateLimit int           `mapstructure:"candidate_limit"`
	RecentWindow   time.Duration `mapstructure:"recent_window"`
}

type StreamConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	SubscriberBuf int  `mapstructure:"subscriber_buf"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_header", "X-User-ID")
	v.SetDefault("server.auth_required", false)
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
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.shield_sweep", "@every 1m")
	v.SetDefault("cron.ledger_audit", "@every 6h")

	v.SetDefault("economy.pricing.curve", "multiplicative")
	v.SetDefault("economy.pricing.base_price", 100)
	v.SetDefault("economy.pricing.increment", 50)
	v.SetDefault("economy.pricing.growth_rate", 1.5)
	v.SetDefault("economy.pricing.ceiling", 1000000)
	v.SetDefault("economy.split.victim_pct", 60)
	v.SetDefault("economy.split.pool_pct", 30)
	v.SetDefault("economy.split.platform_pct", 10)
	v.SetDefault("economy.shields.presets", map[string]time.Duration{
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"24h": 24 * time.Hour,
	})
	v.SetDefault("economy.shields.price_factor", 0.1)
	v.SetDefault("economy.shields.min_price", 10)
	v.SetDefault("economy.lock_duration", "15m")
	v.SetDefault("economy.creation_cost", 100)
	v.SetDefault("economy.platform_seed", 50)
	v.SetDefault("economy.reimburse_creator", true)
	v.SetDefault("economy.steal_timeout", "5s")

	v.SetDefault("dupgate.block_threshold", 70)
	v.SetDefault("dupgate.warn_threshold", 60)
	v.SetDefault("dupgate.min_title_length", 10)
	v.SetDefault("dupgate.candidate_limit", 200)
	v.SetDefault("dupgate.recent_window", "720h")

	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.subscriber_buf", 32)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Economy.Normalize()
	cfg.DupGate.Normalize()
	return cfg, nil
}

// Normalize clamps economic parameters into the range where the engine's
// invariants hold: a positive price floor, a non-shrinking curve, and a split
// that sums to 100.
func (c *EconomyConfig) Normalize() {
	if c.Pricing.BasePrice <= 0 {
		c.Pricing.BasePrice = 1
	}
	if c.Pricing.Increment < 0 {
		c.Pricing.Increment = 0
	}
	if c.Pricing.GrowthRate < 1 {
		c.Pricing.GrowthRate = 1
	}
	if c.Pricing.Ceiling < c.Pricing.BasePrice {
		c.Pricing.Ceiling = c.Pricing.BasePrice
	}
	if c.Pricing.Curve != "linear" && c.Pricing.Curve != "multiplicative" {
		c.Pricing.Curve = "linear"
	}
	total := c.Split.VictimPct + c.Split.PoolPct + c.Split.PlatformPct
	if total <= 0 {
		c.Split = SplitConfig{VictimPct: 60, PoolPct: 30, PlatformPct: 10}
	} else if total != 100 {
		scale := 100 / total
		c.Split.VictimPct *= scale
		c.Split.PoolPct *= scale
		c.Split.PlatformPct *= scale
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
	if c.StealTimeout <= 0 {
		c.StealTimeout = 5 * time.Second
	}
	if c.Shields.PriceFactor <= 0 {
		c.Shields.PriceFactor = 0.1
	}
	if len(c.Shields.Presets) == 0 {
		c.Shields.Presets = map[string]time.Duration{
			"1h":  time.Hour,
			"6h":  6 * time.Hour,
			"24h": 24 * time.Hour,
		}
	}
}

func (c *DupGateConfig) Normalize() {
	if c.BlockThreshold <= 0 || c.BlockThreshold > 100 {
		c.BlockThreshold = 70
	}
	if c.WarnThreshold <= 0 || c.WarnThreshold > c.BlockThreshold {
		c.WarnThreshold = c.BlockThreshold - 10
	}
	if c.MinTitleLength <= 0 {
		c.MinTitleLength = 10
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 200
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 30 * 24 * time.Hour
	}
}

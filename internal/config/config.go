package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	BusLocal = "local"
	BusRedis = "redis"
	BusNATS  = "nats"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"

	SlowKick = "kick"
	SlowDrop = "drop"
)

type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type BusConfig struct {
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type PresenceConfig struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Config struct {
	Mode           string         `mapstructure:"mode"`
	LogLevel       string         `mapstructure:"log_level"`
	Port           int            `mapstructure:"port"`
	PublicBaseURL  string         `mapstructure:"public_base_url"`
	RoomTTLMinutes int            `mapstructure:"room_ttl_minutes"`
	StaticPath     string         `mapstructure:"static_path"`
	ReadLimit      int64          `mapstructure:"read_limit"`
	PingPeriod     time.Duration  `mapstructure:"ping_period"`
	SendBuffer     int            `mapstructure:"send_buffer"`
	SlowConsumer   string         `mapstructure:"slow_consumer"`
	Secret         string         `mapstructure:"secret"`
	SweepInterval  time.Duration  `mapstructure:"sweep_interval"`
	JoinLimit      int            `mapstructure:"join_limit"`
	JoinWindow     time.Duration  `mapstructure:"join_window"`
	CreateRate     float64        `mapstructure:"create_rate"`
	CreateBurst    int            `mapstructure:"create_burst"`
	TrustedProxies []string       `mapstructure:"trusted_proxies"`
	Store          StoreConfig    `mapstructure:"store"`
	Bus            BusConfig      `mapstructure:"bus"`
	Presence       PresenceConfig `mapstructure:"presence"`
}

func (c *Config) RoomTTL() time.Duration {
	return time.Duration(c.RoomTTLMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("public_base_url", "")
	v.SetDefault("room_ttl_minutes", 120)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer", SlowKick)
	v.SetDefault("secret", "")
	v.SetDefault("sweep_interval", "10m")
	v.SetDefault("join_limit", 5)
	v.SetDefault("join_window", "10s")
	v.SetDefault("create_rate", 0)
	v.SetDefault("create_burst", 10)
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.key_prefix", "locshare:room:")
	v.SetDefault("bus.driver", BusLocal)
	v.SetDefault("bus.redis_addr", "localhost:6379")
	v.SetDefault("bus.nats_url", "nats://localhost:4222")
	v.SetDefault("bus.subject_prefix", "locshare.room.")
	v.SetDefault("presence.driver", PresenceMemory)
	v.SetDefault("presence.redis_addr", "localhost:6379")
	v.SetDefault("presence.key_prefix", "locshare:members:")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then lets the
// environment override any key (PORT, ROOM_TTL_MINUTES, STORE_DRIVER, ...).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("room_ttl_minutes", cfg.RoomTTLMinutes).
		Str("store", cfg.Store.Driver).Str("bus", cfg.Bus.Driver).Str("presence", cfg.Presence.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) finish() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RoomTTLMinutes <= 0 {
		return fmt.Errorf("room_ttl_minutes must be positive, got %d", c.RoomTTLMinutes)
	}
	if c.JoinLimit <= 0 || c.JoinWindow <= 0 {
		return errors.New("join_limit and join_window must be positive")
	}
	if c.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	switch c.SlowConsumer {
	case SlowKick, SlowDrop:
	default:
		return fmt.Errorf("unknown slow_consumer policy %q", c.SlowConsumer)
	}
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Bus.Driver {
	case BusLocal, BusRedis, BusNATS:
	default:
		return fmt.Errorf("unknown bus driver %q", c.Bus.Driver)
	}
	switch c.Presence.Driver {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("unknown presence driver %q", c.Presence.Driver)
	}
	if c.Bus.Driver != BusLocal && c.Presence.Driver == PresenceMemory {
		// room_info would only count this process's members
		return fmt.Errorf("bus driver %q needs presence driver %q", c.Bus.Driver, PresenceRedis)
	}

	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.Secret == "" {
		// sessions do not survive a restart without a configured secret
		log.Warn().Str("module", "config").Msg("no secret configured, generating one")
		c.Secret = uuid.NewString()
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ReviewConfig holds the peer-review thresholds for quest submissions.
type ReviewConfig struct {
	ApprovalThreshold float64 `mapstructure:"approval_threshold" json:"approval_threshold"`
	QuorumRatio       float64 `mapstructure:"quorum_ratio" json:"quorum_ratio"`
	AllowSelfRating   bool    `mapstructure:"allow_self_rating" json:"allow_self_rating"`
}

// QuestConfig holds the points awarded per quest difficulty.
type QuestConfig struct {
	Points struct {
		Easy   int `mapstructure:"easy" json:"easy"`
		Medium int `mapstructure:"medium" json:"medium"`
		Hard   int `mapstructure:"hard" json:"hard"`
	} `mapstructure:"points" json:"points"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

type Config struct {
	Server struct {
		Host            string `mapstructure:"host" json:"host"`
		Port            int    `mapstructure:"port" json:"port"`
		Subpath         string `mapstructure:"subpath" json:"subpath"`
		JWTSecret       string `mapstructure:"jwtSecret" json:"-"`
		ReadTimeoutSec  int    `mapstructure:"read_timeout_sec" json:"read_timeout_sec"`
		WriteTimeoutSec int    `mapstructure:"write_timeout_sec" json:"write_timeout_sec"`
	} `mapstructure:"server" json:"server"`
	Postgres struct {
		DSN string `mapstructure:"dsn" json:"-"`
	} `mapstructure:"postgres" json:"-"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled" json:"enabled"`
		Addr     string `mapstructure:"addr" json:"addr"`
		Password string `mapstructure:"password" json:"-"`
		DB       int    `mapstructure:"db" json:"db"`
	} `mapstructure:"redis" json:"redis"`
	Log    LogConfig    `mapstructure:"log" json:"log"`
	Review ReviewConfig `mapstructure:"review" json:"review"`
	Quests QuestConfig  `mapstructure:"quests" json:"quests"`
	Guilds struct {
		DefaultMemberLimit int `mapstructure:"default_member_limit" json:"default_member_limit"`
	} `mapstructure:"guilds" json:"guilds"`
	Chat struct {
		HistoryLimit    int `mapstructure:"history_limit" json:"history_limit"`
		MaxMessageChars int `mapstructure:"max_message_chars" json:"max_message_chars"`
	} `mapstructure:"chat" json:"chat"`
}

// EnvPrefix is the prefix for environment overrides, e.g. GUILDQUEST_SERVER_PORT.
const EnvPrefix = "GUILDQUEST"

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.subpath", "")
	v.SetDefault("server.jwtSecret", "")
	v.SetDefault("server.read_timeout_sec", 15)
	v.SetDefault("server.write_timeout_sec", 15)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("review.approval_threshold", 80.0)
	v.SetDefault("review.quorum_ratio", 0.5)
	v.SetDefault("review.allow_self_rating", false)
	v.SetDefault("quests.points.easy", 10)
	v.SetDefault("quests.points.medium", 25)
	v.SetDefault("quests.points.hard", 50)
	v.SetDefault("guilds.default_member_limit", 50)
	v.SetDefault("chat.history_limit", 100)
	v.SetDefault("chat.max_message_chars", 2000)
}

// Default returns a Config populated only with defaults. Handy for tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// LoadConfig reads the config file plus GUILDQUEST_* env overrides (singleton).
// An empty path skips the file and uses defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		v := viper.New()
		setDefaults(v)
		if path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				var parseErr viper.ConfigParseError
				if errors.As(err, &parseErr) {
					cfgErr = fmt.Errorf("invalid config format: %w", err)
					return
				}
				cfgErr = fmt.Errorf("failed to read config file: %w", err)
				return
			}
		}
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		var c Config
		if err := v.Unmarshal(&c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		if err := validate(&c); err != nil {
			cfgErr = err
			return
		}
		cfg = &c
	})
	return cfg, cfgErr
}

func validate(c *Config) error {
	if c.Server.JWTSecret == "" {
		return errors.New("jwtSecret must be set in config")
	}
	if c.Review.ApprovalThreshold <= 0 || c.Review.ApprovalThreshold > 100 {
		return fmt.Errorf("review.approval_threshold must be in (0, 100], got %v", c.Review.ApprovalThreshold)
	}
	if c.Review.QuorumRatio <= 0 || c.Review.QuorumRatio > 1 {
		return fmt.Errorf("review.quorum_ratio must be in (0, 1], got %v", c.Review.QuorumRatio)
	}
	p := c.Quests.Points
	if p.Easy <= 0 || p.Medium <= 0 || p.Hard <= 0 {
		return errors.New("quests.points must be positive for every difficulty")
	}
	if c.Guilds.DefaultMemberLimit < 1 {
		return errors.New("guilds.default_member_limit must be at least 1")
	}
	return nil
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}

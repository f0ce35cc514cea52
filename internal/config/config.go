package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config serves both binaries: the top-level keys configure the relay,
// Phone configures the softphone.
type Config struct {
	Mode       string        `mapstructure:"mode" yaml:"mode"`
	Port       int           `mapstructure:"port" yaml:"port"`
	ReadLimit  int64         `mapstructure:"read_limit" yaml:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period" yaml:"ping_period"`
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	// SecureCookies marks session cookies Secure. Enable only behind TLS.
	SecureCookies bool `mapstructure:"secure_cookies" yaml:"secure_cookies"`
	SendBuffer int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst" yaml:"rate_burst"`

	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Phone PhoneConfig `mapstructure:"phone" yaml:"phone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
	// File enables rotated file output next to stderr.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type PhoneConfig struct {
	RelayURL    string `mapstructure:"relay_url" yaml:"relay_url"`
	IdentityURL string `mapstructure:"identity_url" yaml:"identity_url"`
	// UserID and Name skip the identity endpoint when both are set. With
	// only UserID the relay answers with its default name.
	UserID          string        `mapstructure:"user_id" yaml:"user_id"`
	Name            string        `mapstructure:"name" yaml:"name"`
	ICEServers      []string      `mapstructure:"ice_servers" yaml:"ice_servers"`
	RingTimeout     time.Duration `mapstructure:"ring_timeout" yaml:"ring_timeout"`
	TickInterval    time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	RecordingsDir   string        `mapstructure:"recordings_dir" yaml:"recordings_dir"`
	SaveRemoteAudio bool          `mapstructure:"save_remote_audio" yaml:"save_remote_audio"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, then LIVECALL_* environment
// variables, then flags. Missing files fall back to defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("LIVECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "livecall-dev-secret")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_burst", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", false)

	v.SetDefault("phone.relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("phone.identity_url", "http://localhost:8080/api/identity")
	v.SetDefault("phone.user_id", "")
	v.SetDefault("phone.name", "")
	v.SetDefault("phone.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("phone.ring_timeout", "45s")
	v.SetDefault("phone.tick_interval", "1s")
	v.SetDefault("phone.recordings_dir", "./recordings")
	v.SetDefault("phone.save_remote_audio", false)
	v.SetDefault("phone.reconnect_delay", "2s")
}

// Dump renders cfg as YAML with the secret masked.
func Dump(cfg *Config) string {
	c := *cfg
	if c.Secret != "" {
		c.Secret = "***"
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

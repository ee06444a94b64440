package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Kafka         KafkaConfig          `mapstructure:"kafka"`
	Subscriptions []SubscriptionConfig `mapstructure:"subscriptions"`
	Store         StoreConfig          `mapstructure:"store"`
	GW            GWConfig             `mapstructure:"gw"`
	Audit         AuditConfig          `mapstructure:"audit"`
	HTTP          HTTPConfig           `mapstructure:"http"`
	Ingest        IngestConfig         `mapstructure:"ingest"`
	Trigger       TriggerConfig        `mapstructure:"trigger"`
}

// ---- Leaf structs ----

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
}

type SubscriptionConfig struct {
	Topic string `mapstructure:"topic"`
	// Format defaults to the topic name.
	Format string `mapstructure:"format"`
	// Limit caps processed messages for this topic; negative = unlimited.
	Limit int `mapstructure:"limit"`
}

type StoreConfig struct {
	Path       string        `mapstructure:"path"`
	Nside      int           `mapstructure:"nside"`
	TimeWindow time.Duration `mapstructure:"time_window"`
	Retention  time.Duration `mapstructure:"retention"`
}

type GWConfig struct {
	AcceptGroups     []string `mapstructure:"accept_groups"`
	AcceptIDPrefixes []string `mapstructure:"accept_id_prefixes"`
}

type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type IngestConfig struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// RunTimeout <= 0 runs indefinitely.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type TriggerConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	MinHasNeutronStar     float64 `mapstructure:"min_has_neutron_star"`
	MinHasRemnant         float64 `mapstructure:"min_has_remnant"`
	MaxTerrestrialChance  float64 `mapstructure:"max_terrestrial_chance"`
	MaxFalseAlarmRate     float64 `mapstructure:"max_false_alarm_rate"`
	ExposureSec           float64 `mapstructure:"exposure_sec"`
	CalibratorExposureSec float64 `mapstructure:"calibrator_exposure_sec"`
}

// Limits returns the per-topic message caps keyed by topic.
func (c Config) Limits() map[string]int {
	out := make(map[string]int, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		out[sub.Topic] = sub.Limit
	}
	return out
}

// FormatMap returns topic to format-key overrides for subscriptions whose
// format differs from the topic name.
func (c Config) FormatMap() map[string]string {
	out := make(map[string]string)
	for _, sub := range c.Subscriptions {
		if sub.Format != "" && sub.Format != sub.Topic {
			out[sub.Topic] = sub.Format
		}
	}
	return out
}

// Topics returns the subscribed topic names.
func (c Config) Topics() []string {
	out := make([]string, 0, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		out = append(out, sub.Topic)
	}
	return out
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (SKYWATCH_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (SKYWATCH_*)
	v.SetEnvPrefix("SKYWATCH")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	for i := range cfg.Subscriptions {
		if cfg.Subscriptions[i].Format == "" {
			cfg.Subscriptions[i].Format = cfg.Subscriptions[i].Topic
		}
	}
	return cfg, nil
}

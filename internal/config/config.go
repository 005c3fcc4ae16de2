// Package config loads and validates service configuration via Viper.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lindol-ph/lindol/internal/notify"
	"github.com/lindol-ph/lindol/internal/scraper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// SourceConfig identifies the upstream bulletin site.
type SourceConfig struct {
	Proto     string        `mapstructure:"proto"`
	Domain    string        `mapstructure:"domain"`
	Kind      string        `mapstructure:"kind"`
	UserAgent string        `mapstructure:"user_agent"`
	CAFile    string        `mapstructure:"ca_file"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// BaseURL is the site root for the active kind; the kind names the
// upstream subdomain.
func (s SourceConfig) BaseURL() string {
	return fmt.Sprintf("%s%s.%s/", s.Proto, s.Kind, s.Domain)
}

// StoreConfig controls access to the relational database.
type StoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CacheConfig sets the image cache directory and its serving base URL.
type CacheConfig struct {
	Dir         string `mapstructure:"dir"`
	BaseURL     string `mapstructure:"base_url"`
	MaxParallel int    `mapstructure:"max_parallel"`
}

// NotifyConfig governs notification eligibility and the two channels.
type NotifyConfig struct {
	Window         time.Duration             `mapstructure:"window"`
	Threshold      float64                   `mapstructure:"threshold"`
	WatchSubstring string                    `mapstructure:"watch_substring"`
	WatchThreshold float64                   `mapstructure:"watch_threshold"`
	OverrideEpoch  int64                     `mapstructure:"override_epoch"`
	Profiles       map[string]notify.Profile `mapstructure:"profiles"`
	Slack          SlackConfig               `mapstructure:"slack"`
	Discord        DiscordConfig             `mapstructure:"discord"`
}

// SlackConfig routes the Slack channel.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
}

// DiscordConfig routes the Discord channel.
type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// LoggingConfig controls zap construction.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Path        string `mapstructure:"path"`
	Quiet       bool   `mapstructure:"quiet"`
}

// ServerConfig controls the read API server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// Load builds a Config from disk/environment. path may be empty, in
// which case defaults and environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINDOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.proto", "https://")
	v.SetDefault("source.domain", "phivolcs.dost.gov.ph")
	v.SetDefault("source.kind", string(scraper.KindEarthquake))
	v.SetDefault("source.user_agent", "lindol/1.0 (+https://github.com/lindol-ph/lindol)")
	v.SetDefault("source.timeout", "15s")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("cache.dir", "data/images")
	v.SetDefault("cache.base_url", "/img")
	v.SetDefault("cache.max_parallel", 4)
	v.SetDefault("notify.window", "6h")
	v.SetDefault("notify.threshold", 4)
	v.SetDefault("notify.watch_threshold", 6)
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "www")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	kind := scraper.Kind(c.Source.Kind)
	if kind != scraper.KindEarthquake && kind != scraper.KindTsunami {
		return fmt.Errorf("source.kind must be %q or %q", scraper.KindEarthquake, scraper.KindTsunami)
	}
	if c.Source.Proto == "" || c.Source.Domain == "" {
		return fmt.Errorf("source.proto and source.domain must be set")
	}
	if c.Source.UserAgent == "" {
		return fmt.Errorf("source.user_agent must be set")
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be > 0")
	}
	if c.Notify.Window <= 0 {
		return fmt.Errorf("notify.window must be > 0")
	}
	if c.Notify.Threshold < 0 {
		return fmt.Errorf("notify.threshold must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := c.SeverityProfiles(); err != nil {
		return err
	}
	if c.ChannelConfigured() && len(c.Notify.Profiles) == 0 {
		return fmt.Errorf("notify.profiles must be set when a webhook is configured")
	}
	return nil
}

// ChannelConfigured reports whether any notification channel has a
// webhook endpoint.
func (c Config) ChannelConfigured() bool {
	return c.Notify.Slack.WebhookURL != "" || c.Notify.Discord.WebhookURL != ""
}

// SeverityProfiles converts the configured magnitude->profile mapping
// to integer keys.
func (c Config) SeverityProfiles() (map[int]notify.Profile, error) {
	out := make(map[int]notify.Profile, len(c.Notify.Profiles))
	for k, p := range c.Notify.Profiles {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("notify.profiles key %q is not an integer", k)
		}
		out[n] = p
	}
	return out, nil
}

// NotifierConfig assembles the shared per-channel notification config.
func (c Config) NotifierConfig() (notify.Config, error) {
	profiles, err := c.SeverityProfiles()
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Window:         c.Notify.Window,
		Threshold:      c.Notify.Threshold,
		WatchSubstring: c.Notify.WatchSubstring,
		WatchThreshold: c.Notify.WatchThreshold,
		Profiles:       profiles,
		ImageBaseURL:   c.Cache.BaseURL,
		Channel:        c.Notify.Slack.Channel,
		Username:       c.Notify.Slack.Username,
	}, nil
}

// Dump renders the effective configuration as indented JSON, for the
// --dump flag.
func (c Config) Dump() (string, error) {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dump config: %w", err)
	}
	return string(out), nil
}

package config

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/patchlist"
)

const (
	DefaultAlertTimeout = 10 * time.Second
	DefaultFetchTimeout = 30 * time.Second
	DefaultLockTTL      = 10 * time.Minute
	DefaultConcurrency  = 4
)

type Config struct {
	Repositories []ConfigRepository `json:"repositories,omitempty" yaml:"repositories" toml:"repositories" validate:"dive"`
	Webhooks     []ConfigWebhook    `json:"webhooks,omitempty" yaml:"webhooks" toml:"webhooks" validate:"dive"`
	Alerts       ConfigAlerts       `json:"alerts" yaml:"alerts" toml:"alerts"`
	Lock         ConfigLock         `json:"lock" yaml:"lock" toml:"lock"`
	Concurrency  int                `json:"concurrency,omitempty" yaml:"concurrency" toml:"concurrency" validate:"gte=0"`
}

type ConfigRepository struct {
	Slug         string         `json:"slug" yaml:"slug" toml:"slug" validate:"required"`
	PatchList    string         `json:"patch_list" yaml:"patch_list" toml:"patch_list" validate:"required"`
	Mode         patchlist.Mode `json:"mode,omitempty" yaml:"mode" toml:"mode"`
	Schedule     string         `json:"cron" yaml:"cron" toml:"cron" validate:"required,cron"`
	FetchTimeout Duration       `json:"fetch_timeout,omitempty" yaml:"fetch_timeout" toml:"fetch_timeout"`
	MaxListSize  SizeArgument   `json:"max_list_size,omitempty" yaml:"max_list_size" toml:"max_list_size"`
	Enable       bool           `json:"enable" yaml:"enable" toml:"enable"`
}

func (r ConfigRepository) MarshalZerologObject(e *zerolog.Event) {
	e.Str("slug", r.Slug)
	e.Str("patch_list", r.PatchList)
	e.Stringer("mode", r.Mode)
	e.Bool("enable", r.Enable)
	e.Str("schedule", r.Schedule)

	if r.MaxListSize.Size > 0 {
		e.Int64("max_list_size", r.MaxListSize.Size)
	}
}

type ConfigWebhook struct {
	Name      string `json:"name" yaml:"name" toml:"name"`
	URL       string `json:"url" yaml:"url" toml:"url" validate:"required,url"`
	Username  string `json:"username,omitempty" yaml:"username" toml:"username"`
	AvatarURL string `json:"avatar_url,omitempty" yaml:"avatar_url" toml:"avatar_url" validate:"omitempty,url"`
}

type ConfigAlerts struct {
	// Root of the version deep links added to alerts.
	BaseURL string   `json:"base_url,omitempty" yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout" toml:"timeout"`
	Log     bool     `json:"log,omitempty" yaml:"log" toml:"log"`
}

type ConfigLock struct {
	// In-process locks are used when empty.
	RedisAddr string   `json:"redis_addr,omitempty" yaml:"redis_addr" toml:"redis_addr" validate:"omitempty,hostname_port"`
	TTL       Duration `json:"ttl,omitempty" yaml:"ttl" toml:"ttl"`
}

func (c *Config) setDefaults() {
	for i := range c.Repositories {
		if c.Repositories[i].FetchTimeout == 0 {
			c.Repositories[i].FetchTimeout = Duration(DefaultFetchTimeout)
		}
	}
	if c.Alerts.Timeout == 0 {
		c.Alerts.Timeout = Duration(DefaultAlertTimeout)
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = Duration(DefaultLockTTL)
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
}

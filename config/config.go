// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/internal/healthcheck"
	"github.com/cardinalhq/pulseboard/internal/joinloader"
	"github.com/cardinalhq/pulseboard/internal/reconcile"
	"github.com/cardinalhq/pulseboard/internal/responses"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	FeedBackendNone      = "none"
	FeedBackendMemory    = "memory"
	FeedBackendKafka     = "kafka"
	FeedBackendWebSocket = "websocket"
)

// Config aggregates configuration for the application.
// Component sections reuse the config types of the packages that own them.
type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Page         PageConfig         `mapstructure:"page"`
	Reconcile    reconcile.Config   `mapstructure:"reconcile"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Health       healthcheck.Config `mapstructure:"health"`
}

// StoreConfig selects the remote store. Postgres connection settings come
// from the SURVEYDB_* environment variables.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type PageConfig struct {
	Size int `mapstructure:"size"`
}

type SubscriptionConfig struct {
	ChannelPrefix    string        `mapstructure:"channel_prefix"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
}

type FeedConfig struct {
	Backend   string                     `mapstructure:"backend"`
	Kafka     changefeed.KafkaConfig     `mapstructure:"kafka"`
	WebSocket changefeed.WebSocketConfig `mapstructure:"websocket"`
}

// CrossProcess reports whether writes made by other processes reach the
// feed. The memory backend only carries events published in this process.
func (f FeedConfig) CrossProcess() bool {
	return f.Backend == FeedBackendKafka || f.Backend == FeedBackendWebSocket
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	retry := changefeed.DefaultRetryPolicy()
	return &Config{
		Store: StoreConfig{
			Driver:     StoreDriverPostgres,
			SQLitePath: "pulseboard.db",
		},
		Cache: CacheConfig{
			MaxSize: responses.DefaultCacheSize,
			TTL:     responses.DefaultCacheTTL,
		},
		Page: PageConfig{Size: joinloader.DefaultPageSize},
		Reconcile: reconcile.Config{
			Debounce:    reconcile.DefaultDebounce,
			MinInterval: reconcile.DefaultMinInterval,
			Name:        "responses",
		},
		Subscription: SubscriptionConfig{
			ChannelPrefix:    "responses",
			MaxAttempts:      retry.MaxAttempts,
			BackoffBase:      retry.Base,
			BackoffMax:       retry.Max,
			SubscribeTimeout: changefeed.DefaultSubscribeTimeout,
		},
		Feed: FeedConfig{
			Backend:   FeedBackendNone,
			Kafka:     changefeed.DefaultKafkaConfig(),
			WebSocket: changefeed.DefaultWebSocketConfig(),
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "PULSEBOARD" and the dot character
// in keys is replaced by an underscore. For example, "feed.kafka.brokers"
// becomes "PULSEBOARD_FEED_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PULSEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("feed.kafka.brokers"); b != "" && !strings.HasPrefix(b, "[") {
		cfg.Feed.Kafka.Brokers = strings.Split(b, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and backends.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Feed.Backend {
	case FeedBackendNone, FeedBackendMemory, FeedBackendKafka, FeedBackendWebSocket:
	default:
		return fmt.Errorf("unknown feed backend %q", c.Feed.Backend)
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("invalid health port %d", c.Health.Port)
	}
	if c.Page.Size < 0 || c.Cache.MaxSize < 0 {
		return fmt.Errorf("page size and cache size must not be negative")
	}
	return nil
}

// RetryPolicy is the subscription retry policy.
func (c *Config) RetryPolicy() changefeed.RetryPolicy {
	return changefeed.RetryPolicy{
		MaxAttempts: c.Subscription.MaxAttempts,
		Base:        c.Subscription.BackoffBase,
		Max:         c.Subscription.BackoffMax,
	}
}

// ResponsesOptions maps the configuration onto controller options.
func (c *Config) ResponsesOptions() responses.Options {
	return responses.Options{
		PageSize:  c.Page.Size,
		CacheSize: c.Cache.MaxSize,
		CacheTTL:  c.Cache.TTL,
		Reconcile: c.Reconcile,
		Subscription: responses.SubscriptionOptions{
			ChannelPrefix:    c.Subscription.ChannelPrefix,
			Retry:            c.RetryPolicy(),
			SubscribeTimeout: c.Subscription.SubscribeTimeout,
		},
	}
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

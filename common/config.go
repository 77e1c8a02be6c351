package common

import (
	"time"

	"github.com/spf13/viper"
)

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required"`
	// ClientName is the connection name reported to the NATS server
	ClientName string `mapstructure:"client_name" json:"client_name"`
	// MaxPendingPublish is the max number of unacknowledged async publishes
	MaxPendingPublish int `mapstructure:"max_pending_publish" json:"max_pending_publish" validate:"gte=0"`
}

// ===============================================================================
// Publish Related Config

// PublishConfig defines how computed channel values are published
type PublishConfig struct {
	// StreamName is the JetStream stream capturing the published values
	StreamName string `mapstructure:"stream_name" json:"stream_name" validate:"required,alphanum"`
	// SubjectPrefix is the subject prefix values are published under. The full subject
	// is <prefix>.<channel label>
	SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix" validate:"required"`
	// MaxAge is the max duration a published value is retained in seconds
	MaxAge int `mapstructure:"max_age_sec" json:"max_age_sec" validate:"gte=1"`
	// PublishTimeout is the max duration to wait for a publish ACK in seconds
	PublishTimeout int `mapstructure:"publish_timeout_sec" json:"publish_timeout_sec" validate:"gte=1"`
	// Confidence is the confidence value attached to every published value
	Confidence float64 `mapstructure:"confidence" json:"confidence" validate:"gte=0,lte=1"`
}

// ===============================================================================
// Upstream Related Config

// UpstreamConfig defines how to reach the upstream social platform
type UpstreamConfig struct {
	// APIBaseURL is the base URL for upstream REST requests
	APIBaseURL string `mapstructure:"api_base_url" json:"api_base_url" validate:"required,url"`
	// StreamBaseURL is the base URL for upstream push connections
	StreamBaseURL string `mapstructure:"stream_base_url" json:"stream_base_url" validate:"required,url"`
	// RequestTimeout is the max duration of one upstream REST request in seconds
	RequestTimeout int `mapstructure:"request_timeout_sec" json:"request_timeout_sec" validate:"gte=1"`
	// PushTopic is the push connection topic opened per account
	PushTopic string `mapstructure:"push_topic" json:"push_topic" validate:"required"`
	// RequestRate is the max upstream REST requests per second, per account client
	RequestRate float64 `mapstructure:"request_rate" json:"request_rate" validate:"gt=0"`
	// RequestBurst is the max burst of upstream REST requests, per account client
	RequestBurst int `mapstructure:"request_burst" json:"request_burst" validate:"gte=1"`
}

// ===============================================================================
// Core Related Config

// MultiplexerConfig defines the subscription multiplexer parameters
type MultiplexerConfig struct {
	// ReconnectDelay is the wait before reconnecting a closed push connection in seconds
	ReconnectDelay int `mapstructure:"reconnect_delay_sec" json:"reconnect_delay_sec" validate:"gte=1"`
	// TaskBuffer is the event loop request queue depth
	TaskBuffer int `mapstructure:"task_buffer" json:"task_buffer" validate:"gte=1"`
}

// PollerConfig defines the poll scheduler parameters
type PollerConfig struct {
	// Interval is the time between two polling passes in seconds
	Interval int `mapstructure:"interval_sec" json:"interval_sec" validate:"gte=1"`
	// Workers is the number of parallel channel resolution workers
	Workers int `mapstructure:"workers" json:"workers" validate:"gte=1"`
	// TaskBuffer is the per worker request queue depth
	TaskBuffer int `mapstructure:"task_buffer" json:"task_buffer" validate:"gte=1"`
}

// CacheConfig defines the request cache parameters
type CacheConfig struct {
	// TrendsTTL is the cache TTL of trending topic queries in seconds
	TrendsTTL int `mapstructure:"trends_ttl_sec" json:"trends_ttl_sec" validate:"gte=1"`
	// TrendsRegionID is the region identifier used for trending topic queries
	TrendsRegionID int `mapstructure:"trends_region_id" json:"trends_region_id" validate:"gte=1"`
	// SweepInterval is the background expired entry sweep interval in seconds
	SweepInterval int `mapstructure:"sweep_interval_sec" json:"sweep_interval_sec" validate:"gte=1"`
}

// ===============================================================================
// Storage Related Config

// RedisConfig defines connection parameters for the redis backend
type RedisConfig struct {
	// Addr is the redis server address
	Addr string `mapstructure:"addr" json:"addr" validate:"required"`
	// Password is the optional redis password
	Password string `mapstructure:"password" json:"-"`
	// DB is the redis DB index
	DB int `mapstructure:"db" json:"db" validate:"gte=0"`
	// KeyPrefix is the prefix of all keys written by this service
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" validate:"required"`
}

// SQLiteConfig defines parameters for the sqlite backend
type SQLiteConfig struct {
	// DBFile is the sqlite database file
	DBFile string `mapstructure:"db_file" json:"db_file" validate:"required"`
	// Table is the name of the table holding the channel settings
	Table string `mapstructure:"table" json:"table" validate:"required,alphanum"`
}

// StorageConfig defines the settings store backend
type StorageConfig struct {
	// Type is the backend type
	Type string `mapstructure:"type" json:"type" validate:"required,oneof=memory redis sqlite"`
	// Redis are the redis backend parameters
	Redis *RedisConfig `mapstructure:"redis,omitempty" json:"redis,omitempty" validate:"required_if=Type redis,omitempty"`
	// SQLite are the sqlite backend parameters
	SQLite *SQLiteConfig `mapstructure:"sqlite,omitempty" json:"sqlite,omitempty" validate:"required_if=Type sqlite,omitempty"`
	// CallTimeout is the max duration of one storage call in seconds
	CallTimeout int `mapstructure:"call_timeout_sec" json:"call_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required"`
	// PathPrefix is the end-point path prefix for the APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config
type SystemConfig struct {
	// NATS are the NATS related config parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required"`
	// Publish are the value publish parameters
	Publish PublishConfig `mapstructure:"publish" json:"publish" validate:"required"`
	// Upstream are the upstream platform parameters
	Upstream UpstreamConfig `mapstructure:"upstream" json:"upstream" validate:"required"`
	// Multiplexer are the subscription multiplexer parameters
	Multiplexer MultiplexerConfig `mapstructure:"multiplexer" json:"multiplexer" validate:"required"`
	// Poller are the poll scheduler parameters
	Poller PollerConfig `mapstructure:"poller" json:"poller" validate:"required"`
	// Cache are the request cache parameters
	Cache CacheConfig `mapstructure:"cache" json:"cache" validate:"required"`
	// Storage are the settings store parameters
	Storage StorageConfig `mapstructure:"storage" json:"storage" validate:"required"`
	// API are the registration API server parameters
	API HTTPConfig `mapstructure:"api" json:"api" validate:"required"`
}

// ReconnectDelayDuration helper function for reading the reconnect delay as a duration
func (c MultiplexerConfig) ReconnectDelayDuration() time.Duration {
	return time.Second * time.Duration(c.ReconnectDelay)
}

// IntervalDuration helper function for reading the poll interval as a duration
func (c PollerConfig) IntervalDuration() time.Duration {
	return time.Second * time.Duration(c.Interval)
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default NATS settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)
	viper.SetDefault("nats.client_name", "streammux")
	viper.SetDefault("nats.max_pending_publish", 256)

	// Default publish settings
	viper.SetDefault("publish.stream_name", "streammux")
	viper.SetDefault("publish.subject_prefix", "streammux.channel")
	viper.SetDefault("publish.max_age_sec", 3600)
	viper.SetDefault("publish.publish_timeout_sec", 10)
	viper.SetDefault("publish.confidence", 0.1)

	// Default upstream settings
	viper.SetDefault("upstream.api_base_url", "https://api.twitter.com/1.1")
	viper.SetDefault("upstream.stream_base_url", "wss://userstream.twitter.com/1.1")
	viper.SetDefault("upstream.request_timeout_sec", 30)
	viper.SetDefault("upstream.push_topic", "user")
	viper.SetDefault("upstream.request_rate", 5.0)
	viper.SetDefault("upstream.request_burst", 10)

	// Default core settings
	viper.SetDefault("multiplexer.reconnect_delay_sec", 5)
	viper.SetDefault("multiplexer.task_buffer", 256)
	viper.SetDefault("poller.interval_sec", 15*60)
	viper.SetDefault("poller.workers", 4)
	viper.SetDefault("poller.task_buffer", 64)
	viper.SetDefault("cache.trends_ttl_sec", 60)
	viper.SetDefault("cache.trends_region_id", 1)
	viper.SetDefault("cache.sweep_interval_sec", 30)

	// Default storage settings
	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.call_timeout_sec", 5)

	// Default API server settings
	viper.SetDefault("api.path_prefix", "/")
	viper.SetDefault("api.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("api.server_config.listen_port", 3025)
	viper.SetDefault("api.server_config.read_timeout_sec", 60)
	viper.SetDefault("api.server_config.write_timeout_sec", 60)
	viper.SetDefault("api.server_config.idle_timeout_sec", 600)
	viper.SetDefault("api.logging_config.request_id_header", "Streammux-Request-ID")
	viper.SetDefault(
		"api.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
}

package config

import "fmt"

type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Server   ServerConfig            `mapstructure:"server"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Query    QueryConfig             `mapstructure:"query"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig drives the HTTP API and the health/metrics endpoints.
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueryConfig tunes the query pipeline. Durations are milliseconds.
type QueryConfig struct {
	ConfidenceThreshold *float64 `mapstructure:"confidence_threshold"`
	RequireSource       *bool    `mapstructure:"require_source"`
	StrictClaims        bool     `mapstructure:"strict_claims"`
	CacheTTL            int      `mapstructure:"cache_ttl"`
	CacheKeyPrefix      string   `mapstructure:"cache_key_prefix"`
	SearchLimit         int      `mapstructure:"search_limit"`
	PageSize            int      `mapstructure:"page_size"`
	AggregateSampleSize int      `mapstructure:"aggregate_sample_size"`
	MinScore            float64  `mapstructure:"min_score"`
	MaxSnippets         int      `mapstructure:"max_snippets"`
	SnippetRadius       int      `mapstructure:"snippet_radius"`
}

const defaultConfidenceThreshold = 0.7

// Threshold reports confidence_threshold, which defaults to 0.7 when unset.
// An explicit 0 disables the confidence gate.
func (q QueryConfig) Threshold() float64 {
	if q.ConfidenceThreshold == nil {
		return defaultConfidenceThreshold
	}
	return *q.ConfidenceThreshold
}

// SourceRequired reports require_source, which defaults to true when unset.
func (q QueryConfig) SourceRequired() bool {
	return q.RequireSource == nil || *q.RequireSource
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

package model

import "time"

// Config is the complete validator configuration
type Config struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	NetUID   int    `yaml:"netuid" mapstructure:"netuid"`
	Hotkey   string `yaml:"hotkey" mapstructure:"hotkey"`   // Validator hotkey ss58 address
	Version  string `yaml:"version" mapstructure:"version"` // Protocol version sent to miners

	Chain     ChainConfig     `yaml:"chain" mapstructure:"chain"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Loop      LoopConfig      `yaml:"loop" mapstructure:"loop"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	SpotCheck SpotCheckConfig `yaml:"spot_check" mapstructure:"spot_check"`
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Trust     TrustConfig     `yaml:"trust" mapstructure:"trust"`
	Sinks     SinksConfig     `yaml:"sinks" mapstructure:"sinks"`
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
}

// ChainConfig points at the bridge sidecar that talks to the chain
type ChainConfig struct {
	BridgeURL string        `yaml:"bridge_url" mapstructure:"bridge_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// QueryConfig controls peer selection and querying
type QueryConfig struct {
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MinSample   int           `yaml:"min_sample" mapstructure:"min_sample"`
	MaxSample   int           `yaml:"max_sample" mapstructure:"max_sample"`
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	KeywordFile string        `yaml:"keyword_file" mapstructure:"keyword_file"` // One search key per line; built-in list when empty
}

// LoopConfig controls the weight-commit loop cadence
type LoopConfig struct {
	Platforms              []string           `yaml:"platforms" mapstructure:"platforms"`
	Alpha                  map[string]float64 `yaml:"alpha" mapstructure:"alpha"` // Per-platform smoothing factor
	SyncEvery              int                `yaml:"sync_every" mapstructure:"sync_every"`
	CommitEveryBlocks      uint64             `yaml:"commit_every_blocks" mapstructure:"commit_every_blocks"`
	ResetUnreachableBlocks uint64             `yaml:"reset_unreachable_blocks" mapstructure:"reset_unreachable_blocks"`
	Sleep                  time.Duration      `yaml:"sleep" mapstructure:"sleep"`
}

// ScoringConfig selects weight profiles and scoring policies
type ScoringConfig struct {
	Profiles          map[string]string `yaml:"profiles" mapstructure:"profiles"`   // platform -> profile name
	EmptyAge          string            `yaml:"empty_age" mapstructure:"empty_age"` // best or worst
	OracleOutageGrace bool              `yaml:"oracle_outage_grace" mapstructure:"oracle_outage_grace"`
	MinRelevancy      float64           `yaml:"min_relevancy" mapstructure:"min_relevancy"`
}

// SpotCheckConfig bounds oracle usage per round
type SpotCheckConfig struct {
	ChunkSize     int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	LookupTimeout time.Duration `yaml:"lookup_timeout" mapstructure:"lookup_timeout"`
}

// OracleConfig configures the spot-check oracles per platform
type OracleConfig struct {
	Twitter   OracleSource `yaml:"twitter" mapstructure:"twitter"`
	Reddit    OracleSource `yaml:"reddit" mapstructure:"reddit"`
	RateLimit float64      `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second per host
	Burst     int          `yaml:"burst" mapstructure:"burst"`
	Cache     CacheConfig  `yaml:"cache" mapstructure:"cache"`
}

// OracleSource selects and configures one oracle provider
type OracleSource struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // apify, percipio, web
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	ActorID  string `yaml:"actor_id,omitempty" mapstructure:"actor_id"`
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// CacheConfig controls the oracle lookup cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// TrustConfig selects where the trust vector is persisted
type TrustConfig struct {
	Backend string      `yaml:"backend" mapstructure:"backend"` // file or redis
	Path    string      `yaml:"path" mapstructure:"path"`
	Initial float64     `yaml:"initial" mapstructure:"initial"` // Value for peers without history
	Redis   RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Key      string `yaml:"key" mapstructure:"key"`
}

// SinksConfig enables the diagnostic record sinks
type SinksConfig struct {
	JSONDir JSONDirSinkConfig `yaml:"json_dir" mapstructure:"json_dir"`
	S3      S3SinkConfig      `yaml:"s3" mapstructure:"s3"`
	Kafka   KafkaSinkConfig   `yaml:"kafka" mapstructure:"kafka"`
	SQLite  SQLiteSinkConfig  `yaml:"sqlite" mapstructure:"sqlite"`
}

// JSONDirSinkConfig dumps each round and raw responses to a directory
type JSONDirSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// S3SinkConfig uploads round records to an S3-compatible bucket
type S3SinkConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Region       string `yaml:"region" mapstructure:"region"`
	Profile      string `yaml:"profile,omitempty" mapstructure:"profile"`
	UsePathStyle bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// KafkaSinkConfig publishes round records to a topic
type KafkaSinkConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// SQLiteSinkConfig archives round records locally
type SQLiteSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// APIConfig controls the status HTTP server
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// HTTPConfig holds shared outbound HTTP settings
type HTTPConfig struct {
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		NetUID:   3,
		Version:  "2.2.0",
		Chain: ChainConfig{
			BridgeURL: "http://127.0.0.1:9944",
			Timeout:   30 * time.Second,
		},
		Query: QueryConfig{
			Timeout:   60 * time.Second,
			MinSample: 3,
			MaxSample: 25,
			Workers:   25,
		},
		Loop: LoopConfig{
			Platforms: []string{string(PlatformTwitter), string(PlatformReddit)},
			Alpha: map[string]float64{
				string(PlatformTwitter): 0.7,
				string(PlatformReddit):  0.7,
			},
			SyncEvery:              5,
			CommitEveryBlocks:      100,
			ResetUnreachableBlocks: 1800,
			Sleep:                  120 * time.Second,
		},
		Scoring: ScoringConfig{
			Profiles: map[string]string{
				string(PlatformTwitter): "oracle",
				string(PlatformReddit):  "oracle",
			},
			EmptyAge:     "best",
			MinRelevancy: 0.5,
		},
		SpotCheck: SpotCheckConfig{
			ChunkSize:     20,
			MaxAttempts:   2,
			LookupTimeout: 2 * time.Minute,
		},
		Oracle: OracleConfig{
			Twitter: OracleSource{
				Provider: "apify",
				BaseURL:  "https://api.apify.com",
				ActorID:  "61RPP7dywgiy0JPD0",
			},
			Reddit: OracleSource{
				Provider: "percipio",
				BaseURL:  "https://api.percip.io",
			},
			RateLimit: 2,
			Burst:     4,
			Cache: CacheConfig{
				Enabled:   true,
				MemoryTTL: 30 * time.Minute,
				DiskDir:   ".scrapenet/oracle-cache",
				DiskTTL:   24 * time.Hour,
			},
		},
		Trust: TrustConfig{
			Backend: "file",
			Path:    "scores.json",
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "scrapenet:trust",
			},
		},
		Sinks: SinksConfig{
			JSONDir: JSONDirSinkConfig{Dir: "./scoring"},
			S3:      S3SinkConfig{Bucket: "scoring"},
			Kafka:   KafkaSinkConfig{Topic: "scoring-rounds"},
			SQLite:  SQLiteSinkConfig{Path: ".scrapenet/rounds.db"},
		},
		API: APIConfig{
			Addr: "127.0.0.1:8091",
		},
		HTTP: HTTPConfig{
			UserAgent: "scrapenet-validator/2.2 (+https://github.com/ppiankov/scrapenet)",
		},
	}
}

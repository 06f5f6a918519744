// Package config owns the YAML configuration surface: loading, defaulting,
// and startup validation. Configuration errors abort startup; everything
// past startup degrades per-message instead.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// Config is the complete runtime configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Filter     FilterConfig     `yaml:"filter"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	Detect     DetectConfig     `yaml:"detect"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Historical HistoricalConfig `yaml:"historical"`
	Reputation ReputationConfig `yaml:"reputation"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Source     SourceConfig     `yaml:"source"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Data       DataConfig       `yaml:"data"`
	LogLevel   string           `yaml:"log_level"`
}

// TelegramConfig holds the external transport client's credentials. The
// client itself runs outside this process, but the credentials are validated
// here so a misconfigured deployment fails at startup rather than in the
// bridge.
type TelegramConfig struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
	Phone   string `yaml:"phone"`
}

// PipelineConfig sizes the queue and the handler rate.
type PipelineConfig struct {
	ConfidenceThreshold    float64       `yaml:"confidence_threshold"`
	MaxQueueSize           int           `yaml:"max_queue_size"`
	MessagesPerSecond      float64       `yaml:"messages_per_second"`
	ReputationIntervalSecs int           `yaml:"reputation_update_interval_seconds"`
	DrainTimeoutSecs       int           `yaml:"drain_timeout_seconds"`
	HistoricalPriceTimeout time.Duration `yaml:"historical_price_timeout"`
	OHLCFetchTimeout       time.Duration `yaml:"ohlc_fetch_timeout"`
}

// FilterConfig holds admission thresholds. The major-token canonical map is
// built into the filter package; overrides extend it.
type FilterConfig struct {
	MinPrice              float64 `yaml:"min_price"`
	MinMarketCap          float64 `yaml:"min_market_cap"`
	AllowMissingMarketCap bool    `yaml:"allow_missing_market_cap"`
}

// ScorerConfig tunes the salience and sentiment scorers.
type ScorerConfig struct {
	MaxIC            float64            `yaml:"max_ic"`
	PositivePatterns map[string]float64 `yaml:"positive_patterns"`
	NegativePatterns map[string]float64 `yaml:"negative_patterns"`
}

// DetectConfig locates the detector's data files.
type DetectConfig struct {
	TickersFile  string `yaml:"tickers_file"`
	KeywordsFile string `yaml:"keywords_file"`
}

// ProvidersConfig holds provider credentials and rate policies.
type ProvidersConfig struct {
	CoinGeckoAPIKey     string             `yaml:"coingecko_api_key"`
	ExplorerAPIKey      string             `yaml:"explorer_api_key"`
	ExplorerChainID     int                `yaml:"explorer_chain_id"`
	CryptoCompareAPIKey string             `yaml:"cryptocompare_api_key"`
	EVMRPCEndpoint      string             `yaml:"evm_rpc_endpoint"`
	SecurityAPIBase     string             `yaml:"security_api_base"`
	RateLimits          []ratelimit.Policy `yaml:"rate_limits"`
}

// HistoricalConfig locates the OHLC cache.
type HistoricalConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// ReputationConfig tunes the reputation engine.
type ReputationConfig struct {
	TDUpdate bool `yaml:"td_update"`
}

// SinksConfig enables output backends.
type SinksConfig struct {
	CSVDir      string `yaml:"csv_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

// SourceConfig configures the websocket message bridge.
type SourceConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Buffer     int    `yaml:"buffer"`
}

// MonitorConfig configures the HTTP monitor server.
type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DataConfig locates the persistent JSON stores.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// e164Re accepts international phone numbers in E.164 form.
var e164Re = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.ConfidenceThreshold <= 0 {
		c.Pipeline.ConfidenceThreshold = 0.7
	}
	if c.Pipeline.MaxQueueSize <= 0 {
		c.Pipeline.MaxQueueSize = 1000
	}
	if c.Pipeline.MessagesPerSecond <= 0 {
		c.Pipeline.MessagesPerSecond = 2.0
	}
	if c.Pipeline.ReputationIntervalSecs <= 0 {
		c.Pipeline.ReputationIntervalSecs = 1800
	}
	if c.Pipeline.DrainTimeoutSecs <= 0 {
		c.Pipeline.DrainTimeoutSecs = 10
	}
	if c.Pipeline.HistoricalPriceTimeout <= 0 {
		c.Pipeline.HistoricalPriceTimeout = 30 * time.Second
	}
	if c.Pipeline.OHLCFetchTimeout <= 0 {
		c.Pipeline.OHLCFetchTimeout = 30 * time.Second
	}
	if c.Filter.MinPrice <= 0 {
		c.Filter.MinPrice = 1e-6
	}
	if c.Filter.MinMarketCap <= 0 {
		c.Filter.MinMarketCap = 10_000
	}
	if c.Scorer.MaxIC <= 0 {
		c.Scorer.MaxIC = 25.0
	}
	if c.Providers.ExplorerChainID == 0 {
		c.Providers.ExplorerChainID = 1
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Historical.CacheDir == "" {
		c.Historical.CacheDir = c.Data.Dir + "/cache"
	}
	if c.Sinks.CSVDir == "" {
		c.Sinks.CSVDir = "output"
	}
	if c.Monitor.ListenAddr == "" {
		c.Monitor.ListenAddr = ":8087"
	}
	if c.Source.ListenAddr == "" {
		c.Source.ListenAddr = ":8090"
	}
	if c.Source.Buffer <= 0 {
		c.Source.Buffer = 256
	}
	c.LogLevel = NormalizeLogLevel(c.LogLevel)
}

// Validate enforces the startup abort rules.
func (c *Config) Validate() error {
	if err := c.Telegram.Validate(); err != nil {
		return err
	}
	if c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold %v out of [0,1]", c.Pipeline.ConfidenceThreshold)
	}
	return nil
}

// Validate checks the transport credentials. Empty credentials are allowed
// (bridge-only deployments); partially filled ones are not.
func (t *TelegramConfig) Validate() error {
	if t.APIID == 0 && t.APIHash == "" && t.Phone == "" {
		return nil
	}
	if t.APIID <= 0 {
		return fmt.Errorf("telegram.api_id must be positive, got %d", t.APIID)
	}
	if len(t.APIHash) != 32 {
		return fmt.Errorf("telegram.api_hash must be 32 characters, got %d", len(t.APIHash))
	}
	if !e164Re.MatchString(t.Phone) {
		return fmt.Errorf("telegram.phone %q is not E.164", t.Phone)
	}
	return nil
}

// NormalizeLogLevel maps a configured level onto the known set, falling back
// to INFO on anything unrecognized.
func NormalizeLogLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return "DEBUG"
	case "INFO", "":
		return "INFO"
	case "WARNING", "WARN":
		return "WARNING"
	case "ERROR":
		return "ERROR"
	case "CRITICAL":
		return "CRITICAL"
	default:
		return "INFO"
	}
}

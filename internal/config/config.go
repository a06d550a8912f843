package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"crosspay.backend/internal/domain/entities"
)

// Config holds all configuration values
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Bridge   BridgeConfig
	Indexer  IndexerConfig
	Planner  PlannerConfig
	History  HistoryConfig
	Chains   []entities.ChainConfig
	Wrapped  entities.WrappedTokenMap
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
	// CORSAllowedOrigins lists the browser origins allowed to call the API; "*" allows any origin without credentials
	CORSAllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// StorageConfig selects the payment-history persistence backend
type StorageConfig struct {
	Driver     string // redis | postgres | sqlite | memory | none
	SQLitePath string
}

// BridgeConfig holds the bridge/swap capability endpoint
type BridgeConfig struct {
	APIURL       string
	IntegratorID string
	Timeout      time.Duration
}

// IndexerConfig holds the deposit indexer endpoint
type IndexerConfig struct {
	URL         string
	Timeout     time.Duration
	RemoteLimit int
}

// PlannerConfig tunes the deposit planner and quote refinement
type PlannerConfig struct {
	MaxSwapQuoteOptions    int
	SlippageBufferBps      int64
	ShowUnavailableOptions bool
	BalanceCacheTTL        time.Duration
	QuoteConcurrency       int
}

// HistoryConfig tunes payment history polling
type HistoryConfig struct {
	PollInterval time.Duration
	SyncInterval time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	chains := defaultChains()
	if raw := os.Getenv("CHAINS"); raw != "" {
		var parsed []entities.ChainConfig
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && len(parsed) > 0 {
			chains = parsed
		}
	}
	for i := range chains {
		if override := os.Getenv("RPC_URL_" + strconv.FormatInt(chains[i].ChainID, 10)); override != "" {
			chains[i].RPCURLs = splitList(override)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Env:                getEnv("SERVER_ENV", "development"),
			CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "crosspay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", "sqlite")),
			SQLitePath: getEnv("SQLITE_PATH", "crosspay.db"),
		},
		Bridge: BridgeConfig{
			APIURL:       getEnv("BRIDGE_API_URL", "https://app.across.to/api"),
			IntegratorID: getEnv("BRIDGE_INTEGRATOR_ID", ""),
			Timeout:      getEnvAsDuration("BRIDGE_TIMEOUT", 15*time.Second),
		},
		Indexer: IndexerConfig{
			URL:         getEnv("INDEXER_URL", "https://indexer.api.across.to"),
			Timeout:     getEnvAsDuration("INDEXER_TIMEOUT", 10*time.Second),
			RemoteLimit: getEnvAsInt("INDEXER_REMOTE_LIMIT", 50),
		},
		Planner: PlannerConfig{
			MaxSwapQuoteOptions:    getEnvAsInt("MAX_SWAP_QUOTE_OPTIONS", 20),
			SlippageBufferBps:      int64(getEnvAsInt("SLIPPAGE_BUFFER_BPS", 50)),
			ShowUnavailableOptions: getEnvAsBool("SHOW_UNAVAILABLE_OPTIONS", false),
			BalanceCacheTTL:        getEnvAsDuration("BALANCE_CACHE_TTL", 15*time.Second),
			QuoteConcurrency:       getEnvAsInt("QUOTE_CONCURRENCY", 8),
		},
		History: HistoryConfig{
			PollInterval: getEnvAsDuration("HISTORY_POLL_INTERVAL", 10*time.Second),
			SyncInterval: getEnvAsDuration("HISTORY_SYNC_INTERVAL", 5*time.Minute),
		},
		Chains:  chains,
		Wrapped: defaultWrappedTokens(chains),
	}
}

// ChainByID finds a configured chain
func (c *Config) ChainByID(chainID int64) (entities.ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return entities.ChainConfig{}, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

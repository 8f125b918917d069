package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Sale        SaleConfig      `mapstructure:"sale"`
	Pool        PoolConfig      `mapstructure:"pool"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Worker      WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SaleConfig describes the VPC token sale terms
type SaleConfig struct {
	TokenPriceUSD   float64            `mapstructure:"token_price_usd"`
	TokenDecimals   int                `mapstructure:"token_decimals"`
	MinPurchaseUSD  float64            `mapstructure:"min_purchase_usd"`
	MaxDiscountRate float64            `mapstructure:"max_discount_rate"`
	PromoCodes      map[string]float64 `mapstructure:"promo_codes"`
}

// PoolConfig seeds the deposit-address pool, keyed by payment method
type PoolConfig struct {
	Addresses map[string][]string `mapstructure:"addresses"`
}

// ProvidersConfig holds endpoints and credentials for external providers
type ProvidersConfig struct {
	CoinGeckoBaseURL   string `mapstructure:"coingecko_base_url"`
	CoinbaseBaseURL    string `mapstructure:"coinbase_base_url"`
	BlockstreamBaseURL string `mapstructure:"blockstream_base_url"`
	EthRPCURL          string `mapstructure:"eth_rpc_url"`
	SolanaRPCURL       string `mapstructure:"solana_rpc_url"`
	TronAPIBaseURL     string `mapstructure:"tron_api_base_url"`
	TronAPIKey         string `mapstructure:"tron_api_key"`
	USDTERC20Contract  string `mapstructure:"usdt_erc20_contract"`
	USDTTRC20Contract  string `mapstructure:"usdt_trc20_contract"`
	USDTSolMint        string `mapstructure:"usdt_sol_mint"`
	VPCMint            string `mapstructure:"vpc_mint"`
	TreasuryURL        string `mapstructure:"treasury_url"`
	TreasuryAPIKey     string `mapstructure:"treasury_api_key"`
}

// WorkerConfig tunes the reconciliation loop
type WorkerConfig struct {
	IntervalSeconds          int     `mapstructure:"interval_seconds"`
	BatchSize                int     `mapstructure:"batch_size"`
	TolerancePct             float64 `mapstructure:"tolerance_pct"`
	RateLimitBackoffSeconds  int     `mapstructure:"rate_limit_backoff_seconds"`
	SettlementTimeoutSeconds int     `mapstructure:"settlement_timeout_seconds"`
	SweepCron                string  `mapstructure:"sweep_cron"`
	PriceCacheTTLSeconds     int     `mapstructure:"price_cache_ttl_seconds"`
}

// Load reads configuration from configs/config.yaml and the environment
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "vpc_sale")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("sale.token_price_usd", 0.0019)
	viper.SetDefault("sale.token_decimals", 6)
	viper.SetDefault("sale.min_purchase_usd", 20.0)
	viper.SetDefault("sale.max_discount_rate", 0.20)

	viper.SetDefault("providers.coingecko_base_url", "https://api.coingecko.com")
	viper.SetDefault("providers.coinbase_base_url", "https://api.coinbase.com")
	viper.SetDefault("providers.blockstream_base_url", "https://blockstream.info/api")
	viper.SetDefault("providers.solana_rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("providers.tron_api_base_url", "https://api.trongrid.io")
	viper.SetDefault("providers.usdt_erc20_contract", "0xdAC17F958D2ee523a2206206994597C13D831ec7")
	viper.SetDefault("providers.usdt_trc20_contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	viper.SetDefault("providers.usdt_sol_mint", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	viper.SetDefault("providers.vpc_mint", "ZDW8ru7pQnsNZaKb75291mrkeioHF1s1PSJtnW653qZ")

	viper.SetDefault("worker.interval_seconds", 20)
	viper.SetDefault("worker.batch_size", 100)
	viper.SetDefault("worker.tolerance_pct", 0.5)
	viper.SetDefault("worker.rate_limit_backoff_seconds", 15)
	viper.SetDefault("worker.settlement_timeout_seconds", 60)
	viper.SetDefault("worker.sweep_cron", "*/10 * * * *")
	viper.SetDefault("worker.price_cache_ttl_seconds", 20)
}

// overrideFromEnv maps flat env var names onto nested keys for the secrets
// that are never written to the config file.
func overrideFromEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		viper.Set("database.url", v)
	}
	if v := os.Getenv("TRON_API_KEY"); v != "" {
		viper.Set("providers.tron_api_key", v)
	}
	if v := os.Getenv("TREASURY_API_KEY"); v != "" {
		viper.Set("providers.treasury_api_key", v)
	}
	if v := os.Getenv("TREASURY_URL"); v != "" {
		viper.Set("providers.treasury_url", v)
	}
	if v := os.Getenv("ETH_RPC_URL"); v != "" {
		viper.Set("providers.eth_rpc_url", v)
	}
}

func validate(config *Config) error {
	if config.Sale.TokenPriceUSD <= 0 {
		return fmt.Errorf("sale.token_price_usd must be positive")
	}
	if config.Worker.TolerancePct < 0 || config.Worker.TolerancePct >= 100 {
		return fmt.Errorf("worker.tolerance_pct must be in [0, 100)")
	}
	if config.Worker.IntervalSeconds <= 0 {
		return fmt.Errorf("worker.interval_seconds must be positive")
	}
	return nil
}

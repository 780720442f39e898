package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	API       APIConfig
	Payment   PaymentConfig
	Reconcile ReconcileConfig
	Telegram  TelegramConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr      string
	Pass      string
	DB        int
	ReplayTTL time.Duration
}

type APIConfig struct {
	Key string
}

// PaymentConfig holds every provider credential set. Sandbox selects the
// sandbox endpoints and keys for all providers at once.
type PaymentConfig struct {
	Sandbox   bool
	ZaloPay   ZaloPayConfig
	GalaxyPay GalaxyPayConfig
	Bridge    BridgeConfig
}

// ProviderConfig is the immutable endpoint/key view a gateway is constructed with.
type ProviderConfig struct {
	BaseURL             string
	Timeout             time.Duration
	RegenerableSubCodes []int
}

type ZaloPayConfig struct {
	ProviderConfig
	AppID       string
	Key1        string
	Key2        string
	CallbackURL string
	RedirectURL string
}

type GalaxyPayConfig struct {
	ProviderConfig
	APIKey      string
	Salt        string
	IPNURL      string
	SuccessURL  string
	FailureURL  string
	CancelURL   string
	PaymentType string
}

// BridgeConfig configures the POS status bridge.
type BridgeConfig struct {
	Secret string
}

type ReconcileConfig struct {
	Enabled     bool
	After       time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

const (
	zaloPaySandboxURL   = "https://sb-openapi.zalopay.vn"
	zaloPayLiveURL      = "https://openapi.zalopay.vn"
	galaxyPaySandboxURL = "https://uat-secure.galaxypay.vn"
	galaxyPayLiveURL    = "https://secure.galaxypay.vn"
)

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CALLBACK_REPLAY_TTL", "24h")
	viper.SetDefault("PAYMENT_ENV", "sandbox")
	viper.SetDefault("PROVIDER_TIMEOUT", "15s")
	viper.SetDefault("ZALOPAY_REGENERABLE_SUBCODES", "-54")
	viper.SetDefault("GALAXYPAY_REGENERABLE_SUBCODES", "404")
	viper.SetDefault("GALAXYPAY_PAYMENT_TYPE", "WALLET")
	viper.SetDefault("RECONCILE_ENABLED", true)
	viper.SetDefault("RECONCILE_AFTER", "2m")
	viper.SetDefault("EXPIRE_AFTER", "24h")
	viper.SetDefault("RECONCILE_BATCH", 100)

	sandbox := !strings.EqualFold(viper.GetString("PAYMENT_ENV"), "live")
	timeout := clampTimeout(durationOr("PROVIDER_TIMEOUT", 15*time.Second))

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr:      viper.GetString("REDIS_ADDR"),
			Pass:      viper.GetString("REDIS_PASS"),
			DB:        viper.GetInt("REDIS_DB"),
			ReplayTTL: durationOr("CALLBACK_REPLAY_TTL", 24*time.Hour),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Payment: PaymentConfig{
			Sandbox: sandbox,
			ZaloPay: ZaloPayConfig{
				ProviderConfig: ProviderConfig{
					BaseURL:             pickURL(viper.GetString("ZALOPAY_BASE_URL"), sandbox, zaloPaySandboxURL, zaloPayLiveURL),
					Timeout:             timeout,
					RegenerableSubCodes: ParseCodes(viper.GetString("ZALOPAY_REGENERABLE_SUBCODES")),
				},
				AppID:       envByMode(sandbox, "ZALOPAY_APP_ID"),
				Key1:        envByMode(sandbox, "ZALOPAY_KEY1"),
				Key2:        envByMode(sandbox, "ZALOPAY_KEY2"),
				CallbackURL: viper.GetString("ZALOPAY_CALLBACK_URL"),
				RedirectURL: viper.GetString("ZALOPAY_REDIRECT_URL"),
			},
			GalaxyPay: GalaxyPayConfig{
				ProviderConfig: ProviderConfig{
					BaseURL:             pickURL(viper.GetString("GALAXYPAY_BASE_URL"), sandbox, galaxyPaySandboxURL, galaxyPayLiveURL),
					Timeout:             timeout,
					RegenerableSubCodes: ParseCodes(viper.GetString("GALAXYPAY_REGENERABLE_SUBCODES")),
				},
				APIKey:      envByMode(sandbox, "GALAXYPAY_API_KEY"),
				Salt:        envByMode(sandbox, "GALAXYPAY_SALT"),
				IPNURL:      viper.GetString("GALAXYPAY_IPN_URL"),
				SuccessURL:  viper.GetString("GALAXYPAY_SUCCESS_URL"),
				FailureURL:  viper.GetString("GALAXYPAY_FAILURE_URL"),
				CancelURL:   viper.GetString("GALAXYPAY_CANCEL_URL"),
				PaymentType: viper.GetString("GALAXYPAY_PAYMENT_TYPE"),
			},
			Bridge: BridgeConfig{
				Secret: viper.GetString("LS_BRIDGE_SECRET"),
			},
		},
		Reconcile: ReconcileConfig{
			Enabled:     viper.GetBool("RECONCILE_ENABLED"),
			After:       durationOr("RECONCILE_AFTER", 2*time.Minute),
			ExpireAfter: durationOr("EXPIRE_AFTER", 24*time.Hour),
			BatchSize:   viper.GetInt("RECONCILE_BATCH"),
		},
		Telegram: TelegramConfig{
			Token:  viper.GetString("TELEGRAM_TOKEN"),
			ChatID: viper.GetInt64("TELEGRAM_REPORT_CHAT"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Payment.ZaloPay.Key2 == "" {
		log.Println("WARNING: ZaloPay callback key is not set, ZaloPay callbacks will be rejected")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database section, for the migrate-only entrypoint.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

// ParseCodes parses a comma separated list of integer sub-codes, skipping junk.
func ParseCodes(raw string) []int {
	var codes []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		codes = append(codes, n)
	}
	return codes
}

// envByMode prefers KEY_SANDBOX / KEY_LIVE and falls back to the bare KEY.
func envByMode(sandbox bool, key string) string {
	suffix := "_LIVE"
	if sandbox {
		suffix = "_SANDBOX"
	}
	if v := viper.GetString(key + suffix); v != "" {
		return v
	}
	return viper.GetString(key)
}

func pickURL(override string, sandbox bool, sandboxURL, liveURL string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if sandbox {
		return sandboxURL
	}
	return liveURL
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// clampTimeout keeps provider timeouts inside 10s..30s.
func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d < 10*time.Second:
		return 10 * time.Second
	case d > 30*time.Second:
		return 30 * time.Second
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "PhoneWallet"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultCurrency         = "ETH"
	defaultMinPasswordLen   = 8
	defaultBalanceTTL       = 5 * time.Second
	defaultRefreshTimeout   = 5 * time.Second
	defaultIntentExpiry     = 5 * time.Minute
	defaultIntentScheme     = "ethereum"
	defaultQRSize           = 256
	defaultConfirmDepth     = 12
	defaultConfirmMaxWait   = 30 * time.Minute
	defaultRateLimit        = 10
	defaultChainID          = 1
	defaultNATSSubjectRoot  = "phonewallet.tx"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	balanceTTLMillisEnvVar  = "BALANCE_CACHE_TTL_MS"
	refreshTimeoutEnvVar    = "BALANCE_REFRESH_TIMEOUT"
	intentExpiryEnvVar      = "INTENT_EXPIRY_SECONDS"
	confirmMaxWaitEnvVar    = "CONFIRMATION_MAX_WAIT"
	confirmDepthEnvVar      = "CONFIRMATION_DEPTH"
	minPasswordLengthEnvVar = "MIN_PASSWORD_LENGTH"
	rateLimitEnvVar         = "RATE_LIMIT_PER_MINUTE"
	qrSizeEnvVar            = "QR_SIZE"
	chainIDEnvVar           = "ETH_CHAIN_ID"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	NATSSubject    string
	EthRPCURL      string
	EthChainID     int64
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int

	Wallet       WalletConfig
	Balance      BalanceConfig
	Intent       IntentConfig
	Confirmation ConfirmationConfig

	// VerifiedPhones seeds the static verification gateway used in development.
	VerifiedPhones []string
	// WebhookSecret authenticates calls from the verification provider. Empty disables the check.
	WebhookSecret string
	// VerificationTTL bounds how long a confirmed phone stays confirmed in Redis. Zero keeps it forever.
	VerificationTTL time.Duration
}

// WalletConfig controls wallet provisioning.
type WalletConfig struct {
	Currency          string
	MinPasswordLength int
}

// BalanceConfig controls the balance cache.
type BalanceConfig struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
}

// IntentConfig controls payment intent construction and rendering.
type IntentConfig struct {
	Expiry    time.Duration
	URIScheme string
	QRSize    int
}

// ConfirmationConfig controls the transaction confirmation state machine.
type ConfirmationConfig struct {
	Depth   int
	MaxWait time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		NATSURL:        os.Getenv("NATS_URL"),
		NATSSubject:    getEnv("NATS_SUBJECT_PREFIX", defaultNATSSubjectRoot),
		EthRPCURL:      os.Getenv("ETH_RPC_URL"),
		EthChainID:     defaultChainID,
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		RateLimit:      defaultRateLimit,
		Wallet: WalletConfig{
			Currency:          strings.ToUpper(getEnv("WALLET_CURRENCY", defaultCurrency)),
			MinPasswordLength: defaultMinPasswordLen,
		},
		Balance: BalanceConfig{
			TTL:            defaultBalanceTTL,
			RefreshTimeout: defaultRefreshTimeout,
		},
		Intent: IntentConfig{
			Expiry:    defaultIntentExpiry,
			URIScheme: getEnv("INTENT_URI_SCHEME", defaultIntentScheme),
			QRSize:    defaultQRSize,
		},
		Confirmation: ConfirmationConfig{
			Depth:   defaultConfirmDepth,
			MaxWait: defaultConfirmMaxWait,
		},
		VerifiedPhones: splitList(os.Getenv("VERIFIED_PHONES")),
		WebhookSecret:  os.Getenv("VERIFICATION_WEBHOOK_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(balanceTTLMillisEnvVar); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", balanceTTLMillisEnvVar, v)
		}
		cfg.Balance.TTL = time.Duration(ms) * time.Millisecond
	}
	if cfg.Balance.RefreshTimeout, err = duration(refreshTimeoutEnvVar, cfg.Balance.RefreshTimeout); err != nil {
		return Config{}, err
	}
	if v := os.Getenv(intentExpiryEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", intentExpiryEnvVar, v)
		}
		cfg.Intent.Expiry = time.Duration(seconds) * time.Second
	}
	if cfg.Confirmation.MaxWait, err = duration(confirmMaxWaitEnvVar, cfg.Confirmation.MaxWait); err != nil {
		return Config{}, err
	}
	if cfg.VerificationTTL, err = duration("VERIFICATION_TTL", 0); err != nil {
		return Config{}, err
	}

	ints := []struct {
		key string
		dst *int
	}{
		{confirmDepthEnvVar, &cfg.Confirmation.Depth},
		{minPasswordLengthEnvVar, &cfg.Wallet.MinPasswordLength},
		{rateLimitEnvVar, &cfg.RateLimit},
		{qrSizeEnvVar, &cfg.Intent.QRSize},
	}
	for _, item := range ints {
		if v := os.Getenv(item.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return Config{}, fmt.Errorf("invalid %s: %q", item.key, v)
			}
			*item.dst = n
		}
	}

	if v := os.Getenv(chainIDEnvVar); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", chainIDEnvVar, v)
		}
		cfg.EthChainID = id
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.EthRPCURL == "" {
			return Config{}, fmt.Errorf("ETH_RPC_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether external backends may fall back to in-memory adapters.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

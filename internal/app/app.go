package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/phonewallet/internal/balance"
	"github.com/congo-pay/phonewallet/internal/config"
	"github.com/congo-pay/phonewallet/internal/confirmation"
	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/intent"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/notification"
	"github.com/congo-pay/phonewallet/internal/verification"
	"github.com/congo-pay/phonewallet/internal/wallet"
)

// Backends holds the external connections. Nil fields fall back to
// in-process adapters, which is only allowed in development.
type Backends struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Events notification.Publisher
	Ledger ledger.Client
}

// Services is the assembled gateway.
type Services struct {
	Identity *identity.Service
	Wallets  *wallet.Service
	Balances *balance.Cache
	Intents  *intent.Builder
	Tracker  *confirmation.Tracker
	Ledger   ledger.Client
}

// New wires the gateway components over the given backends.
func New(cfg config.Config, b Backends, logger *slog.Logger, m *metrics.Metrics) (*Services, error) {
	if !cfg.IsDevelopment() {
		if b.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", cfg.AppEnv)
		}
		if b.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", cfg.AppEnv)
		}
		if b.Ledger == nil {
			return nil, fmt.Errorf("ethereum rpc is required when APP_ENV=%s", cfg.AppEnv)
		}
	}

	if logger == nil {
		logger = logging.Discard()
	}

	led := b.Ledger
	if led == nil {
		logger.Warn("no ledger node configured, using in-memory ledger")
		led = ledger.NewInMemory()
	}
	led = ledger.Instrument(led, m)

	var gateway verification.Gateway
	if b.Cache != nil {
		gateway = verification.NewRedisGateway(b.Cache, cfg.VerificationTTL)
	} else {
		gateway = verification.NewStaticGateway(cfg.VerifiedPhones...)
	}

	var (
		identityRepo identity.Repository
		store        confirmation.Store
	)
	if b.DB != nil {
		identityRepo = identity.NewPostgresRepository(b.DB)
		store = confirmation.NewPostgresStore(b.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		store = confirmation.NewMemoryStore()
	}

	var notifier notification.Notifier
	if b.Events != nil {
		notifier = notification.NewNATSNotifier(b.Events, cfg.NATSSubject)
	} else {
		notifier = notification.NewLoggerNotifier(logger)
	}

	identitySvc := identity.NewService(identityRepo, gateway, logger, m)
	walletSvc := wallet.NewService(identitySvc, led, wallet.Options{
		Currency:          cfg.Wallet.Currency,
		MinPasswordLength: cfg.Wallet.MinPasswordLength,
	}, logger, m)
	balances := balance.NewCache(identitySvc, led, balance.Options{
		TTL:            cfg.Balance.TTL,
		RefreshTimeout: cfg.Balance.RefreshTimeout,
	}, logger, m)
	intents := intent.NewBuilder(identitySvc, intent.NewQRRenderer(cfg.Intent.QRSize), intent.Options{
		Scheme: cfg.Intent.URIScheme,
		Expiry: cfg.Intent.Expiry,
	}, logger, m)
	tracker := confirmation.NewTracker(identitySvc, led, store, notifier, balances, confirmation.Options{
		Depth:   cfg.Confirmation.Depth,
		MaxWait: cfg.Confirmation.MaxWait,
	}, logger, m)

	return &Services{
		Identity: identitySvc,
		Wallets:  walletSvc,
		Balances: balances,
		Intents:  intents,
		Tracker:  tracker,
		Ledger:   led,
	}, nil
}

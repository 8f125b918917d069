package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/viewplay/vpc-sale-service/internal/adapters/blockstream"
	"github.com/viewplay/vpc-sale-service/internal/adapters/coinbase"
	"github.com/viewplay/vpc-sale-service/internal/adapters/coingecko"
	"github.com/viewplay/vpc-sale-service/internal/adapters/ethrpc"
	"github.com/viewplay/vpc-sale-service/internal/adapters/solanarpc"
	"github.com/viewplay/vpc-sale-service/internal/adapters/treasury"
	"github.com/viewplay/vpc-sale-service/internal/adapters/trongrid"
	"github.com/viewplay/vpc-sale-service/internal/api/routes"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	orderservice "github.com/viewplay/vpc-sale-service/internal/domain/services/order"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/oracle"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/pricing"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/settlement"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/watch"
	"github.com/viewplay/vpc-sale-service/internal/infrastructure/config"
	"github.com/viewplay/vpc-sale-service/internal/infrastructure/database"
	"github.com/viewplay/vpc-sale-service/internal/infrastructure/repositories"
	"github.com/viewplay/vpc-sale-service/internal/workers/poolsweeper"
	"github.com/viewplay/vpc-sale-service/internal/workers/reconciliation"
	"github.com/viewplay/vpc-sale-service/pkg/graceful"
	"github.com/viewplay/vpc-sale-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	orderRepo := repositories.NewOrderRepository(db)
	poolRepo := repositories.NewAddressPoolRepository(db)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSeed()
	for method, addresses := range cfg.Pool.Addresses {
		m, err := entities.ParsePaymentMethod(method)
		if err != nil {
			log.Fatal("Unknown payment method in pool config", "method", method)
		}
		if err := poolRepo.Seed(seedCtx, m, addresses); err != nil {
			log.Fatal("Failed to seed address pool", "method", method, "error", err)
		}
		log.Info("Seeded address pool", "method", method, "addresses", len(addresses))
	}

	zlog := log.Zap()

	gecko := coingecko.NewClient(coingecko.Config{BaseURL: cfg.Providers.CoinGeckoBaseURL}, zlog)
	cb := coinbase.NewClient(coinbase.Config{BaseURL: cfg.Providers.CoinbaseBaseURL}, zlog)
	prices := oracle.New(gecko, cb, zlog,
		oracle.WithTTL(time.Duration(cfg.Worker.PriceCacheTTLSeconds)*time.Second))

	btcExplorer := blockstream.NewClient(blockstream.Config{BaseURL: cfg.Providers.BlockstreamBaseURL}, zlog)
	ethNode := ethrpc.NewClient(ethrpc.Config{RPCURL: cfg.Providers.EthRPCURL}, zlog)
	solNode := solanarpc.NewClient(solanarpc.Config{RPCURL: cfg.Providers.SolanaRPCURL}, zlog)
	tron := trongrid.NewClient(trongrid.Config{
		BaseURL: cfg.Providers.TronAPIBaseURL,
		APIKey:  cfg.Providers.TronAPIKey,
	}, zlog)

	tol := cfg.Worker.TolerancePct
	watchers := watch.NewRegistry(map[entities.PaymentMethod]watch.Watcher{
		entities.MethodBTC:       watch.NewBTCWatcher(btcExplorer, tol, zlog),
		entities.MethodETH:       watch.NewEthWatcher(ethNode, "", tol, zlog),
		entities.MethodUSDTERC20: watch.NewEthWatcher(ethNode, cfg.Providers.USDTERC20Contract, tol, zlog),
		entities.MethodSOL:       watch.NewSolWatcher(solNode, "", tol, zlog),
		entities.MethodUSDTSOL:   watch.NewSolWatcher(solNode, cfg.Providers.USDTSolMint, tol, zlog),
		entities.MethodUSDTTRC20: watch.NewTronWatcher(tron, cfg.Providers.USDTTRC20Contract, tol, zlog),
	})

	treasuryClient := treasury.NewClient(treasury.Config{
		BaseURL: cfg.Providers.TreasuryURL,
		APIKey:  cfg.Providers.TreasuryAPIKey,
	}, zlog)
	issuer := settlement.NewSolanaIssuer(treasuryClient, cfg.Providers.VPCMint,
		time.Duration(cfg.Worker.SettlementTimeoutSeconds)*time.Second, zlog)

	calc := pricing.NewCalculator(cfg.Sale.TokenPriceUSD, cfg.Sale.MaxDiscountRate, cfg.Sale.PromoCodes)
	orders := orderservice.NewService(orderRepo, poolRepo, prices, calc, cfg.Sale.MinPurchaseUSD, zlog)

	reconciler := reconciliation.NewWorker(orderRepo, poolRepo, watchers, issuer, &reconciliation.Config{
		Interval:         time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		BatchSize:        cfg.Worker.BatchSize,
		RateLimitBackoff: time.Duration(cfg.Worker.RateLimitBackoffSeconds) * time.Second,
	}, log)

	sweeper := poolsweeper.NewWorker(orderRepo, poolRepo, cfg.Worker.SweepCron, zlog)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go reconciler.Start(workerCtx)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start pool sweeper", "error", err)
	}

	router := routes.SetupRoutes(routes.Deps{
		DB:     db,
		Orders: orders,
		Expiry: orderRepo,
		Pool:   poolRepo,
		Logger: log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("VPC sale service listening", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db, log)
	shutdown.Register(reconciler)
	shutdown.Register(sweeper)
	shutdown.WaitForShutdown()
}

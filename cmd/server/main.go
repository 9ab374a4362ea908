package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stablepay.backend/internal/config"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/internal/infrastructure/blockchain"
	pgsource "stablepay.backend/internal/infrastructure/datasources/postgres"
	"stablepay.backend/internal/infrastructure/jobs"
	"stablepay.backend/internal/infrastructure/models"
	"stablepay.backend/internal/infrastructure/repositories"
	"stablepay.backend/internal/interfaces/http/handlers"
	"stablepay.backend/internal/interfaces/http/middleware"
	"stablepay.backend/internal/usecases"
	"stablepay.backend/pkg/jwt"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
	"stablepay.backend/pkg/redis"
	"stablepay.backend/pkg/retry"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		sqlDB, err := pgsource.Open(cfg)
		if err != nil {
			return nil, err
		}
		return gorm.Open(postgres.New(postgres.Config{
			Conn:                 sqlDB,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	dialChain = blockchain.NewEVMClient
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
	pingDB    = pgsource.Ping

	brokerLoadAttempts = 10
	brokerLoadDelay    = 5 * time.Second
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Token table and signer keys are validated before anything is dialed
	tokenSpecs, err := config.ParseTokens(cfg.Settlement.Tokens)
	if err != nil {
		return fmt.Errorf("invalid SETTLEMENT_TOKENS: %w", err)
	}
	signerKeys, err := config.ParseSigners(cfg.Blockchain.SignerPrivateKeys)
	if err != nil {
		return fmt.Errorf("invalid SIGNER_PRIVATE_KEYS: %w", err)
	}
	registry, err := usecases.NewTokenRegistry(tokenDescriptors(tokenSpecs), cfg.Settlement.FallbackCurrency)
	if err != nil {
		return fmt.Errorf("failed to build token registry: %w", err)
	}

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := pingDB(sqlDB); err != nil {
		logger.Warn(context.Background(), "Database not available, flow endpoints will return errors", zap.Error(err))
	} else {
		if err := db.AutoMigrate(&models.SettlementFlow{}, &models.SettlementFlowEvent{}); err != nil {
			return fmt.Errorf("failed to migrate settlement tables: %w", err)
		}
		logger.Info(context.Background(), "Connected to database")
	}

	chain, err := dialChain(cfg.Blockchain.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to celo rpc: %w", err)
	}
	defer chain.Close()
	logger.Info(context.Background(), "Connected to chain", zap.String("chainId", chain.ChainID().String()))

	broker, err := blockchain.NewMentoBroker(chain, cfg.Blockchain.BrokerAddress)
	if err != nil {
		return err
	}
	submitter, err := blockchain.NewKeyedSubmitter(chain, signerKeys)
	if err != nil {
		return fmt.Errorf("failed to load signer keys: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(promRegistry)

	engine, err := usecases.NewSettlementEngine(registry, usecases.EnginePorts{
		Balances:  chain,
		Router:    broker,
		Tokens:    blockchain.NewERC20(),
		Submitter: submitter,
		Metrics:   recorder,
	}, usecases.EngineSettings{
		PlatformFeeRate:     cfg.Settlement.PlatformFeeRate,
		PlatformFeeAddress:  cfg.Settlement.PlatformFeeAddress,
		SlippageBps:         int64(cfg.Settlement.DefaultSlippageBps),
		SwapMaxAttempts:     cfg.Settlement.SwapMaxAttempts,
		SwapRetryDelay:      cfg.Settlement.SwapRetryDelay,
		TransferMaxAttempts: cfg.Settlement.TransferMaxAttempts,
		TransferRetryDelay:  cfg.Settlement.TransferRetryDelay,
		ConfirmTimeout:      cfg.Settlement.ConfirmTimeout,
		ConfirmInterval:     cfg.Settlement.ConfirmInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to build settlement engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Quotes stay unavailable until the broker exchange list is loaded
	go attachBroker(ctx, broker, engine.Quotes, cfg.Blockchain.InitTimeout)

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.FlowTokenExpiry)

	flowRepo := repositories.NewSettlementFlowRepository(db)
	eventRepo := repositories.NewFlowEventRepository(db)
	uow := repositories.NewUnitOfWork(db)

	codec := usecases.NewPaymentPayloadCodec(registry, cfg.Settlement.PaymentLinkBaseURL)
	flowUsecase := usecases.NewPaymentFlowUsecase(flowRepo, eventRepo, uow, engine, codec,
		redis.NewFlowLockStore(), jwtService, recorder, usecases.FlowSettings{
			LockTTL:     cfg.Settlement.FlowLockTTL,
			LockRefresh: cfg.Settlement.FlowLockRefresh,
			ConfirmTTL:  cfg.Settlement.FlowConfirmTTL,
		})
	walletUsecase := usecases.NewWalletUsecase(engine)
	paymentRequestUsecase := usecases.NewPaymentRequestUsecase(codec, registry)

	healthHandler := handlers.NewHealthHandler(engine.Quotes)

	expiryJob := jobs.NewFlowExpiryJob(flowUsecase, cfg.Settlement.ExpirySweepInterval)
	go expiryJob.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(recorder))

	applyCORSMiddleware(r)
	registerHealthRoute(r, healthHandler)
	registerMetricsRoute(r, promRegistry)
	registerAPIV1Routes(r, routeDeps{
		flowHandler:           handlers.NewFlowHandler(flowUsecase),
		walletHandler:         handlers.NewWalletHandler(walletUsecase),
		paymentRequestHandler: handlers.NewPaymentRequestHandler(paymentRequestUsecase),
		tokenHandler:          handlers.NewTokenHandler(registry),
		adminHandler:          handlers.NewAdminHandler(flowUsecase),
		flowAuthMiddleware:    middleware.FlowTokenMiddleware(jwtService),
		operatorMiddleware:    middleware.OperatorKeyMiddleware(cfg.Security.OperatorKeyHash),
	})

	for _, route := range r.Routes() {
		logger.Debug(context.Background(), "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(context.Background(), "Shutting down server")
		expiryJob.Stop()
		cancel()
	}()

	logger.Info(context.Background(), "Settlement backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("fallback", registry.Fallback().CurrencyCode),
		zap.Int("tokens", len(registry.All())),
		zap.Int("signers", len(signerKeys)),
	)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func tokenDescriptors(specs []config.TokenSpec) []entities.TokenDescriptor {
	tokens := make([]entities.TokenDescriptor, 0, len(specs))
	for _, spec := range specs {
		tokens = append(tokens, entities.TokenDescriptor{
			CurrencyCode:    spec.CurrencyCode,
			ContractAddress: spec.Address,
			Decimals:        spec.Decimals,
		})
	}
	return tokens
}

type exchangeLoader interface {
	LoadExchanges(ctx context.Context) error
}

// attachBroker loads the broker exchange list, retrying until it succeeds or
// ctx ends, and then makes the broker available to the quote service.
func attachBroker(ctx context.Context, broker *blockchain.MentoBroker, quotes *usecases.QuoteService, timeout time.Duration) {
	if err := loadExchanges(ctx, broker, timeout); err != nil {
		logger.Error(ctx, "Mento broker unavailable, quotes disabled", zap.Error(err))
		return
	}
	quotes.Attach(broker)
	logger.Info(ctx, "Mento broker ready", zap.String("broker", broker.Address()))
}

func loadExchanges(ctx context.Context, loader exchangeLoader, timeout time.Duration) error {
	_, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: brokerLoadAttempts,
		Delay:       brokerLoadDelay,
		OnRetry: func(attempt int, err error) {
			logger.Warn(ctx, "Mento broker init failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(ctx context.Context, _ int) (struct{}, error) {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return struct{}{}, loader.LoadExchanges(attemptCtx)
	})
	return err
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/realmgate/realmgate/internal/audit"
	"github.com/realmgate/realmgate/internal/broker"
	"github.com/realmgate/realmgate/internal/bruteforce"
	"github.com/realmgate/realmgate/internal/clients"
	"github.com/realmgate/realmgate/internal/config"
	"github.com/realmgate/realmgate/internal/consent"
	"github.com/realmgate/realmgate/internal/device"
	"github.com/realmgate/realmgate/internal/handlers/api"
	"github.com/realmgate/realmgate/internal/keys"
	"github.com/realmgate/realmgate/internal/oauth"
	"github.com/realmgate/realmgate/internal/realms"
	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/internal/sweep"
	"github.com/realmgate/realmgate/internal/tokens"
	"github.com/realmgate/realmgate/internal/users"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "realmgate - multi-tenant OAuth2/OIDC identity server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if len(dbConfig.ReplicaDsns) > 0 {
		var replicas []gorm.Dialector
		for _, dsn := range dbConfig.ReplicaDsns {
			replicas = append(replicas, mysql.Open(dsn))
		}
		if err := db.Use(dbresolver.Register(dbresolver.Config{Replicas: replicas})); err != nil {
			slog.Error("Failed to register read replicas", "error", err)
			os.Exit(1)
		}
	}

	sqlDB, err := db.DB()
	if err == nil {
		if dbConfig.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
		}
		if dbConfig.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
		}
		if dbConfig.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func newRateLimiter(cfg config.RateLimitConfig, redisStorage *redis.Storage) fiber.Handler {
	storage := fiber.Storage(redisStorage)
	if cfg.UseMemory {
		storage = memory.New()
	}
	return limiter.New(limiter.Config{
		Max:        cfg.MaxPerMin,
		Expiration: time.Minute,
		Storage:    storage,
		LimitReached: func(ctx *fiber.Ctx) error {
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate_limited",
			})
		},
	})
}

func setupAPIRoutes(
	router fiber.Router,
	realmRepo realms.Repository,
	engine *oauth.Engine,
	deviceFlow *device.Flow,
	clientReg *clients.Registry,
	tokenMgr *tokens.Manager,
	identityBroker *broker.Broker,
	keyProvider *keys.Provider,
) {
	var (
		tokenHandler   = api.NewTokenHandler(engine)
		deviceHandler  = api.NewDeviceHandler(engine, deviceFlow)
		authHandler    = api.NewAuthHandler(engine)
		sessionHandler = api.NewSessionHandler(clientReg, tokenMgr)
		brokerHandler  = api.NewBrokerHandler(identityBroker)
		jwksHandler    = api.NewJWKSHandler(keyProvider)
	)

	realm := router.Group("/realms/:realm", api.RealmResolver(realmRepo))
	realm.Post("/token", tokenHandler.PostToken)
	realm.Post("/authorize", authHandler.PostAuthorize)
	realm.Post("/consent", authHandler.PostConsent)
	realm.Post("/device", deviceHandler.PostDeviceAuthorization)
	realm.Post("/device/approve", deviceHandler.PostDeviceApprove)
	realm.Post("/device/deny", deviceHandler.PostDeviceDeny)
	realm.Get("/broker/:alias/login", brokerHandler.GetBrokerLogin)
	realm.Get("/broker/:alias/callback", brokerHandler.GetBrokerCallback)
	realm.Post("/logout", sessionHandler.PostLogout)
	realm.Post("/revoke", sessionHandler.PostRevoke)
	realm.Get("/.well-known/jwks.json", jwksHandler.GetJWKS)
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.LoadConfig(cliCtx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}
	mustInitLogger(cfg.Debug || cliCtx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	redisStorage := mustInitRedisStorage(cfg.Redis)
	cacheStorage := store.NewRedisStorage(redisStorage.Conn())

	// repositories
	var (
		realmRepo    = realms.NewRepository(db)
		userRepo     = users.NewUserRepository(db)
		clientRepo   = clients.NewClientRepository(db)
		keyRepo      = keys.NewSigningKeyRepository(db)
		failureRepo  = bruteforce.NewFailureRepository(db)
		sessionRepo  = tokens.NewSessionRepository(db)
		refreshRepo  = tokens.NewRefreshTokenRepository(db)
		consentRepo  = consent.NewConsentRepository(db)
		providerRepo = broker.NewProviderRepository(db)
		linkRepo     = broker.NewLinkRepository(db)
	)
	audit.Initialize(audit.NewAuditEventRepository(db))

	// services
	var (
		userService = users.NewUserService(userRepo)
		clientReg   = clients.NewRegistry(clientRepo)
		keyProvider = keys.NewProvider(keyRepo)
		bruteEngine = bruteforce.NewEngine(failureRepo, userRepo)
		consentMgr  = consent.NewManager(consentRepo, cacheStorage, cfg.MasterKey)
		deviceFlow  = device.NewFlow(cacheStorage, cfg.MasterKey, cfg.BaseURL)
		tokenMgr    = tokens.NewManager(tokens.Config{
			MasterKey:   cfg.MasterKey,
			BaseURL:     cfg.BaseURL,
			SessionRepo: sessionRepo,
			RefreshRepo: refreshRepo,
			ClientRepo:  clientRepo,
			KeyProvider: keyProvider,
			Storage:     cacheStorage,
		})
	)
	engine := oauth.NewEngine(oauth.EngineConfig{
		MasterKey:   cfg.MasterKey,
		BaseURL:     cfg.BaseURL,
		UserService: userService,
		ClientReg:   clientReg,
		BruteForce:  bruteEngine,
		TokenMgr:    tokenMgr,
		DeviceFlow:  deviceFlow,
		ConsentMgr:  consentMgr,
		KeyProvider: keyProvider,
		Storage:     cacheStorage,
	})
	identityBroker := broker.New(broker.Config{
		MasterKey: cfg.MasterKey,
		BaseURL:   cfg.BaseURL,
		Providers: providerRepo,
		Links:     linkRepo,
		UserRepo:  userRepo,
		Engine:    engine,
	})

	sweeper := sweep.NewSweeper(cacheStorage, []sweep.Job{
		{Name: "login-failures", Interval: params.FailureSweepInterval, Run: bruteEngine.PurgeStale},
		{Name: "sessions", Interval: params.SessionSweepInterval, Run: tokenMgr.PurgeExpired},
		{Name: "audit-events", Interval: params.AuditSweepInterval, Run: audit.PurgeStale},
	})

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  api.ErrorHandler,
	})
	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if cfg.RateLimit.Enabled {
		router.Use(newRateLimiter(cfg.RateLimit, redisStorage))
	}
	setupAPIRoutes(router, realmRepo, engine, deviceFlow, clientReg, tokenMgr, identityBroker, keyProvider)

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return router.Listen(cfg.ListenAddr)
	})
	group.Go(func() error {
		err := sweeper.Run(groupCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return startHealthCheckServer(groupCtx, params.HealthCheckServerAddr, redisStorage.Conn(), db)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return router.ShutdownWithTimeout(10 * time.Second)
	})
	return group.Wait()
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

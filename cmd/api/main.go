package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/epiguard-backend/api/routes"
	"github.com/angelmondragon/epiguard-backend/internal/activity"
	"github.com/angelmondragon/epiguard-backend/internal/auth"
	"github.com/angelmondragon/epiguard-backend/internal/collaborators"
	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/issuance"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	"github.com/angelmondragon/epiguard-backend/internal/notifications"
	"github.com/angelmondragon/epiguard-backend/internal/risks"
	"github.com/angelmondragon/epiguard-backend/internal/sectors"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/auth/session"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/instance"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/metrics"
	"github.com/angelmondragon/epiguard-backend/pkg/migrate"
	"github.com/angelmondragon/epiguard-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Issuance.Location()
	if err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	issuanceMetrics := metrics.NewIssuanceMetrics(registry)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	userRepoFactory := func(tx *gorm.DB) auth.RegisterUserRepository { return users.NewRepository(tx) }

	activityRecorder, err := activity.NewRecorder(conn, logg)
	if err != nil {
		return err
	}
	securityLog, err := activity.NewSecurityLog(conn, logg)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		Activity:       activityRecorder,
		Security:       securityLog,
		JWTConfig:      cfg.JWT,
		Password:       &cfg.Password,
	})
	if err != nil {
		return err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:         dbClient,
		UserRepoFactory:  userRepoFactory,
		PasswordConfig:   cfg.Password,
		OpenRegistration: cfg.FeatureFlags.OpenRegister,
	})
	if err != nil {
		return err
	}
	provisionService, err := auth.NewProvisionService(auth.ProvisionServiceParams{
		TxRunner:        dbClient,
		UserRepoFactory: userRepoFactory,
		PasswordConfig:  cfg.Password,
	})
	if err != nil {
		return err
	}
	usersService, err := users.NewService(users.ServiceParams{
		Repo:     usersRepo,
		Sessions: sessionManager,
		Security: securityLog,
	})
	if err != nil {
		return err
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return err
	}
	var webhook *notifications.WebhookClient
	if cfg.Webhook.Enabled() {
		webhook, err = notifications.NewWebhookClient(cfg.Webhook.LowStockURL, cfg.Webhook.Timeout)
		if err != nil {
			return err
		}
	}
	lowStock, err := notifications.NewLowStockNotifier(notificationsService, webhook, logg)
	if err != nil {
		return err
	}
	issuedNotifier, err := notifications.NewIssuanceNotifier(notificationsService, logg)
	if err != nil {
		return err
	}

	broadcaster, err := live.NewRedisBroadcaster(redisClient, redisClient, redisClient.LiveChannel(cfg.Live.Channel), logg)
	if err != nil {
		return err
	}

	equipmentRepo := equipment.NewRepository(conn)
	equipmentService, err := equipment.NewService(equipment.ServiceParams{
		Repo:     equipmentRepo,
		Tx:       dbClient,
		Activity: activityRecorder,
		Location: loc,
	})
	if err != nil {
		return err
	}

	ledger := issuance.NewLedger(conn)
	coordinator, err := issuance.NewCoordinator(issuance.CoordinatorParams{
		Tx:          dbClient,
		Equipment:   equipmentRepo,
		Ledger:      ledger,
		MaxAttempts: cfg.Issuance.TxMaxAttempts,
		Timeout:     cfg.Issuance.TxTimeout,
		Backoff:     cfg.Issuance.TxBackoff,
		MaxBackoff:  cfg.Issuance.TxMaxBackoff,
		Metrics:     issuanceMetrics,
		Logger:      logg,
	})
	if err != nil {
		return err
	}
	dispatcher := issuance.NewDispatcher(cfg.Issuance.SideEffectTimeout, logg, issuanceMetrics)
	issuanceService, err := issuance.NewService(issuance.ServiceParams{
		Coordinator:       coordinator,
		Ledger:            ledger,
		Dispatcher:        dispatcher,
		Notifier:          lowStock,
		IssueNotifier:     issuedNotifier,
		Broadcaster:       broadcaster,
		Activity:          activityRecorder,
		Metrics:           issuanceMetrics,
		Logger:            logg,
		LowStockThreshold: cfg.Issuance.LowStockThreshold,
		Location:          loc,
	})
	if err != nil {
		return err
	}

	collaboratorsService, err := collaborators.NewService(collaborators.NewRepository(conn), dbClient)
	if err != nil {
		return err
	}
	sectorsService, err := sectors.NewService(sectors.NewRepository(conn), dbClient)
	if err != nil {
		return err
	}
	risksService, err := risks.NewService(risks.NewRepository(conn), dbClient)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:            dbClient,
			Redis:         redisClient,
			Sessions:      sessionManager,
			Accounts:      usersRepo,
			Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Location:      loc,
			Auth:          authService,
			Register:      registerService,
			Provision:     provisionService,
			Users:         usersService,
			Issuance:      issuanceService,
			Equipment:     equipmentService,
			Collaborators: collaboratorsService,
			Sectors:       sectorsService,
			Risks:         risksService,
			Notifications: notificationsService,
			Live:          broadcaster,
			Security:      securityLog,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"timezone": loc.String(),
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		dispatcher.Wait()
		logg.Info(logCtx, "api server shut down")
		return err
	})
	return g.Wait()
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/launchpilot/launchpilot/modules/api"
	"github.com/launchpilot/launchpilot/pkg/backoff"
	"github.com/launchpilot/launchpilot/pkg/config"
	"github.com/launchpilot/launchpilot/pkg/httpserver"
	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/pkg/ratelimit"
	"github.com/launchpilot/launchpilot/pkg/redis"
	"github.com/launchpilot/launchpilot/storage/postgres"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/mailer"
	"github.com/launchpilot/launchpilot/svc/usage"
	"github.com/launchpilot/launchpilot/svc/user"
	"github.com/launchpilot/launchpilot/svc/webhook"
)

type appConfig struct {
	Env               string        `env:"APP_ENV" envDefault:"production"`
	BaseURL           string        `env:"BASE_URL,required"`
	PlanCatalogPath   string        `env:"PLAN_CATALOG_PATH"`
	MailRetryAttempts int           `env:"MAIL_RETRY_ATTEMPTS" envDefault:"3"`
	UsageBurstLimit   int           `env:"USAGE_BURST_LIMIT" envDefault:"30"`
	UsageBurstWindow  time.Duration `env:"USAGE_BURST_WINDOW" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	var (
		app      appConfig
		logCfg   logger.Config
		pgCfg    pg.Config
		redisCfg redis.Config
		httpCfg  httpserver.Config
		mailCfg  mailer.Config
		priceCfg billing.PriceConfig
		payCfg   webhook.PaddleConfig
		apiCfg   api.Config
	)
	config.MustLoad(&app)
	config.MustLoad(&logCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&mailCfg)
	config.MustLoad(&priceCfg)
	config.MustLoad(&payCfg)
	config.MustLoad(&apiCfg)

	log := logger.NewFromConfig(logCfg, logger.WithService("launchpilot"))
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.Error("failed to apply migrations", logger.Error(err))
		os.Exit(1)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		log.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	users := postgres.NewUserStore(pool)
	subs := postgres.NewSubscriptionStore(pool)
	usageEvents := postgres.NewUsageStore(pool)
	ledger := postgres.NewLedgerStore(pool)
	drips := postgres.NewDripStore(pool)

	billingLog := log.With(logger.Component("billing"))
	classifier := billing.NewClassifier(priceCfg, billingLog)
	catalog, err := billing.LoadCatalog(ctx, catalogSource(app))
	if err != nil {
		log.Error("failed to load plan catalog", logger.Error(err))
		os.Exit(1)
	}
	resolver, err := billing.NewResolver(subs, classifier, catalog, billingLog)
	if err != nil {
		log.Error("failed to build entitlement resolver", logger.Error(err))
		os.Exit(1)
	}

	usageSvc, err := usage.NewService(usageEvents, resolver, log.With(logger.Component("usage")))
	if err != nil {
		log.Error("failed to build usage service", logger.Error(err))
		os.Exit(1)
	}

	renderer, err := mailer.NewRenderer(app.BaseURL, priceCfg)
	if err != nil {
		log.Error("failed to build template renderer", logger.Error(err))
		os.Exit(1)
	}
	sender, err := buildSender(app, mailCfg, log)
	if err != nil {
		log.Error("failed to build email sender", logger.Error(err))
		os.Exit(1)
	}
	dispatcher, err := mailer.NewDispatcher(ledger, sender, renderer, log.With(logger.Component("mailer")))
	if err != nil {
		log.Error("failed to build dispatcher", logger.Error(err))
		os.Exit(1)
	}

	dripSvc, err := drip.NewService(drips, user.NewDirectory(users), resolver, dispatcher,
		log.With(logger.Component("drip")))
	if err != nil {
		log.Error("failed to build drip service", logger.Error(err))
		os.Exit(1)
	}
	userSvc, err := user.NewService(users, subs, dispatcher, dripSvc, log.With(logger.Component("user")))
	if err != nil {
		log.Error("failed to build user service", logger.Error(err))
		os.Exit(1)
	}

	provider, err := webhook.NewPaddleProvider(payCfg)
	if err != nil {
		log.Error("failed to build billing provider", logger.Error(err))
		os.Exit(1)
	}
	reconciler, err := webhook.NewReconciler(users, subs, classifier, dispatcher,
		mailCfg.InternalEmail, log.With(logger.Component("webhook")))
	if err != nil {
		log.Error("failed to build webhook reconciler", logger.Error(err))
		os.Exit(1)
	}

	limiter, err := ratelimit.NewFixedWindow(
		ratelimit.NewRedisStore(redisClient, "usage"),
		app.UsageBurstLimit, app.UsageBurstWindow)
	if err != nil {
		log.Error("failed to build rate limiter", logger.Error(err))
		os.Exit(1)
	}

	router, err := api.Router(apiCfg, api.Deps{
		Resolver:   resolver,
		Usage:      usageSvc,
		Users:      userSvc,
		Drip:       dripSvc,
		Provider:   provider,
		Reconciler: reconciler,
		Renderer:   renderer,
		Sender:     sender,
		RateLimit:  ratelimit.Middleware(limiter, ratelimit.ByClientIP),
		Log:        log,
	})
	if err != nil {
		log.Error("failed to build router", logger.Error(err))
		os.Exit(1)
	}

	root := chi.NewRouter()
	root.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool), redis.Healthcheck(redisClient)))
	root.Mount("/", router)

	srv := httpserver.New(httpCfg, log)
	if err := srv.Run(ctx, root); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func catalogSource(app appConfig) billing.CatalogSource {
	if app.PlanCatalogPath != "" {
		return billing.YAMLCatalogSource{Path: app.PlanCatalogPath}
	}
	return billing.StaticCatalogSource{Plans: billing.DefaultCatalog()}
}

// buildSender picks the transport: file output in development, Postmark
// wrapped in bounded retries everywhere else. Outside development a missing
// Postmark token stops startup; mail must never silently land on disk while
// ledger keys are being consumed.
func buildSender(app appConfig, cfg mailer.Config, log *slog.Logger) (mailer.EmailSender, error) {
	if app.Env == "development" {
		return mailer.NewDevSender(cfg.DevMailDir, log)
	}
	client, err := mailer.NewPostmarkClient(cfg)
	if err != nil {
		return nil, err
	}
	return mailer.NewRetrySender(client, app.MailRetryAttempts, backoff.Default(), log), nil
}

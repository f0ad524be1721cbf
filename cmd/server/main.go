package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/ses-guard/internal/api"
	"github.com/ignite/ses-guard/internal/config"
	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/events"
	"github.com/ignite/ses-guard/internal/metrics"
	"github.com/ignite/ses-guard/internal/pkg/distlock"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/repository/memory"
	"github.com/ignite/ses-guard/internal/repository/postgres"
	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
	"github.com/ignite/ses-guard/internal/service/monitor"
	"github.com/ignite/ses-guard/internal/service/subscription"
	"github.com/ignite/ses-guard/internal/ses"
	"github.com/ignite/ses-guard/internal/storage"
	"github.com/ignite/ses-guard/internal/zerobounce"
)

// notificationRepo is satisfied by both notification backends.
type notificationRepo interface {
	ingest.NotificationWriter
	monitor.NotificationStore
}

type repositories struct {
	notifications notificationRepo
	blacklist     ledger.Repository
	subscriptions subscription.Repository
	// ingest records a notification and its ledger update atomically.
	ingest ingest.Transactor
}

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// connectRedis returns nil when Redis is unconfigured or unreachable; the
// validation cache and subscription locks then fall back to local behavior.
func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("[redis] invalid REDIS_URL, continuing without redis", "error", err.Error())
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("[redis] ping failed, continuing without redis", "addr", opts.Addr, "error", err.Error())
		client.Close()
		return nil
	}
	logger.Info("[redis] connected", "addr", opts.Addr)
	return client
}

func buildRepositories(db *sql.DB, ledgerCfg ledger.Config) repositories {
	if db == nil {
		notes, blacklist := memory.NewNotificationRepo(), memory.NewBlacklistRepo()
		return repositories{
			notifications: notes,
			blacklist:     blacklist,
			subscriptions: memory.NewSubscriptionRepo(),
			ingest:        memory.NewUnitOfWork(notes, blacklist, ledgerCfg),
		}
	}
	return repositories{
		notifications: postgres.NewNotificationRepo(db),
		blacklist:     postgres.NewBlacklistRepo(db),
		subscriptions: postgres.NewSubscriptionRepo(db),
		ingest:        postgres.NewUnitOfWork(db, ledgerCfg),
	}
}

func monitorConfig(cfg *config.Config) monitor.Config {
	r := cfg.Monitor.Rules
	return monitor.Config{
		Enabled: cfg.Monitor.Enabled,
		Bounces: monitor.BounceRule{
			Enabled:               r.Bounces.Enabled,
			MaxBounces:            r.Bounces.MaxBounces,
			CheckBySubject:        r.Bounces.CheckBySubject,
			BlockPermanentBounces: r.Bounces.BlockPermanentBounces,
			DaysToCheck:           r.Bounces.DaysToCheck,
		},
		Complaints: monitor.ComplaintRule{
			Enabled:        r.Complaints.Enabled,
			MaxComplaints:  r.Complaints.MaxComplaints,
			CheckBySubject: r.Complaints.CheckBySubject,
			DaysToCheck:    r.Complaints.DaysToCheck,
		},
		ValidateBeforeSend: cfg.ZeroBounce.ValidateBeforeSend,
	}
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(logger.Options{
		Level:     logger.ParseLevel(cfg.Logging.Level),
		JSON:      cfg.Logging.Format != "console",
		RedactPII: cfg.Logging.RedactPII,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	metrics.Register(prometheus.DefaultRegisterer)

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		logger.Error("[startup] pre-flight check failed", "error", err.Error())
		os.Exit(1)
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = openDatabase(cfg.Database.URL)
		if err != nil {
			logger.Error("[db] connection failed", "host", extractHost(cfg.Database.URL), "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("[db] connected", "host", extractHost(cfg.Database.URL))
	} else {
		logger.Warn("[db] DATABASE_URL not set, state is kept in memory")
	}

	redisClient := connectRedis(cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerCfg := ledger.Config{SoftBounceThreshold: cfg.Blacklist.SoftBounceThreshold}
	repos := buildRepositories(db, ledgerCfg)
	recorder := metrics.Recorder{}

	ledgerSvc := ledger.NewService(repos.blacklist, ledgerCfg)

	validator := zerobounce.NewClient(zerobounce.Config{
		Enabled:  cfg.ZeroBounce.Enabled,
		APIKey:   cfg.ZeroBounce.APIKey,
		BaseURL:  cfg.ZeroBounce.BaseURL,
		CacheTTL: cfg.ZeroBounce.CacheTTL(),
		Timeout:  cfg.ZeroBounce.Timeout(),
	}, redisClient)
	validator.SetObserver(recorder)

	monitorSvc := monitor.NewService(repos.notifications, ledgerSvc, validator, monitorConfig(cfg))

	subscriptionSvc := subscription.NewService(repos.subscriptions, nil,
		distlock.NewFactory(redisClient, db, 30*time.Second),
		subscription.Config{
			AutoConfirm:    cfg.Monitor.AutoConfirmSubscriptions,
			ConfirmTimeout: cfg.Monitor.ConfirmTimeout(),
		})

	dispatcher := events.NewDispatcher(events.WithErrorHook(recorder.ObserveListenerFailure))
	dispatcher.Subscribe("log", events.LogListener())

	if cfg.Archive.Enabled {
		archive, err := storage.NewAWSArchive(ctx, cfg.Archive.S3Bucket, cfg.Archive.DynamoDBTable,
			cfg.Archive.Region, time.Duration(cfg.Archive.TTLDays)*24*time.Hour)
		if err != nil {
			logger.Warn("[archive] disabled", "error", err.Error())
		} else {
			dispatcher.Subscribe("archive", archive.Listener())
			logger.Info("[archive] enabled", "bucket", cfg.Archive.S3Bucket, "table", cfg.Archive.DynamoDBTable)
		}
	}

	if cfg.SES.SyncSuppressionList {
		sesClient, err := ses.NewClient(ctx, cfg.SES, monitorSvc)
		if err != nil {
			logger.Warn("[ses] suppression sync disabled", "error", err.Error())
		} else {
			dispatcher.Subscribe("ses_suppression", sesClient.SuppressionSync(),
				events.NameBounceReceived, events.NameComplaintReceived)
			logger.Info("[ses] suppression list sync enabled", "region", sesClient.Region())
		}
	}

	ingestSvc := ingest.NewService(repos.ingest, subscriptionSvc, dispatcher, recorder, ingest.Config{
		TrackBounces:    cfg.Blacklist.TrackBounces,
		TrackComplaints: cfg.Blacklist.TrackComplaints,
		EmitBounce:      cfg.Events.Bounce,
		EmitComplaint:   cfg.Events.Complaint,
		EmitDelivery:    cfg.Events.Delivery,
	})

	handlers := api.NewHandlers(api.Deps{
		Ingest:       ingestSvc,
		Evaluator:    monitorSvc,
		Blacklist:    ledgerSvc,
		Registry:     subscriptionSvc,
		Credits:      validator,
		Decisions:    recorder,
		MaxBodyBytes: cfg.Webhooks.MaxBodyBytes,
	})
	router := api.SetupRoutes(handlers, api.NewHealthChecker(db, redisClient), api.RouteConfig{
		WebhookPrefix: cfg.Webhooks.Prefix,
		Routes: map[domain.SubscriptionCategory]string{
			domain.CategoryBounces:    cfg.Webhooks.Routes.Bounces,
			domain.CategoryComplaints: cfg.Webhooks.Routes.Complaints,
			domain.CategoryDeliveries: cfg.Webhooks.Routes.Deliveries,
		},
		APIToken: cfg.Server.APIToken,
	})
	if cfg.Server.APIToken == "" {
		logger.Warn("[api] API_TOKEN not set, /api is unauthenticated")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(fmt.Sprintf("%s:%d", host, port), router)
	if err := server.Run(ctx); err != nil {
		logger.Error("[server] stopped unexpectedly", "error", err.Error())
	}
	logger.Info("[server] draining event listeners")
	dispatcher.Wait()
	logger.Info("[server] stopped")
}

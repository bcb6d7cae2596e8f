package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/handler"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/pkg/cache"
	"github.com/noah-isme/activity-points-api/pkg/classifier"
	"github.com/noah-isme/activity-points-api/pkg/config"
	"github.com/noah-isme/activity-points-api/pkg/database"
	"github.com/noah-isme/activity-points-api/pkg/jobs"
	"github.com/noah-isme/activity-points-api/pkg/logger"
	"github.com/noah-isme/activity-points-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/activity-points-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/activity-points-api/pkg/middleware/requestid"
	"github.com/noah-isme/activity-points-api/pkg/notary"
	"github.com/noah-isme/activity-points-api/pkg/reporting"
	"github.com/noah-isme/activity-points-api/pkg/roster"
	"github.com/noah-isme/activity-points-api/pkg/storage"
)

// @title Activity Points API
// @version 1.0.0
// @description Tracks student activity points awarded through complaints and activity rosters.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, locker := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	evidence, localEvidence, err := evidenceStore(cfg)
	if err != nil {
		return err
	}

	notarizer, closeNotary, err := dialNotary(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeNotary()

	metrics := service.NewMetricsService()
	reporter := reporting.NewRollbarReporter(cfg.Rollbar, cfg.Env, logr.Named("reporting"))
	defer reporter.Close()
	validate := validator.New()

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	activities := repository.NewActivityRepository(db)
	complaints := repository.NewComplaintRepository(db)
	ledger := repository.NewLedgerRepository(db)
	notarizations := repository.NewNotarizationRepository(db)
	audits := repository.NewAuditRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, "activity-points:"), metrics, cfg.Leaderboard.CacheTTL, logr.Named("cache"), redisClient != nil)
	links := service.NewLinker(evidence, cfg.Notary.ExplorerURL, logr.Named("links"))
	identity := service.NewIdentityService(users, students, service.IdentityConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logr.Named("identity"))

	notifications := service.NewNotificationService(students, mailSender(cfg, logr), cfg.Mail.AppName, metrics, logr.Named("notifications"))
	notificationQueue := jobs.NewQueue("notifications", notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Logger:     logr.Named("notifications"),
	})
	if cfg.Mail.Enabled {
		notificationQueue.Start(ctx)
		defer notificationQueue.Stop()
		notifications.Attach(notificationQueue)
	}

	var classify jobEnqueuer
	if cfg.Classifier.Enabled {
		classifications := service.NewClassificationService(activities, classifier.New(classifier.Options{
			APIURL:  cfg.Classifier.APIURL,
			APIKey:  cfg.Classifier.APIKey,
			Model:   cfg.Classifier.Model,
			Timeout: cfg.Classifier.Timeout,
		}, nil), logr.Named("classifier"))
		classifyQueue := jobs.NewQueue("classification", classifications.Handle, jobs.QueueConfig{
			Workers:    cfg.Classifier.Workers,
			MaxRetries: cfg.Classifier.MaxRetries,
			RetryDelay: 10 * time.Second,
			Logger:     logr.Named("classifier"),
		})
		classifyQueue.Start(ctx)
		defer classifyQueue.Stop()
		classify = classifyQueue
	}

	activitySvc := service.NewActivityService(activities, complaints, classify, links, audits, metrics, validate, logr.Named("activities"))
	complaintSvc := service.NewComplaintService(complaints, activitySvc, identity, evidence, links, service.EvidenceLimits{
		MaxBytes:     cfg.Evidence.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Evidence.AllowedMIMEs,
	}, validate, logr.Named("complaints"))
	verificationSvc := service.NewVerificationService(service.VerificationDeps{
		Complaints:    complaints,
		Activities:    activities,
		Ledger:        ledger,
		Notarizations: notarizations,
		Notary:        notarizer,
		Locker:        locker,
		Audit:         audits,
		Cache:         cacheSvc,
		Metrics:       metrics,
		Notifier:      notifications,
		Links:         links,
		Reporter:      reporter,
	}, service.VerificationConfig{LockTTL: cfg.Notary.ReceiptTimeout + 30*time.Second}, logr.Named("verification"))
	rosterSvc := service.NewRosterService(service.RosterDeps{
		Activities: activities,
		Students:   students,
		Ledger:     ledger,
		Parser: roster.NewFetcher(nil, roster.Options{
			Timeout:        cfg.Roster.FetchTimeout,
			MaxBytes:       cfg.Roster.MaxBytes,
			HeaderScanRows: cfg.Roster.HeaderScanRows,
		}, logr.Named("roster")),
		Locker:   locker,
		Audit:    audits,
		Cache:    cacheSvc,
		Metrics:  metrics,
		Reporter: reporter,
	}, service.RosterConfig{AwardWorkers: cfg.Roster.AwardWorkers}, logr.Named("rosters"))
	pointsSvc := service.NewPointsService(students, ledger, identity, cacheSvc, links, audits, service.LeaderboardConfig{
		TTL:  cfg.Leaderboard.CacheTTL,
		Size: cfg.Leaderboard.Size,
	}, logr.Named("points"))
	exportSvc := service.NewExportService(students, logr.Named("export"))

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics, logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, routeHandlers{
		identity:     identity,
		me:           handler.NewIdentityHandler(identity),
		activities:   handler.NewActivityHandler(activitySvc),
		complaints:   handler.NewComplaintHandler(complaintSvc, verificationSvc, cfg.Evidence.MaxFileSizeBytes),
		rosters:      handler.NewRosterHandler(rosterSvc),
		students:     handler.NewStudentHandler(pointsSvc),
		reports:      handler.NewReportHandler(exportSvc),
		metrics:      handler.NewMetricsHandler(metrics, db),
		localStorage: localEvidence,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (string, error)
}

// connectRedis returns a nil client and an in-process locker when Redis is
// disabled or unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*redis.Client, cache.Locker) {
	if !cfg.Redis.Enabled {
		return nil, cache.NewLocalLocker()
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process locks and no cache", zap.Error(err))
		return nil, cache.NewLocalLocker()
	}
	return client, cache.NewRedisLocker(client)
}

func evidenceStore(cfg *config.Config) (storage.EvidenceStore, *storage.LocalStorage, error) {
	if cfg.Evidence.Driver == config.EvidenceDriverPinata {
		if cfg.Evidence.PinataJWT == "" {
			return nil, nil, errors.New("PINATA_JWT is required for the pinata evidence driver")
		}
		return storage.NewPinataStore(cfg.Evidence.PinataAPIURL, cfg.Evidence.PinataGatewayURL, cfg.Evidence.PinataJWT, nil), nil, nil
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	publicURL := strings.TrimSuffix(cfg.APIPrefix, "/") + "/evidence/"
	local, err := storage.NewLocalStorage(cfg.Evidence.StorageDir, signer, publicURL)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func dialNotary(ctx context.Context, cfg *config.Config, logr *zap.Logger) (notary.Notarizer, func(), error) {
	if !cfg.Notary.Enabled {
		logr.Info("notarization disabled, approvals are recorded without a transaction hash")
		return nil, func() {}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	n, err := notary.Dial(dialCtx, notary.Config{
		RPCURL:          cfg.Notary.RPCURL,
		ContractAddress: cfg.Notary.ContractAddress,
		PrivateKey:      cfg.Notary.PrivateKey,
		ReceiptTimeout:  cfg.Notary.ReceiptTimeout,
	}, logr.Named("notary"))
	if err != nil {
		return nil, nil, fmt.Errorf("dial notary: %w", err)
	}
	return n, n.Close, nil
}

func mailSender(cfg *config.Config, logr *zap.Logger) mailer.Sender {
	if cfg.Mail.Enabled && cfg.Mail.SendGridAPIKey != "" {
		return mailer.NewSendGridSender(cfg.Mail.SendGridAPIKey, cfg.Mail.AppName, cfg.Mail.FromEmail)
	}
	return mailer.NewLogSender(logr.Named("mail"))
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/exam-prep-api/api"
	"github.com/sahilchouksey/exam-prep-api/config"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/router"
	"github.com/sahilchouksey/exam-prep-api/services"
	"github.com/sahilchouksey/exam-prep-api/services/cron"
	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/services/questionparser"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
	"github.com/sahilchouksey/exam-prep-api/utils/cache"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
)

func SetupAndRunServer() error {

	// Load ENV; a missing .env file is fine outside development
	if err := config.LoadENV(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	log, err := utils.NewLogger(getEnv.LOG_MODE)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	utils.SetDefault(log)
	defer log.Sync()

	if getEnv.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		log.Error("database connection failed; is Postgres running? (make docker-up or make db-up)", "error", err)
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db := store.DB()

	err = database.RunSeeds(context.Background(), db, database.SeedOptions{
		AdminEmail:    getEnv.ADMIN_EMAIL,
		AdminPassword: getEnv.ADMIN_PASSWORD,
		DemoExam:      getEnv.SEED_DEMO_EXAM,
	})
	if err != nil {
		return err
	}

	// Redis backs login lockouts and ingestion quotas; both are skipped without it
	var (
		attempts middleware.AttemptStore
		counter  middleware.QuotaCounter
	)
	if getEnv.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Warn("redis unavailable, brute force protection and quotas disabled", "error", err)
		} else {
			defer redisCache.Close()
			attempts, counter = redisCache, redisCache
		}
	}

	// Optional archive of every extraction call
	var archive *digitalocean.SpacesClient
	if getEnv.INGEST_ARCHIVE_ENABLED {
		archive, err = digitalocean.NewSpacesClient(digitalocean.SpacesConfig{
			AccessKey: getEnv.DO_SPACES_ACCESS_KEY,
			SecretKey: getEnv.DO_SPACES_SECRET_KEY,
			Bucket:    getEnv.DO_SPACES_BUCKET,
			Region:    getEnv.DO_SPACES_REGION,
			Endpoint:  getEnv.DO_SPACES_ENDPOINT,
		})
		if err != nil {
			log.Warn("ingestion archive disabled", "error", err)
			archive = nil
		}
	}

	extractor, err := buildExtractor(getEnv, log)
	if err != nil {
		return err
	}

	examService := services.NewExamService(db)
	ingestionOpts := services.IngestionOptions{
		Timeout: getEnv.ORACLE_TIMEOUT,
		Logger:  log.With("component", "ingestion"),
	}
	if archive != nil {
		ingestionOpts.Archive = archive
	}
	ingestionService := services.NewIngestionService(db, examService, extractor, ingestionOpts)

	// Initialize Cron Manager (only if enabled via environment variable)
	if getEnv.CRON_ENABLED {
		cronOpts := cron.Options{
			IngestionRetention: time.Duration(getEnv.INGEST_LOG_RETENTION_DAYS) * 24 * time.Hour,
			Logger:             log,
		}
		if archive != nil {
			cronOpts.Archive = archive
		}
		cronManager := cron.NewCronManager(db, cronOpts)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warn("failed to start cron jobs", "error", err)
		} else {
			defer cronManager.Stop()
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    getEnv.ALLOWED_ORIGINS,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	})

	router.SetupRoutes(app, router.Dependencies{
		Store: store,
		DB:    db,
		JWTManager: auth.NewJWTManager(auth.JWTConfig{
			Secret: getEnv.JWT_SECRET,
			Issuer: getEnv.JWT_ISSUER,
		}),
		BruteForce:       middleware.NewBruteForceProtection(attempts),
		Quota:            middleware.NewIngestionQuota(counter, getEnv.INGEST_QUOTA_PER_HOUR, time.Hour),
		ExamService:      examService,
		IngestionService: ingestionService,
	})

	// Stop cleanly on SIGINT/SIGTERM so deferred closers run
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		if err := server.Shutdown(30 * time.Second); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	return server.Run()
}

// buildExtractor wires the inference client, rate limiter and oracle into an Extractor
func buildExtractor(env *config.EnviornmentVariable, log *utils.Logger) (*questionparser.Extractor, error) {
	policy, err := questionparser.ParseBulkPolicy(env.INGEST_BULK_POLICY)
	if err != nil {
		return nil, err
	}

	if env.MODEL_ACCESS_KEY == "" {
		log.Warn("MODEL_ACCESS_KEY is not set; extraction calls will fail")
	}

	client := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey:     env.MODEL_ACCESS_KEY,
		BaseURL:    env.INFERENCE_BASE_URL,
		Model:      env.INFERENCE_MODEL,
		Timeout:    env.ORACLE_TIMEOUT,
		MaxRetries: env.INFERENCE_MAX_RETRIES,
	})
	limiter := digitalocean.NewRateLimiter(digitalocean.RateLimiterConfig{
		MaxTokens:  env.INFERENCE_MAX_BURST,
		RefillRate: env.INFERENCE_RATE_PER_SEC,
	})
	oracle := questionparser.NewInferenceOracle(client,
		questionparser.WithRateLimiter(limiter),
		questionparser.WithOracleLogger(log.With("component", "oracle")),
	)

	return questionparser.NewExtractor(oracle, questionparser.Config{
		MaxInputBytes:      env.INGEST_MAX_INPUT_BYTES,
		MaxBulkBlocks:      env.INGEST_MAX_BULK_BLOCKS,
		BulkPolicy:         policy,
		SectionConcurrency: env.INGEST_SECTION_PARALLEL,
	}, log.With("component", "extractor")), nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	contestcontroller "contestjudge/internal/contest/controller"
	contestrepo "contestjudge/internal/contest/repository"
	contestservice "contestjudge/internal/contest/service"
	"contestjudge/internal/judge/controller"
	"contestjudge/internal/judge/executor"
	judgerepo "contestjudge/internal/judge/repository"
	judgeservice "contestjudge/internal/judge/service"
	standingscontroller "contestjudge/internal/standings/controller"
	standingsrepo "contestjudge/internal/standings/repository"
	standingsservice "contestjudge/internal/standings/service"
	submitcontroller "contestjudge/internal/submit/controller"
	submitrepo "contestjudge/internal/submit/repository"
	submitservice "contestjudge/internal/submit/service"
	"contestjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_server.yaml"

type services struct {
	contest   *contestservice.ContestService
	judge     *judgeservice.JudgeService
	submit    *submitservice.SubmitService
	standings *standingsservice.StandingsService
	status    *judgerepo.StatusRepository
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var database db.Database
	if appCfg.Database.DSN != "" {
		database, err = db.Open(appCfg.Database)
		if err != nil {
			logger.Error(ctx, "init database failed", zap.Error(err))
			return
		}
		defer func() {
			_ = database.Close()
		}()
		schema := append(contestrepo.Schema(database.Dialect()), submitrepo.Schema(database.Dialect())...)
		if err := db.ApplySchema(ctx, database, schema); err != nil {
			logger.Error(ctx, "apply schema failed", zap.Error(err))
			return
		}
	}

	contests, err := buildContestRepository(ctx, appCfg.Catalog, database, redisCache)
	if err != nil {
		logger.Error(ctx, "init contests failed", zap.Error(err))
		return
	}

	var submissions submitrepo.SubmissionRepository
	if database != nil {
		submissions = submitrepo.NewSubmissionRepository(database, redisCache)
	} else {
		logger.Warn(ctx, "no database configured, submissions are kept in memory")
		submissions = submitrepo.NewMemorySubmissionRepository()
	}

	var archive *submitservice.SourceArchive
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO.MinIOConfig)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.MinIO.Bucket); err != nil {
			logger.Error(ctx, "ensure source bucket failed", zap.Error(err))
			return
		}
		archive, err = submitservice.NewSourceArchive(objStorage, appCfg.MinIO.Bucket, appCfg.MinIO.Prefix)
		if err != nil {
			logger.Error(ctx, "init source archive failed", zap.Error(err))
			return
		}
	}

	judge0, err := executor.NewJudge0Client(appCfg.Judge0, nil)
	if err != nil {
		logger.Error(ctx, "init judge0 client failed", zap.Error(err))
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	judgeservice.InitMetrics(registry)
	standingsservice.InitMetrics(registry)

	statusRepo := judgerepo.NewStatusRepository(redisCache, appCfg.Judge.StatusTTL)
	judgeSvc, err := judgeservice.NewJudgeService(appCfg.Judge.toServiceConfig(judge0, statusRepo))
	if err != nil {
		logger.Error(ctx, "init judge service failed", zap.Error(err))
		return
	}

	contestSvc := contestservice.NewContestService(contests, time.Now)
	submitSvc, err := submitservice.NewSubmitService(submitservice.Config{
		SubmissionRepo: submissions,
		Contests:       contestSvc,
		Judge:          judgeSvc,
		Status:         statusRepo,
		Cache:          redisCache,
		Archive:        archive,
		Languages:      judge0.Languages(),
		MaxCodeBytes:   appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL: appCfg.Submit.IdempotencyTTL,
		RateLimit:      appCfg.Submit.RateLimit,
		Timeouts:       appCfg.Submit.Timeouts,
	})
	if err != nil {
		logger.Error(ctx, "init submit service failed", zap.Error(err))
		return
	}
	standingsSvc := standingsservice.NewStandingsService(standingsservice.Config{
		Contests:               contestSvc,
		Snapshots:              standingsrepo.NewSnapshotRepository(redisCache),
		PenaltyPerWrongAttempt: appCfg.Standings.PenaltyPerWrongAttempt,
		RankPolicy:             standingsservice.RankPolicy(appCfg.Standings.RankPolicy),
		SnapshotTimeout:        appCfg.Standings.SnapshotTimeout,
	})

	// The submission record is persisted before anyone else learns the outcome.
	judgeSvc.AddHandler(submitSvc)

	var mqClient *mq.KafkaQueue
	if appCfg.Kafka.enabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		judgeSvc.AddHandler(judgerepo.NewMQStatusEventPublisher(mqClient, appCfg.Kafka.FinalTopic))
		err = standingsSvc.SubscribeFinalStatus(ctx, mqClient, appCfg.Kafka.FinalTopic, appCfg.Kafka.ConsumerGroup, appCfg.Kafka.Concurrency)
		if err != nil {
			logger.Error(ctx, "subscribe final status failed", zap.Error(err))
			return
		}
		if err := mqClient.Start(); err != nil {
			logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
			return
		}
	} else {
		judgeSvc.AddHandler(standingsSvc)
	}

	var verifier *middleware.TokenVerifier
	if !strings.EqualFold(appCfg.Auth.Mode, "header") {
		verifier, err = middleware.NewTokenVerifier(appCfg.Auth)
		if err != nil {
			logger.Error(ctx, "init token verifier failed", zap.Error(err))
			return
		}
	}

	svcs := services{
		contest:   contestSvc,
		judge:     judgeSvc,
		submit:    submitSvc,
		standings: standingsSvc,
		status:    statusRepo,
	}
	health := healthChecks{cache: redisCache, database: database}
	httpServer := buildHTTPServer(appCfg.Server, svcs, verifier, registry, health)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if err := judgeSvc.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "judge shutdown failed", zap.Error(err), zap.Int("active", judgeSvc.ActiveCount()))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
}

// buildContestRepository serves contests from the database when one is
// configured, seeding it from the catalog file. Otherwise the catalog is used
// directly.
func buildContestRepository(ctx context.Context, cfg CatalogConfig, database db.Database, cacheClient cache.Cache) (contestrepo.ContestRepository, error) {
	var catalog *contestrepo.Catalog
	if cfg.Path != "" {
		var err error
		catalog, err = contestrepo.LoadCatalog(cfg.Path)
		if err != nil {
			return nil, err
		}
	}
	if database == nil {
		return catalog, nil
	}
	repo := contestrepo.NewSQLContestRepository(database, cacheClient)
	if catalog != nil {
		for _, contest := range catalog.Contests() {
			if err := repo.Save(ctx, contest); err != nil {
				return nil, fmt.Errorf("seed contest %s failed: %w", contest.ID, err)
			}
		}
		logger.Info(ctx, "contest catalog seeded", zap.Int("contests", len(catalog.Contests())))
	}
	return repo, nil
}

func buildHTTPServer(cfg ServerConfig, svcs services, verifier *middleware.TokenVerifier, registry *prometheus.Registry, health healthChecks) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/healthz", health.handle)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	participant := middleware.AuthMiddleware(verifier)
	admin := middleware.AuthMiddleware(verifier, middleware.RoleAdmin)

	contestController := contestcontroller.NewContestController(svcs.contest)
	standingsController := standingscontroller.NewStandingsController(svcs.standings)
	submitController := submitcontroller.NewSubmitController(svcs.submit)
	judgeController := controller.NewJudgeController(svcs.judge, svcs.status)

	api := router.Group("/api/v1")
	api.GET("/contests/:contest_id/phase", contestController.GetPhase)
	api.GET("/contests/:contest_id/standings", standingsController.Get)
	api.GET("/contests/:contest_id/standings/stream", standingsController.Stream)
	api.POST("/contests/:contest_id/submissions", participant, submitController.Create)
	api.GET("/submissions/:id", participant, submitController.Get)
	api.GET("/submissions/:id/source", participant, submitController.GetSource)
	api.POST("/submissions/:id/cancel", admin, submitController.Cancel)

	ops := api.Group("/admin/judge", admin)
	ops.GET("/submissions/:id", judgeController.GetStatus)
	ops.GET("/stats", judgeController.Stats)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

type healthChecks struct {
	cache    cache.Cache
	database db.Database
}

func (h healthChecks) handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	checks := gin.H{"redis": "ok"}
	status := http.StatusOK
	if err := h.cache.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.database != nil {
		checks["database"] = "ok"
		if err := h.database.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, checks)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/arxiv"
	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/db"
	"github.com/xxxsen/paperqa/internal/embedcache"
	"github.com/xxxsen/paperqa/internal/filestore"
	"github.com/xxxsen/paperqa/internal/handler"
	"github.com/xxxsen/paperqa/internal/job"
	"github.com/xxxsen/paperqa/internal/loader"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/middleware"
	"github.com/xxxsen/paperqa/internal/pkg/keylock"
	"github.com/xxxsen/paperqa/internal/repo"
	"github.com/xxxsen/paperqa/internal/schedule"
	"github.com/xxxsen/paperqa/internal/service"
)

type app struct {
	db        *db.Lazy
	search    *service.SearchService
	ingest    *service.IngestService
	chat      *service.ChatService
	scheduler *schedule.CronScheduler
}

func buildApp(cfg *config.Config) (*app, error) {
	handle := db.NewLazy(cfg.Database, true)
	passageRepo := repo.NewPassageRepo(handle)
	historyRepo := repo.NewChatHistoryRepo(handle)
	summaryRepo := repo.NewChatSummaryRepo(handle)
	embedCacheRepo := repo.NewEmbeddingCacheRepo(handle)

	roles, err := ai.BuildRoles(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai: %w", err)
	}
	manager := ai.NewManager(roles.Planner, roles.Summarizer, ai.ManagerConfig{Timeout: cfg.AI.Timeout})

	embedder := roles.Embedder
	if cfg.EmbedCache.EnableDB {
		embedder = embedcache.WithStore(embedder, embedCacheRepo)
	}
	if cfg.EmbedCache.LRUSize > 0 {
		embedder = embedcache.WithLRU(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSec)*time.Second)
	}

	var scorer ai.IScorer
	switch cfg.Reranker.Type {
	case "cross_encoder":
		scorer = ai.NewCrossEncoderScorer(cfg.Reranker.BaseURL, cfg.Reranker.Model, time.Duration(cfg.Reranker.Timeout)*time.Second)
	default:
		scorer = ai.NewEmbeddingScorer(embedder, cfg.Ingest.EmbedConcurrency)
	}

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	locks := keylock.New()

	planner := service.NewPlanner(manager, cfg.Search.PlanCacheSize, time.Duration(cfg.Search.PlanCacheTTLMS)*time.Millisecond)
	searchService := service.NewSearchService(planner, arxiv.NewClient(cfg.Arxiv), scorer, service.SearchConfig{
		MaxResultsPerQuery: cfg.Arxiv.MaxResultsPerQuery,
		RerankTopK:         cfg.Search.RerankTopK,
		ResponseLimit:      cfg.Search.ResponseLimit,
	})
	ingestService := service.NewIngestService(loader.New(store, cfg.Ingest), passageRepo, embedder, locks, service.IngestConfig{
		EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
		Timeout:          time.Duration(cfg.Ingest.Timeout) * time.Second,
	})
	window := service.NewHistoryWindow(historyRepo, summaryRepo, manager, service.HistoryConfig{
		ContextTokens:   cfg.Chat.ContextTokens,
		TriggerFraction: cfg.Chat.TriggerFraction,
		KeepFraction:    cfg.Chat.KeepFraction,
	})
	chatService := service.NewChatService(roles.Chat, service.NewRetriever(passageRepo, embedder), window, historyRepo, locks, service.ChatConfig{
		RetrievalK:    cfg.Chat.RetrievalK,
		MaxToolRounds: cfg.Chat.MaxToolRounds,
		Temperature:   cfg.Chat.Temperature,
		Timeout:       time.Duration(cfg.Chat.Timeout) * time.Second,
	})
	cleanupService := service.NewCleanupService(passageRepo, passageRepo, historyRepo, summaryRepo, locks,
		time.Duration(cfg.SessionTTLDays)*24*time.Hour)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(embedCacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.Cron.EmbeddingCacheCleanup); err != nil {
		return nil, fmt.Errorf("schedule embedding cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewStaleSessionCleanupJob(cleanupService), cfg.Cron.SessionCleanup); err != nil {
		return nil, fmt.Errorf("schedule session cleanup: %w", err)
	}

	return &app{
		db:        handle,
		search:    searchService,
		ingest:    ingestService,
		chat:      chatService,
		scheduler: scheduler,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		logutil.GetLogger(context.Background()).Error("close db failed", zap.Error(err))
	}
}

func runServer(cfg *config.Config) error {
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("reranker", cfg.Reranker.Type),
		zap.String("file_store", cfg.FileStore.Type),
	)
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	deps := handler.RouterDeps{
		Papers:  handler.NewPaperHandler(a.search, a.ingest),
		Chat:    handler.NewChatHandler(a.chat),
		System:  handler.NewSystemHandler(a.db),
		Metrics: metrics.Handler(),
	}
	engine, err := webapi.NewEngine(
		"/api",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowOrigins),
			middleware.RateLimit(time.Duration(cfg.RateLimitWindowMS)*time.Millisecond),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	go func() {
		logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

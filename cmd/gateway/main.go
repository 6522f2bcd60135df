// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"admin-gateway/internal/audit"
	"admin-gateway/internal/classify"
	"admin-gateway/internal/common/config"
	"admin-gateway/internal/common/database"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/common/observability"
	"admin-gateway/internal/conversation"
	"admin-gateway/internal/generator"
	"admin-gateway/internal/guardrail"
	"admin-gateway/internal/language"
	"admin-gateway/internal/notify"
	"admin-gateway/internal/pipeline"
	"admin-gateway/internal/prompt"
	"admin-gateway/internal/retrieval"
	"admin-gateway/internal/server"
	"admin-gateway/internal/topics"
	"admin-gateway/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting admin gateway...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing := observability.NewTracing(cfg.App.Name, cfg.App.TracingURL)
	defer tracing.Shutdown()

	ctx := context.Background()

	// --- Topic registry (fatal on schema errors) ---
	registry, err := topics.Load(cfg.Topics.RegistryPath)
	if err != nil {
		zapLog.Fatal("topic registry load failed", zap.Error(err))
	}
	index := topics.BuildIndex(registry, log)
	zapLog.Info("Topic registry loaded",
		zap.Int("topics", len(registry.All())),
		zap.Int("keywords", index.Size()),
	)

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Zeebe client (optional) ---
	var workflowClient *workflow.Client
	if cfg.Workflow.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			workflowClient, err = workflow.NewClient(cfg.Workflow)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer workflowClient.Close()
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- OpenAI client ---
	openaiCfg := openai.DefaultConfig(cfg.APIs.OpenAI.APIKey)
	if cfg.APIs.OpenAI.BaseURL != "" {
		openaiCfg.BaseURL = cfg.APIs.OpenAI.BaseURL
	}
	openaiClient := openai.NewClientWithConfig(openaiCfg)

	// --- Assemble the turn collaborators ---
	classifier := classify.NewClassifier(registry, index, log)
	intents := classify.NewIntentClassifier(openaiClient, cfg.APIs.OpenAI.GuardModel, log)

	heuristic := guardrail.NewHeuristicDetector(cfg.Guardrail.ContinuationMaxWords, log)
	var continuation guardrail.ContinuationDetector = heuristic
	if cfg.Guardrail.ContinuationMode == "model" {
		continuation = guardrail.NewModelDetector(openaiClient, cfg.APIs.OpenAI.GuardModel, heuristic, log)
	}

	verifier := generator.NewVerifier(openaiClient, cfg.APIs.OpenAI.GuardModel, log)
	engine := guardrail.NewEngine(classifier, continuation, guardrail.NewInjectionGuard(log), verifier, guardrail.EngineOptions{
		InjectionEnabled:    cfg.Guardrail.InjectionEnabled,
		GroundednessEnabled: cfg.Guardrail.GroundednessEnabled,
	}, log)

	pipe := pipeline.New(
		pipeline.NewLLMGoalExtractor(openaiClient, cfg.APIs.OpenAI.GuardModel),
		pipeline.NewLLMQueryRewriter(openaiClient, cfg.APIs.OpenAI.GuardModel),
		intents,
		pipeline.NewLLMProfileExtractor(openaiClient, cfg.APIs.OpenAI.GuardModel),
		log,
	)

	store := conversation.NewStore(redis.GetClient(), time.Duration(cfg.Database.Redis.SessionTTL)*time.Minute, log)
	retriever := retrieval.NewRetriever(esClient.Client, cfg.Retrieval.Index, cfg.Retrieval.TopK,
		time.Duration(cfg.Retrieval.Timeout)*time.Millisecond, obs, log)
	gen := generator.NewGenerator(openaiClient, cfg.APIs.OpenAI.ChatModel, cfg.APIs.OpenAI.MaxRetries, obs, log)
	trail := audit.NewTrail(pg.DB, log)

	var escalator *notify.Escalator
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		escalator, err = notify.New(ctx, cfg.Notifications, log)
		if err != nil {
			zapLog.Warn("notification escalator unavailable", zap.Error(err))
		}
	}

	deps := server.ChatHandlerDeps{
		Store:     store,
		Pipeline:  pipe,
		Engine:    engine,
		Prompts:   prompt.NewBuilder(registry),
		Retriever: retriever,
		Generator: gen,
		Trail:     trail,
		Languages: language.NewResolver(log),
		Obs:       obs,
		Tracer:    tracing,
	}
	if workflowClient != nil {
		deps.Dispatcher = workflow.NewDispatcher(workflowClient.GetClient(), cfg.Workflow, log)
	}
	if escalator != nil {
		deps.Escalator = escalator
	}
	chat := server.NewChatHandler(deps, log)

	probes := []server.ReadinessProbe{
		{Name: "redis", Check: redis.Ping},
		{Name: "postgres", Check: pg.Ping},
		{Name: "elasticsearch", Check: esClient.Ping},
	}
	if workflowClient != nil {
		probes = append(probes, server.ReadinessProbe{Name: "zeebe", Check: workflowClient.HealthCheck})
	}

	srv := server.New(*cfg, chat, probes, log)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Admin gateway started", zap.String("addr", cfg.Server.Addr()))

	// --- Graceful shutdown on SIGINT/SIGTERM ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown error", zap.Error(err))
	}
	zapLog.Info("Admin gateway stopped")
}

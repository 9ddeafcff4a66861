package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/db"
	dbRedis "github.com/clinevid/clinevid/internal/db/redis"
	"github.com/clinevid/clinevid/internal/domain"
	logpkg "github.com/clinevid/clinevid/internal/logger"
	"github.com/clinevid/clinevid/internal/metrics"
	"github.com/clinevid/clinevid/internal/repository/corpus"
	"github.com/clinevid/clinevid/internal/repository/embcache"
	chiTransport "github.com/clinevid/clinevid/internal/transport/chi"
	"github.com/clinevid/clinevid/internal/transport/embedhttp"
	openaiTransport "github.com/clinevid/clinevid/internal/transport/openai"
	"github.com/clinevid/clinevid/internal/transport/qdrant"
	answeruc "github.com/clinevid/clinevid/internal/usecase/answer"
	endpointuc "github.com/clinevid/clinevid/internal/usecase/endpoint"
	normalizeuc "github.com/clinevid/clinevid/internal/usecase/normalize"
	rankuc "github.com/clinevid/clinevid/internal/usecase/rank"
	statusuc "github.com/clinevid/clinevid/internal/usecase/status"
	synthesizeuc "github.com/clinevid/clinevid/internal/usecase/synthesize"
	"github.com/clinevid/clinevid/internal/version"
)

const (
	endpointLLM       = "llm"
	endpointEmbedding = "embedding"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting clinevid API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus_addr", cfg.Corpus.Addr),
		zap.String("llm_base_url", cfg.LLM.BaseURL),
	)

	// Vector corpus (read-only at query time)
	store, err := qdrant.New(cfg.Corpus.Addr, cfg.Corpus.ScrollPageSize)
	if err != nil {
		logger.Fatal("Failed to connect to corpus store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Corpus store not reachable", zap.Error(err))
	}
	logger.Info("Connected to corpus store")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	corpusRepo := corpus.New(store, cfg.Corpus.PaperCollection, cfg.Corpus.FactCollection, logger)

	// Optional embedding cache
	var cache db.Store
	if len(cfg.Cache.Addrs) > 0 {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, 10*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache")
	}

	// Model endpoint transports
	embedClient := embedhttp.NewClient(embedhttp.Config{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Timeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	generator := openaiTransport.NewGenerator(&openaiTransport.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})

	// Resilience manager owns the sleep/wake/retry state machine
	manager := endpointuc.New(cfg.Resilience, logger)
	manager.Register(endpointEmbedding, embedClient)
	manager.Register(endpointLLM, generator)

	multilingualEmbedder := buildEmbedder(
		embedClient.MultilingualEmbedder(), manager, cache, "multilingual", &cfg, logger,
	)
	conceptEmbedder := buildEmbedder(
		embedClient.ConceptEmbedder(), manager, cache, "concept", &cfg, logger,
	)

	resilientGen := &resilientGenerator{inner: generator, manager: manager}

	genOpts := domain.GenerateOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}

	// Use case services
	normalizeSvc := normalizeuc.New(resilientGen, normalizeuc.ScriptDetector{}, logger)
	rankSvc := rankuc.New(corpusRepo, multilingualEmbedder, conceptEmbedder, cfg.Retrieval, logger)
	synthesizeSvc := synthesizeuc.New(resilientGen, cfg.Retrieval.MapConcurrency, genOpts, logger)
	statusSvc := statusuc.New(manager)
	answerSvc := answeruc.New(
		normalizeSvc, rankSvc, synthesizeSvc, resilientGen, manager,
		cfg.Retrieval, genOpts, logger,
	)

	server := chiTransport.NewServer(answerSvc, statusSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// Write timeout covers the whole SSE stream, so it tracks the query
		// deadline rather than a request/response round trip.
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the query-embedder chain:
// REST client -> resilient -> cached -> instruction prefix.
func buildEmbedder(
	base domain.Embedder,
	manager *endpointuc.Manager,
	cache db.Store,
	space string,
	cfg *config.Config,
	logger *zap.Logger,
) domain.Embedder {
	var emb domain.Embedder = &resilientEmbedder{inner: base, manager: manager}

	if cache != nil {
		emb = embcache.New(
			emb, cache, space,
			time.Duration(cfg.Cache.TTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, logger,
		)
	}

	// The multilingual model is asymmetric: queries carry an instruction
	// prefix that indexed documents were embedded without.
	if space == "multilingual" && cfg.Embedding.QueryPrefix != "" {
		emb = domain.NewInstructionEmbedder(emb, cfg.Embedding.QueryPrefix)
	}
	return emb
}

// endpointCaller funnels calls through the resilience manager's retry
// schedule. Satisfied by *endpointuc.Manager.
type endpointCaller interface {
	Call(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// resilientEmbedder routes Embed calls through the cold-start retry schedule.
type resilientEmbedder struct {
	inner   domain.Embedder
	manager endpointCaller
}

func (e *resilientEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var result domain.EmbeddingResult
	err := e.manager.Call(ctx, endpointEmbedding, func(ctx context.Context) error {
		var callErr error
		result, callErr = e.inner.Embed(ctx, text)
		return callErr
	})
	return result, err
}

// resilientGenerator routes inference through the cold-start retry schedule.
// Streaming retries only cover attempts that fail before the first token.
type resilientGenerator struct {
	inner   domain.StreamGenerator
	manager endpointCaller
}

func (g *resilientGenerator) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	var out string
	err := g.manager.Call(ctx, endpointLLM, func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.Generate(ctx, prompt, opts)
		return callErr
	})
	return out, err
}

func (g *resilientGenerator) GenerateStream(
	ctx context.Context, prompt string, opts domain.GenerateOptions, emit func(token string),
) (string, error) {
	var out string
	started := false
	err := g.manager.Call(ctx, endpointLLM, func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.GenerateStream(ctx, prompt, opts, func(tok string) {
			started = true
			emit(tok)
		})
		if callErr != nil && started && errors.Is(callErr, domain.ErrEndpointSleeping) {
			// Tokens already reached the caller and a retry would
			// duplicate them. %v keeps ErrEndpointSleeping out of the
			// chain so Call will not retry.
			return fmt.Errorf("stream failed mid-answer: %v", callErr)
		}
		return callErr
	})
	return out, err
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

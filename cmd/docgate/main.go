package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/cluster"
	"github.com/kailas-cloud/docgate/internal/config"
	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/db/driver"
	"github.com/kailas-cloud/docgate/internal/idgen"
	logpkg "github.com/kailas-cloud/docgate/internal/logger"
	"github.com/kailas-cloud/docgate/internal/metrics"
	"github.com/kailas-cloud/docgate/internal/provision"
	documentrepo "github.com/kailas-cloud/docgate/internal/repository/document"
	chiTransport "github.com/kailas-cloud/docgate/internal/transport/chi"
	documentuc "github.com/kailas-cloud/docgate/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docgate/internal/usecase/health"
	"github.com/kailas-cloud/docgate/internal/version"
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

	logger.Info("Starting docgate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cluster", cfg.Cluster.Name),
		zap.String("driver", cfg.Cluster.Driver),
		zap.Int("nodes", len(cfg.Cluster.Nodes)),
	)

	// Register backend metrics explicitly (no init())
	metrics.RegisterBackendMetrics()

	clusters := cluster.NewCache(&driver.Connector{
		ReadyTimeout: time.Duration(cfg.Cluster.ReadinessTimeout) * time.Second,
		Logger:       logger,
	}, logger)
	defer clusters.Close()

	ctx := context.Background()
	conn, err := clusters.Get(ctx, descriptor(cfg.Cluster))
	if err != nil {
		logger.Fatal("Failed to connect to cluster", zap.Error(err))
	}
	logger.Info("Connected to cluster", zap.String("cluster", cfg.Cluster.Name))

	provisioning := provisionCheck(ctx, cfg.Provisioning, conn, logger)

	var idOpts []idgen.Option
	if epoch := cfg.IDGen.Epoch(); !epoch.IsZero() {
		idOpts = append(idOpts, idgen.WithEpoch(epoch))
	}
	ids, err := idgen.New(cfg.IDGen.NodeID, idOpts...)
	if err != nil {
		logger.Fatal("Failed to create id allocator", zap.Error(err))
	}

	ns, err := db.NewNamespace(cfg.Documents.Index, cfg.Documents.Type)
	if err != nil {
		logger.Fatal("Invalid default namespace", zap.Error(err))
	}

	docSvc := documentuc.New(documentrepo.New(conn), ids, ns, logger).
		WithUpdatePolicy(documentuc.UpdatePolicy(cfg.Documents.UpdatePolicy)).
		WithIDMatch(documentuc.IDMatch(cfg.Documents.IDMatch)).
		WithMaxBatchSize(cfg.Documents.MaxBatchSize)

	healthSvc := healthuc.New(conn)
	if provisioning != nil {
		healthSvc = healthSvc.WithCheck("provisioning", provisioning)
	}

	server := chiTransport.NewServer(docSvc, healthSvc, logger).
		WithPagination(cfg.Documents.DefaultPageSize, cfg.Documents.MaxPageSize)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
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

func descriptor(c config.ClusterConfig) cluster.Descriptor {
	nodes := make([]cluster.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		nodes = append(nodes, cluster.Node{Host: n.Host, TransportPort: n.TransportPort})
	}
	return cluster.Descriptor{
		Name:      c.Name,
		Driver:    c.Driver,
		Scheme:    c.Scheme,
		Nodes:     nodes,
		HTTPPorts: c.HTTPPorts,
		Username:  c.Username,
		Password:  c.Password,
		APIKey:    c.APIKey,
		KeyPrefix: c.KeyPrefix,
	}
}

// provisionCheck loads indexes and seeds from the provisioning directory and
// returns a health check reporting the outcome. It returns nil when
// provisioning is disabled.
func provisionCheck(
	ctx context.Context,
	cfg config.ProvisioningConfig,
	backend provision.Backend,
	logger *zap.Logger,
) healthuc.Checker {
	if !cfg.Enabled {
		return nil
	}
	report, err := provision.New(backend, logger).Run(ctx, os.DirFS(cfg.Dir))
	if err != nil {
		logger.Fatal("Provisioning aborted", zap.Error(err))
	}
	logger.Info("Provisioning finished",
		zap.String("dir", cfg.Dir),
		zap.Int("indexes_created", report.IndexesCreated),
		zap.Int("indexes_existing", report.IndexesExisting),
		zap.Int("documents_loaded", report.DocumentsLoaded),
		zap.Int("failed", report.Failed()),
	)
	return healthuc.CheckerFunc(func(context.Context) error {
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("provisioning: %d items failed", n)
		}
		return nil
	})
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
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if index := rctx.URLParam("index"); index != "" {
					fields = append(fields, zap.String("index", index), zap.String("type", rctx.URLParam("type")))
				}
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}

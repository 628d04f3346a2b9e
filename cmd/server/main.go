package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	api "github.com/dpup/rabbitmiles/server/api/v1"
	"github.com/dpup/rabbitmiles/server/internal/cache"
	"github.com/dpup/rabbitmiles/server/internal/clients/trailfeed"
	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/dispatch"
	"github.com/dpup/rabbitmiles/server/internal/invoke"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/objectstore"
	"github.com/dpup/rabbitmiles/server/internal/services"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

func main() {
	// Loggers travel on the context; the prefab server shares this one
	ctx, cancel := context.WithCancel(logging.EnsureLogger(context.Background()))
	defer cancel()

	// Load configuration using Prefab's config system
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Trail geometry
	objects, err := objectstore.New(ctx, appConfig.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	geometryCache := cache.New[*trail.Network]()
	geometryCache.StartPeriodicCleanup(ctx, time.Minute)
	geometry := trail.NewGeometryStore(objects, appConfig.Trails, trail.WithCache(geometryCache), trail.WithMetrics(m))

	// Activity storage
	db, err := store.Open(ctx, appConfig.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	activities := store.NewSQLStore(db)

	// Services
	matcher := services.NewMatchService(activities, geometry, appConfig.Trails.ToleranceMeters, services.WithMatchMetrics(m))
	matchHandler := invoke.NewMatchHandler(matcher)

	invoker, closeInvoker, err := newInvoker(ctx, appConfig.Dispatch, matchHandler, m)
	if err != nil {
		log.Fatalf("Failed to initialize dispatch: %v", err)
	}

	backfill := services.NewBackfillService(activities, invoker, appConfig.Backfill.Limit, m)
	feed := trailfeed.NewClient(appConfig.Trails.DownloadTimeout, appConfig.Trails.MaxRetries)
	refresher := services.NewTrailRefreshService(feed, objects, geometry, appConfig.Trails)

	log.Printf("Trail matching server starting")
	log.Printf("Storage backend: %s (bucket %s)", appConfig.Storage.Backend, appConfig.Trails.Bucket)
	log.Printf("Database driver: %s", appConfig.Database.Driver)
	log.Printf("Dispatch mode: %s", appConfig.Dispatch.Mode)

	// Drain the backlog on a schedule
	periodicBackfill := services.NewPeriodicBackfillService(backfill, appConfig.Backfill.Schedule, appConfig.Backfill.Limit)
	if appConfig.Backfill.Enabled {
		if err := periodicBackfill.Start(ctx); err != nil {
			log.Fatalf("Failed to start periodic backfill: %v", err)
		}
	}

	// Create Prefab server with GRPC reflection enabled
	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithContext(ctx),
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/metrics", promhttp.Handler().ServeHTTP),
	)

	grpcServer := invoke.NewServer(
		matchHandler,
		invoke.NewBackfillHandler(backfill),
		invoke.NewRefreshHandler(refresher),
		invoke.NewResetHandler(backfill),
	)
	api.RegisterTrailMatchServiceServer(server.ServiceRegistrar(), grpcServer)

	// Register gateway handlers using Prefab's gateway args
	gatewayCtx, mux, endpoint, opts := server.GatewayArgs()
	if err := api.RegisterTrailMatchServiceHandlerFromEndpoint(gatewayCtx, mux, endpoint, opts); err != nil {
		log.Fatalf("Failed to register TrailMatch service gateway: %v", err)
	}
	if err := invoke.NewKMLHandler(activities, geometry, appConfig.Trails.ToleranceMeters).Register(mux); err != nil {
		log.Fatalf("Failed to register KML routes: %v", err)
	}

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Printf("Server failed: %v", err)
	}

	periodicBackfill.Stop()
	cancel()
	closeInvoker()
}

// newInvoker creates the dispatcher for backfill runs. The returned close
// function drains queued in-process invocations on shutdown.
func newInvoker(ctx context.Context, cfg config.DispatchConfig, matchHandler *invoke.MatchHandler, m *metrics.Metrics) (dispatch.Invoker, func(), error) {
	switch cfg.Mode {
	case "lambda":
		invoker, err := dispatch.NewLambdaInvoker(ctx, cfg.Functions)
		if err != nil {
			return nil, nil, err
		}
		return invoker, func() {}, nil
	case "local":
		invoker := dispatch.NewLocalInvoker(cfg, dispatch.WithMetrics(m))
		invoker.Register(services.MatchTarget, matchHandler.Run)
		return invoker, invoker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown dispatch mode %q", cfg.Mode)
	}
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>rabbitmiles trail matching</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">rabbitmiles trail matching</span>

Measures how much of each recorded activity was ridden or run on the
Swamp Rabbit Trail and its connectors.

<span class="header">API Endpoints:</span>

  POST /api/v1/activities/{activity_id}/match          - Match one activity
  POST /api/v1/backfill                                - Queue unmatched activities
  POST /api/v1/trails/refresh                          - Download fresh trail data
  POST /api/v1/athletes/{athlete_id}/reset-matching    - Re-match an athlete's activities

  <a href="/api/v1/trails/kml">GET /api/v1/trails/kml</a>                               - Trail network as KML
  GET /api/v1/activities/{activity_id}/kml             - Activity with on-trail sections as KML

  <a href="/metrics">GET /metrics</a>                                         - Prometheus metrics

<span class="header">Example Usage:</span>
  curl -X POST /api/v1/activities/12345/match
  curl -X POST -d '{"limit": 25}' /api/v1/backfill
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}

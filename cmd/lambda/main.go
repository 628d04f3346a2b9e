package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dpup/prefab/logging"
	"github.com/prometheus/client_golang/prometheus"

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

// Lambda entrypoint for the matcher, the backfill scheduler and the trail
// refresh. TRAILMATCH_FUNCTION selects which one this deployment runs.
func main() {
	logger := logging.NewProdLogger()
	ctx := logging.With(context.Background(), logger)

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Metrics are not scraped inside Lambda
	m := metrics.New(prometheus.NewRegistry())

	objects, err := objectstore.New(ctx, appConfig.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// The geometry cache lives as long as the warm execution environment
	geometry := trail.NewGeometryStore(objects, appConfig.Trails, trail.WithMetrics(m))

	var handler invoke.HandlerFunc

	switch function := os.Getenv("TRAILMATCH_FUNCTION"); function {
	case "match":
		activities := openStore(ctx, appConfig.Database)
		matcher := services.NewMatchService(activities, geometry, appConfig.Trails.ToleranceMeters, services.WithMatchMetrics(m))
		handler = invoke.NewMatchHandler(matcher).Handle

	case "backfill":
		activities := openStore(ctx, appConfig.Database)
		invoker, err := dispatch.NewLambdaInvoker(ctx, appConfig.Dispatch.Functions)
		if err != nil {
			log.Fatalf("Failed to initialize Lambda dispatch: %v", err)
		}
		backfill := services.NewBackfillService(activities, invoker, appConfig.Backfill.Limit, m)
		handler = invoke.NewBackfillHandler(backfill).Handle

	case "reset":
		activities := openStore(ctx, appConfig.Database)
		backfill := services.NewBackfillService(activities, nil, appConfig.Backfill.Limit, m)
		handler = invoke.NewResetHandler(backfill).Handle

	case "refresh":
		feed := trailfeed.NewClient(appConfig.Trails.DownloadTimeout, appConfig.Trails.MaxRetries)
		refresher := services.NewTrailRefreshService(feed, objects, geometry, appConfig.Trails)
		handler = invoke.NewRefreshHandler(refresher).Handle

	default:
		log.Fatalf("TRAILMATCH_FUNCTION must be one of match, backfill, reset, refresh; got %q", function)
	}

	lambda.Start(newHandler(logger, handler))
}

// newHandler adapts a payload handler to the Lambda runtime. The runtime
// supplies a bare context per event, so the logger is attached here.
func newHandler(logger logging.Logger, handler invoke.HandlerFunc) func(context.Context, json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, event json.RawMessage) (json.RawMessage, error) {
		ctx = logging.With(ctx, logger)
		return respond(handler(ctx, event))
	}
}

// respond returns error payloads as results so that failed matches are not
// retried by Lambda; the backlog query picks them up again. Bad requests and
// failures without a payload are returned as errors.
func respond(payload []byte, err error) (json.RawMessage, error) {
	if err != nil && (payload == nil || errors.Is(err, invoke.ErrBadRequest)) {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) *store.SQLStore {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return store.NewSQLStore(db)
}

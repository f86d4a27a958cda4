package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"proteinshake/internal/config"
	"proteinshake/internal/queue"
	"proteinshake/internal/storage"
	"proteinshake/internal/util"
	"proteinshake/pkg/cache"
	"proteinshake/pkg/dataset"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/logger/console"
	"proteinshake/pkg/store"
	storepgx "proteinshake/pkg/store/pgx"
)

func main() {
	manifestPath := flag.String("manifest", "", "run the builds listed in this YAML manifest and exit")
	flag.Parse()

	cfg, err := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg != nil && cfg.Debug,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}
	if *manifestPath == "" {
		*manifestPath = util.GetEnv("MANIFEST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := queue.NewRunnerParams{
		Root:     cfg.DataRoot,
		Parallel: cfg.Parallel,
	}

	// Init s3 client
	if cfg.S3.Enabled() {
		s3Params := storage.S3Params{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}
		client, err := storage.NewS3Client(ctx, s3Params)
		if err != nil {
			logger.Fatal("Failed to create s3 client", "err", err)
		}
		params.Artifacts = storage.NewStore(client, s3Params)
		params.Sources = func(name string) dataset.Source {
			return storage.NewSource(client, cfg.S3.Bucket, path.Join(cfg.S3.RawPrefix, name))
		}
	}

	// Init pgx client
	var builds store.BuildStore
	if cfg.DatabaseURL != "" {
		st, pool, err := storepgx.NewStore(ctx, storepgx.NewStoreParams{DatabaseURL: cfg.DatabaseURL, Migrate: true})
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pool.Close()
		params.Index = st
		params.Builds = st
		params.Leases = st
		builds = st
	}

	// Init redis graph cache
	if cfg.RedisAddr != "" {
		ttl, err := time.ParseDuration(cfg.RedisTTL)
		if err != nil {
			logger.Fatal("Invalid REDIS_TTL", "value", cfg.RedisTTL, "err", err)
		}
		gc, err := cache.NewGraphCache(cache.NewGraphCacheParams{Addr: cfg.RedisAddr, TTL: ttl})
		if err != nil {
			logger.Fatal("Unable to connect to redis", "err", err)
		}
		defer gc.Close()
		params.GraphCache = gc
	}

	if *manifestPath != "" {
		runner := queue.NewRunner(params)
		if !runManifest(ctx, runner, builds, *manifestPath) {
			os.Exit(1)
		}
		return
	}

	if !cfg.RabbitMQ.Enabled() {
		logger.Fatal("Neither a manifest nor RabbitMQ is configured")
	}

	// Init rabbitmq
	conn, err := queue.Connect(cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.BuildQueue}); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}
	params.Publisher = ch
	runner := queue.NewRunner(params)

	// A separate consumer channel with prefetch=1 so only one build runs
	// per worker.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(queue.BuildQueue, "build_queue_consumer", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.BuildQueue, "err", err)
	}

	logger.Info("Listening for messages")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case d, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.BuildQueue)
				return
			}
			handleDelivery(ctx, runner, ch, d)
			logger.Info("Waiting for next message")
		}
	}
}

func handleDelivery(ctx context.Context, runner *queue.Runner, ch queue.Publisher, d amqp.Delivery) {
	startTime := time.Now()

	msg, err := queue.ParseBuildMsg(d.Body)
	if err != nil {
		logger.Error("Dropping invalid message", "err", err)
		queue.HandleFailure(ch, d, queue.BuildQueue, 0)
		return
	}

	report, err := runner.Run(ctx, msg)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("Failed to ack message", "err", ackErr)
		}
		data, _ := json.Marshal(report)
		logger.Info("Message processed successfully", "build_id", msg.BuildID, "report", string(data), "duration", time.Since(startTime))
	case ctx.Err() != nil:
		// Interrupted by shutdown; let another worker pick it up.
		_ = d.Nack(false, true)
	case queue.IsPermanent(err):
		logger.Error("Build rejected", "build_id", msg.BuildID, "err", err)
		queue.HandleFailure(ch, d, queue.BuildQueue, 0)
	default:
		logger.Error("Error processing message", "build_id", msg.BuildID, "err", err)
		queue.HandleFailure(ch, d, queue.BuildQueue, queue.MaxRetries)
	}
}

// runManifest runs every build of the manifest in order and reports whether
// all of them succeeded.
func runManifest(ctx context.Context, runner *queue.Runner, builds store.BuildStore, manifestPath string) bool {
	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		logger.Fatal("Failed to load manifest", "path", manifestPath, "err", err)
	}

	ok := true
	for _, b := range m.Builds {
		msg, err := queue.NewBuildMsg(b)
		if err != nil {
			logger.Fatal("Failed to create build id", "err", err)
		}
		if builds != nil {
			err := builds.CreateBuild(ctx, store.Build{
				ID:      msg.BuildID,
				Dataset: b.DatasetName(),
				Kind:    b.Kind,
				Status:  store.BuildRunning,
			})
			if err != nil {
				logger.Warn("Failed to register build", "build_id", msg.BuildID, "err", err)
			}
		}
		if _, err := runner.Run(ctx, msg); err != nil {
			logger.Error("Build failed", "dataset", b.DatasetName(), "err", err)
			ok = false
			if ctx.Err() != nil {
				return false
			}
		}
	}
	return ok
}

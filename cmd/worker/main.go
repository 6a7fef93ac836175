package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/config"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/lease"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/metrics"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/queue"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/storage"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/timing"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger/console"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	cfg, err := config.LoadReaderConfig()
	if err != nil {
		logger.Fatal("Failed to load MDSplus configuration", "err", err)
	}
	m := metrics.New()
	deps := queue.PrefetchDeps{
		Reader: &w7x.Reader{Config: cfg, Observer: m.ObserveNode},
	}

	// Fetch log
	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		if err := timing.Migrate(dbURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
		pgConn, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()
		deps.Record = func(ctx context.Context, records []timing.FetchRecord) error {
			return timing.AddFetchRecords(ctx, pgConn, records)
		}
		locker := lease.New(pgConn)
		deps.Lock = func(ctx context.Context, expID string, fn func(context.Context) error) error {
			return locker.Hold(ctx, lease.Key(expID), fn)
		}
	}

	// Export storage
	if util.GetEnv("AWS_BUCKET") != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		deps.Export = func(ctx context.Context, key string, obj *dataobj.DataObject) error {
			return storage.PutDataObject(ctx, client, key, obj)
		}
	}

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}

	// One message at a time: prefetch jobs hold an MDSplus connection.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if port := util.GetEnv("METRICS_PORT"); port != "" {
		srv := &http.Server{Addr: ":" + port, Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	for _, queueName := range queue.Queues {
		msgs, err := consumerCh.Consume(
			queueName,
			fmt.Sprintf("%s_consumer", queueName),
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
		}
		g.Go(func() error {
			return consume(ctx, consumerCh, queueName, msgs, deps, m)
		})
	}

	logger.Info("Listening for messages", "queues", queue.Queues)
	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

func consume(
	ctx context.Context,
	ch *amqp.Channel,
	queueName string,
	msgs <-chan amqp.Delivery,
	deps queue.PrefetchDeps,
	m *metrics.Metrics,
) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel of %s closed", queueName)
			}
			startTime := time.Now()
			logger.Info("Received message", "queue", queueName)

			processingErr := queue.ProcessPrefetch(ctx, deps, msg.Body)
			m.ObservePrefetch(processingErr)

			// If there was an error send to retry or dead-letter, otherwise ack the message
			if processingErr != nil {
				logger.Error("Error processing message", "queue", queueName, "err", processingErr)
				queue.HandleProcessingError(ch, msg, queueName, processingErr)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queueName, "duration", time.Since(startTime).Round(time.Millisecond))
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
	"github.com/ava-labs/evm-address-scanner/internal/chainclient/avalanche/coreth"
	"github.com/ava-labs/evm-address-scanner/internal/chainclient/ethereum"
	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/endpointpool"
	"github.com/ava-labs/evm-address-scanner/pkg/fetcher"
	"github.com/ava-labs/evm-address-scanner/pkg/kafka"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
	"github.com/ava-labs/evm-address-scanner/pkg/queue"
	"github.com/ava-labs/evm-address-scanner/pkg/scanner"
	"github.com/ava-labs/evm-address-scanner/pkg/utils"
)

const (
	flushTimeoutOnClose = 15 * time.Second
	shutdownTimeout     = 5 * time.Second
)

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"evmChainID", cfg.EVMChainID,
		"rpcURLs", cfg.RPCURLs,
		"clientType", cfg.ClientType,
		"startCursor", cfg.StartCursor,
		"flushEvery", cfg.FlushEvery,
		"maxAttempts", cfg.MaxAttempts,
		"retryDelay", cfg.RetryDelay,
		"maxConsecutiveFailures", cfg.MaxConsecutiveFailures,
		"rpcRateLimit", cfg.RPCRateLimit,
		"checkpointBackend", cfg.Backend.Kind,
		"kafkaEnabled", cfg.Kafka.Enabled(),
		"kafkaTopic", cfg.Kafka.Topic,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		EVMChainID:    cfg.EVMChainID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	var scanFailed atomic.Bool
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithHealthFunc(func() error {
		if scanFailed.Load() {
			return errors.New("scan failed")
		}
		return nil
	}))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}
	defer func() {
		// Gracefully shutdown metrics server
		sugar.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("metrics server shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dial, err := dialerFor(cfg.ClientType)
	if err != nil {
		return err
	}
	pool, err := endpointpool.Dial(ctx, sugar, dial, cfg.RPCURLs,
		[]chainclient.Option{chainclient.WithMetrics(m)},
		endpointpool.WithCheckTimeout(cfg.DialTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to rpc endpoints: %w", err)
	}
	defer pool.Close()

	backend, err := openBackend(ctx, cfg.Backend, sugar)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			sugar.Warnw("failed to close checkpoint backend", "error", err)
		}
	}()

	storeOpts := []checkpointer.Option{
		checkpointer.WithMetrics(m),
		checkpointer.WithStartCursor(cfg.StartCursor),
	}

	var producerErrs <-chan error
	if cfg.Kafka.Enabled() {
		producer, err := newProducer(ctx, cfg.Kafka, sugar)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), flushTimeoutOnClose)
			defer cancel()
			producer.Close(closeCtx)
		}()
		producerErrs = producer.Errors()

		publisher, err := queue.NewAddressPublisher(producer, cfg.Kafka.Topic, cfg.EVMChainID, sugar)
		if err != nil {
			return fmt.Errorf("failed to create address publisher: %w", err)
		}
		storeOpts = append(storeOpts, checkpointer.WithPublisher(publisher))
	}

	store, err := checkpointer.NewStore(backend, checkpointer.Config{
		WriteTimeout: cfg.CheckpointWriteTimeout,
		MaxRetries:   checkpointer.DefaultConfig().MaxRetries,
		RetryBackoff: checkpointer.DefaultConfig().RetryBackoff,
	}, sugar, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	start, err := store.Load(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	fetcherOpts := []fetcher.Option{fetcher.WithMetrics(m)}
	if cfg.RPCRateLimit > 0 {
		fetcherOpts = append(fetcherOpts, fetcher.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RPCRateLimit), cfg.RPCRateBurst)))
	}
	f, err := fetcher.New(pool, fetcher.Config{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, sugar, fetcherOpts...)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	sc, err := scanner.New(f, store, scanner.Config{
		Floor:                  scanner.DefaultConfig().Floor,
		FlushEvery:             cfg.FlushEvery,
		RetryDelay:             cfg.RetryDelay,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		FinalFlushTimeout:      cfg.FinalFlushTimeout,
	}, sugar, scanner.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	// Background goroutines stop once the scan returns.
	scanCtx, scanDone := context.WithCancel(ctx)
	defer scanDone()

	var res scanner.Result
	g, gctx := errgroup.WithContext(scanCtx)
	g.Go(func() error {
		defer scanDone()
		var err error
		res, err = sc.Run(gctx, start)
		if err != nil {
			scanFailed.Store(true)
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if producerErrs != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-producerErrs:
				if !ok {
					return nil
				}
				return fmt.Errorf("kafka producer failed: %w", err)
			}
		})
	}

	err = g.Wait()
	switch {
	case err != nil:
		sugar.Errorw("run failed", "error", err, "state", res.State.String(), "cursor", res.Cursor)
	case res.State == scanner.StateInterrupted:
		sugar.Infow("exiting due to context cancellation", "cursor", res.Cursor)
	}

	sugar.Info("shutdown complete")
	return err
}

func dialerFor(clientType string) (chainclient.Dialer, error) {
	switch clientType {
	case clientTypeGeth:
		return ethereum.Dial, nil
	case clientTypeCoreth:
		return coreth.Dial, nil
	default:
		return nil, fmt.Errorf("invalid client type: %s", clientType)
	}
}

// newProducer creates the Kafka publisher, creating the topic first when
// asked to.
func newProducer(ctx context.Context, cfg kafka.ProducerConfig, sugar *zap.SugaredLogger) (*queue.KafkaPublisher, error) {
	if cfg.CreateTopic {
		admin, err := confluentKafka.NewAdminClient(cfg.AdminConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
		}
		err = kafka.EnsureTopic(ctx, admin, cfg.TopicConfig(), sugar)
		admin.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
		}
	}

	producer, err := queue.NewKafkaPublisher(ctx, cfg.ConfigMap(), sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/evm-address-scanner/pkg/clickhouse"
	"github.com/ava-labs/evm-address-scanner/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/evm-address-scanner/pkg/kafka"
)

const (
	clientTypeGeth   = "geth"
	clientTypeCoreth = "coreth"

	backendFile       = "file"
	backendBolt       = "bolt"
	backendClickHouse = "clickhouse"
	backendMemory     = "memory"

	// minBlockBufferSize is the minimum valid value for BlockBufferSize (uint8: 0)
	minBlockBufferSize = 0
	// maxBlockBufferSize is the maximum valid value for BlockBufferSize (uint8: 255)
	maxBlockBufferSize = 255
)

// Config holds all configuration for the run command
type Config struct {
	// Application settings
	Verbose bool

	// Chain settings
	EVMChainID  uint64
	RPCURLs     []string
	ClientType  string
	DialTimeout time.Duration

	// Scan settings
	StartCursor            uint64
	FlushEvery             uint64
	MaxAttempts            int
	RetryDelay             time.Duration
	MaxConsecutiveFailures int
	RPCRateLimit           float64
	RPCRateBurst           int
	CheckpointWriteTimeout time.Duration
	FinalFlushTimeout      time.Duration

	Backend BackendConfig

	// Kafka settings
	Kafka kafka.ProducerConfig

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// BackendConfig selects and configures the checkpoint backend. It is shared
// by run and remove.
type BackendConfig struct {
	Kind            string
	EVMChainID      uint64
	CursorFile      string
	AddressFile     string
	BoltPath        string
	BoltLockTimeout time.Duration
	ClickHouse      clickhouse.Config
	Tables          checkpoint.TableConfig
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	backend, err := buildBackendConfig(c)
	if err != nil {
		return nil, err
	}

	kafkaCfg, err := buildKafkaConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build Kafka config: %w", err)
	}

	cfg := &Config{
		Verbose:                c.Bool("verbose"),
		EVMChainID:             c.Uint64("evm-chain-id"),
		RPCURLs:                splitList(c.StringSlice("rpc-urls")),
		ClientType:             c.String("client-type"),
		DialTimeout:            c.Duration("dial-timeout"),
		StartCursor:            c.Uint64("start-cursor"),
		FlushEvery:             c.Uint64("flush-every"),
		MaxAttempts:            c.Int("max-attempts"),
		RetryDelay:             c.Duration("retry-delay"),
		MaxConsecutiveFailures: c.Int("max-consecutive-failures"),
		RPCRateLimit:           c.Float64("rpc-rate-limit"),
		RPCRateBurst:           c.Int("rpc-rate-burst"),
		CheckpointWriteTimeout: c.Duration("checkpoint-write-timeout"),
		FinalFlushTimeout:      c.Duration("final-flush-timeout"),
		Backend:                backend,
		Kafka:                  kafkaCfg,
		MetricsHost:            c.String("metrics-host"),
		MetricsPort:            c.Int("metrics-port"),
		Environment:            c.String("environment"),
		Region:                 c.String("region"),
		CloudProvider:          c.String("cloud-provider"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.RPCURLs) == 0 {
		return errors.New("at least one rpc url is required")
	}
	switch c.ClientType {
	case clientTypeGeth, clientTypeCoreth:
	default:
		return fmt.Errorf("invalid client type: %q", c.ClientType)
	}
	if c.FlushEvery == 0 {
		return errors.New("flush-every must be greater than 0")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry-delay must not be negative, got %s", c.RetryDelay)
	}
	if c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max-consecutive-failures must not be negative, got %d", c.MaxConsecutiveFailures)
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("rpc-rate-limit must not be negative, got %v", c.RPCRateLimit)
	}
	if c.RPCRateLimit > 0 && c.RPCRateBurst < 1 {
		return fmt.Errorf("rpc-rate-burst must be at least 1, got %d", c.RPCRateBurst)
	}
	return nil
}

// buildBackendConfig builds a BackendConfig from CLI context flags
func buildBackendConfig(c *cli.Context) (BackendConfig, error) {
	cfg := BackendConfig{
		Kind:            c.String("checkpoint-backend"),
		EVMChainID:      c.Uint64("evm-chain-id"),
		CursorFile:      c.String("cursor-file"),
		AddressFile:     c.String("address-file"),
		BoltPath:        c.String("bolt-path"),
		BoltLockTimeout: c.Duration("bolt-lock-timeout"),
	}

	switch cfg.Kind {
	case backendFile, backendBolt, backendMemory:
	case backendClickHouse:
		if cfg.EVMChainID == 0 {
			return BackendConfig{}, errors.New("evm chain ID is required for the clickhouse backend")
		}
		chCfg, err := buildClickHouseConfig(c)
		if err != nil {
			return BackendConfig{}, fmt.Errorf("failed to build ClickHouse config: %w", err)
		}
		cfg.ClickHouse = chCfg
		cfg.Tables = checkpoint.DefaultTableConfig(chCfg.Database, chCfg.Cluster)
		override(c, "clickhouse-checkpoints-table", c.String, &cfg.Tables.CheckpointsTable)
		override(c, "clickhouse-addresses-table", c.String, &cfg.Tables.AddressesTable)
	default:
		return BackendConfig{}, fmt.Errorf("invalid checkpoint backend: %q", cfg.Kind)
	}
	return cfg, nil
}

// buildClickHouseConfig starts from the CLICKHOUSE_* environment and applies
// the flags that were set explicitly.
func buildClickHouseConfig(c *cli.Context) (clickhouse.Config, error) {
	cfg, err := clickhouse.Load()
	if err != nil {
		return clickhouse.Config{}, err
	}

	if c.IsSet("clickhouse-hosts") {
		cfg.Hosts = splitList(c.StringSlice("clickhouse-hosts"))
	}
	override(c, "clickhouse-cluster", c.String, &cfg.Cluster)
	override(c, "clickhouse-database", c.String, &cfg.Database)
	override(c, "clickhouse-username", c.String, &cfg.Username)
	override(c, "clickhouse-password", c.String, &cfg.Password)
	override(c, "clickhouse-debug", c.Bool, &cfg.Debug)
	override(c, "clickhouse-insecure-skip-verify", c.Bool, &cfg.InsecureSkipVerify)
	override(c, "clickhouse-max-execution-time", c.Int, &cfg.MaxExecutionTime)
	override(c, "clickhouse-dial-timeout", c.Int, &cfg.DialTimeout)
	override(c, "clickhouse-max-open-conns", c.Int, &cfg.MaxOpenConns)
	override(c, "clickhouse-max-idle-conns", c.Int, &cfg.MaxIdleConns)
	override(c, "clickhouse-conn-max-lifetime", c.Int, &cfg.ConnMaxLifetime)
	override(c, "clickhouse-block-buffer-size", c.Int, &cfg.BlockBufferSize)
	override(c, "clickhouse-max-block-size", c.Int, &cfg.MaxBlockSize)
	override(c, "clickhouse-max-compression-buffer", c.Int, &cfg.MaxCompressionBuffer)
	override(c, "clickhouse-client-name", c.String, &cfg.ClientName)
	override(c, "clickhouse-client-version", c.String, &cfg.ClientVersion)

	if err := validateBlockBufferSize(cfg.BlockBufferSize); err != nil {
		return clickhouse.Config{}, err
	}
	if len(cfg.Hosts) == 0 {
		return clickhouse.Config{}, errors.New("at least one clickhouse host is required")
	}
	return cfg, nil
}

// buildKafkaConfig starts from the KAFKA_* environment and applies the flags
// that were set explicitly.
func buildKafkaConfig(c *cli.Context) (kafka.ProducerConfig, error) {
	cfg, err := kafka.LoadProducerConfig()
	if err != nil {
		return kafka.ProducerConfig{}, err
	}

	override(c, "kafka-brokers", c.String, &cfg.BootstrapServers)
	override(c, "kafka-topic", c.String, &cfg.Topic)
	override(c, "kafka-client-id", c.String, &cfg.ClientID)
	override(c, "kafka-enable-logs", c.Bool, &cfg.EnableLogs)
	override(c, "kafka-create-topic", c.Bool, &cfg.CreateTopic)
	override(c, "kafka-topic-num-partitions", c.Int, &cfg.Partitions)
	override(c, "kafka-topic-replication-factor", c.Int, &cfg.ReplicationFactor)
	override(c, "kafka-sasl-username", c.String, &cfg.SASL.Username)
	override(c, "kafka-sasl-password", c.String, &cfg.SASL.Password)
	override(c, "kafka-sasl-mechanism", c.String, &cfg.SASL.Mechanism)
	override(c, "kafka-security-protocol", c.String, &cfg.SASL.SecurityProtocol)

	if cfg.Enabled() && cfg.Topic == "" {
		return kafka.ProducerConfig{}, errors.New("kafka topic is required when brokers are set")
	}
	return cfg, nil
}

// override sets *dst from the flag only when the flag was given.
func override[T any](c *cli.Context, name string, get func(string) T, dst *T) {
	if c.IsSet(name) {
		*dst = get(name)
	}
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateBlockBufferSize validates that the block buffer size is within uint8 range (0-255)
func validateBlockBufferSize(size int) error {
	if size < minBlockBufferSize || size > maxBlockBufferSize {
		return fmt.Errorf(
			"clickhouse-block-buffer-size must be between %d and %d, got %d",
			minBlockBufferSize, maxBlockBufferSize, size,
		)
	}
	return nil
}

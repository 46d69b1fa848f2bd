package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer/boltstore"
	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer/filestore"
)

// defaultRPCURLs are public Ethereum mainnet endpoints.
var defaultRPCURLs = []string{
	"https://eth.drpc.org",
	"https://rpc.mevblocker.io/fast",
	"https://eth.rpc.blxrbdn.com",
	"https://eth.blockrazor.xyz",
	"https://1rpc.io/eth",
	"https://eth-mainnet.nodereal.io/v1/1659dfb40aa24bbb8153a677b98064d7",
	"https://mainnet.gateway.tenderly.co",
	"https://eth1.lava.build",
}

// runFlags returns all CLI flags for the run command
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "rpc-urls",
			Aliases: []string{"r"},
			Usage:   "JSON-RPC endpoints to rotate through (comma-separated list)",
			EnvVars: []string{"RPC_URLS"},
			Value:   cli.NewStringSlice(defaultRPCURLs...),
		},
		&cli.StringFlag{
			Name:    "client-type",
			Aliases: []string{"ct"},
			Usage:   "The type of client used to talk to the endpoints (geth or coreth)",
			EnvVars: []string{"CLIENT_TYPE"},
			Value:   clientTypeGeth,
		},
		&cli.DurationFlag{
			Name:    "dial-timeout",
			Usage:   "Timeout of the startup reachability check of each endpoint",
			EnvVars: []string{"DIAL_TIMEOUT"},
			Value:   10 * time.Second,
		},
		&cli.Uint64Flag{
			Name:    "start-cursor",
			Aliases: []string{"s"},
			Usage:   "Resume as if this block had just been handled, overriding the checkpoint. 0 uses the checkpoint or the chain head",
			EnvVars: []string{"START_CURSOR"},
		},
		&cli.Uint64Flag{
			Name:    "flush-every",
			Usage:   "Number of processed blocks between checkpoints",
			EnvVars: []string{"FLUSH_EVERY"},
			Value:   1000,
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Fetch attempts per block before it is skipped",
			EnvVars: []string{"MAX_ATTEMPTS"},
			Value:   3,
		},
		&cli.DurationFlag{
			Name:    "retry-delay",
			Usage:   "Pause between fetch attempts and after a skipped block",
			EnvVars: []string{"RETRY_DELAY"},
			Value:   3 * time.Second,
		},
		&cli.IntFlag{
			Name:    "max-consecutive-failures",
			Aliases: []string{"f"},
			Usage:   "Consecutive skipped blocks that stop the scan (0 never stops)",
			EnvVars: []string{"MAX_CONSECUTIVE_FAILURES"},
		},
		&cli.Float64Flag{
			Name:    "rpc-rate-limit",
			Usage:   "Maximum block requests per second across all endpoints (0 is unlimited)",
			EnvVars: []string{"RPC_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "rpc-rate-burst",
			Usage:   "Burst size of the block request rate limit",
			EnvVars: []string{"RPC_RATE_BURST"},
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "checkpoint-write-timeout",
			Usage:   "Timeout of a single checkpoint write",
			EnvVars: []string{"CHECKPOINT_WRITE_TIMEOUT"},
			Value:   10 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "final-flush-timeout",
			Usage:   "Time allowed for the checkpoint written on exit",
			EnvVars: []string{"FINAL_FLUSH_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Aliases: []string{"P"},
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
	flags = append(flags, kafkaFlags()...)
	return append(flags, removeFlags()...)
}

// removeFlags returns the flags shared by run and remove: everything needed
// to open a checkpoint backend.
func removeFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "The EVM chain ID of the scanned chain, used for metrics labels and ClickHouse rows",
			EnvVars: []string{"EVM_CHAIN_ID"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "checkpoint-backend",
			Aliases: []string{"b"},
			Usage:   "Where progress is persisted (file, bolt, clickhouse or memory)",
			EnvVars: []string{"CHECKPOINT_BACKEND"},
			Value:   backendFile,
		},
		&cli.StringFlag{
			Name:    "cursor-file",
			Usage:   "Cursor file of the file backend",
			EnvVars: []string{"CURSOR_FILE"},
			Value:   filestore.DefaultCursorFile,
		},
		&cli.StringFlag{
			Name:    "address-file",
			Usage:   "Address log of the file backend",
			EnvVars: []string{"ADDRESS_FILE"},
			Value:   filestore.DefaultAddressFile,
		},
		&cli.StringFlag{
			Name:    "bolt-path",
			Usage:   "Database file of the bolt backend",
			EnvVars: []string{"BOLT_PATH"},
			Value:   boltstore.DefaultPath,
		},
		&cli.DurationFlag{
			Name:    "bolt-lock-timeout",
			Usage:   "How long to wait for the bolt database file lock",
			EnvVars: []string{"BOLT_LOCK_TIMEOUT"},
			Value:   5 * time.Second,
		},
	}
	return append(flags, clickhouseFlags()...)
}

func kafkaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to publish discovered addresses to (comma-separated list, empty disables publishing)",
			EnvVars: []string{"KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic receiving discovered addresses (default scanner-addresses)",
			EnvVars: []string{"KAFKA_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable Kafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.BoolFlag{
			Name:    "kafka-create-topic",
			Usage:   "Create the Kafka topic at startup if it does not exist",
			EnvVars: []string{"KAFKA_CREATE_TOPIC"},
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "Number of partitions of a created topic",
			EnvVars: []string{"KAFKA_TOPIC_PARTITIONS"},
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "Replication factor of a created topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-username",
			Usage:   "SASL username for Kafka authentication",
			EnvVars: []string{"KAFKA_SASL_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-password",
			Usage:   "SASL password for Kafka authentication",
			EnvVars: []string{"KAFKA_SASL_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-mechanism",
			Usage:   "SASL mechanism (SCRAM-SHA-256, SCRAM-SHA-512, or PLAIN)",
			EnvVars: []string{"KAFKA_SASL_MECHANISM"},
		},
		&cli.StringFlag{
			Name:    "kafka-security-protocol",
			Usage:   "Security protocol (SASL_SSL or SASL_PLAINTEXT)",
			EnvVars: []string{"KAFKA_SECURITY_PROTOCOL"},
		},
	}
}

// clickhouseFlags carry no defaults of their own; unset flags keep the
// values loaded from the CLICKHOUSE_* environment.
func clickhouseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "ClickHouse hosts (comma-separated list)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-cluster",
			Usage:   "ClickHouse cluster for ON CLUSTER DDL (empty for a single node)",
			EnvVars: []string{"CLICKHOUSE_CLUSTER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Usage:   "ClickHouse database",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-username",
			Usage:   "ClickHouse username",
			EnvVars: []string{"CLICKHOUSE_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-debug",
			Usage:   "Enable ClickHouse driver debug logs",
			EnvVars: []string{"CLICKHOUSE_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-insecure-skip-verify",
			Usage:   "Skip TLS certificate verification",
			EnvVars: []string{"CLICKHOUSE_INSECURE_SKIP_VERIFY"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-execution-time",
			Usage:   "Query max execution time in seconds",
			EnvVars: []string{"CLICKHOUSE_MAX_EXECUTION_TIME"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-dial-timeout",
			Usage:   "Dial timeout in seconds",
			EnvVars: []string{"CLICKHOUSE_DIAL_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-open-conns",
			Usage:   "Maximum open connections",
			EnvVars: []string{"CLICKHOUSE_MAX_OPEN_CONNS"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-idle-conns",
			Usage:   "Maximum idle connections",
			EnvVars: []string{"CLICKHOUSE_MAX_IDLE_CONNS"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-conn-max-lifetime",
			Usage:   "Connection max lifetime in minutes",
			EnvVars: []string{"CLICKHOUSE_CONN_MAX_LIFETIME"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-block-buffer-size",
			Usage:   "Block buffer size (0-255)",
			EnvVars: []string{"CLICKHOUSE_BLOCK_BUFFER_SIZE"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-block-size",
			Usage:   "Maximum block size",
			EnvVars: []string{"CLICKHOUSE_MAX_BLOCK_SIZE"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-compression-buffer",
			Usage:   "Maximum compression buffer in bytes",
			EnvVars: []string{"CLICKHOUSE_MAX_COMPRESSION_BUFFER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-name",
			Usage:   "Client name reported to ClickHouse",
			EnvVars: []string{"CLICKHOUSE_CLIENT_NAME"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-version",
			Usage:   "Client version reported to ClickHouse",
			EnvVars: []string{"CLICKHOUSE_CLIENT_VERSION"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-checkpoints-table",
			Usage:   "Table holding scan cursors",
			EnvVars: []string{"CLICKHOUSE_CHECKPOINTS_TABLE"},
			Value:   "scan_checkpoints",
		},
		&cli.StringFlag{
			Name:    "clickhouse-addresses-table",
			Usage:   "Table holding discovered addresses",
			EnvVars: []string{"CLICKHOUSE_ADDRESSES_TABLE"},
			Value:   "scan_addresses",
		},
	}
}

package kafka

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ProducerConfig holds the configuration of the address publisher.
type ProducerConfig struct {
	BootstrapServers  string `env:"KAFKA_BOOTSTRAP_SERVERS"        envDefault:""`                    // Empty disables publishing
	Topic             string `env:"KAFKA_TOPIC"                    envDefault:"scanner-addresses"`   // Topic receiving discovered addresses
	ClientID          string `env:"KAFKA_CLIENT_ID"                envDefault:"evm-address-scanner"` // Client ID reported to the brokers
	EnableLogs        bool   `env:"KAFKA_ENABLE_LOGS"              envDefault:"false"`               // Enable librdkafka client logs
	CreateTopic       bool   `env:"KAFKA_CREATE_TOPIC"             envDefault:"false"`               // Ensure the topic exists at startup
	Partitions        int    `env:"KAFKA_TOPIC_PARTITIONS"         envDefault:"1"`
	ReplicationFactor int    `env:"KAFKA_TOPIC_REPLICATION_FACTOR" envDefault:"1"`
	SASL              SASLConfig
}

// SASLConfig holds broker authentication settings. An empty Username
// leaves the connection unauthenticated.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"` // SCRAM-SHA-256, SCRAM-SHA-512 or PLAIN
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`      // SASL_SSL or SASL_PLAINTEXT
}

// Enabled reports whether SASL credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap adds the SASL settings to cm when enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	(*cm)["security.protocol"] = s.SecurityProtocol
	(*cm)["sasl.mechanisms"] = s.Mechanism
	(*cm)["sasl.username"] = s.Username
	(*cm)["sasl.password"] = s.Password
}

// LoadProducerConfig reads the configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("parse kafka producer config: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether a broker is configured.
func (c ProducerConfig) Enabled() bool {
	return c.BootstrapServers != ""
}

// ConfigMap returns the librdkafka producer configuration. Delivery is
// idempotent and acknowledged by all in-sync replicas.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   "all",
		"enable.idempotence":     true,
		"linger.ms":              5,
		"compression.type":       "lz4",
		"go.logs.channel.enable": c.EnableLogs,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}

// AdminConfigMap returns the configuration for an admin client on the same cluster.
func (c ProducerConfig) AdminConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}

// TopicConfig returns the desired topic layout.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.Partitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

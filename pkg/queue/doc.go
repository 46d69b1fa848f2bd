// Package queue provides abstractions and implementations for publishing
// messages to durable queues.
//
// QueuePublisher is the transport; KafkaPublisher implements it on top of
// confluent-kafka-go. AddressPublisher turns checkpointed address batches into
// one message per address.
//
// All QueuePublisher implementations require Close to be called to release
// resources and flush in-flight messages.
package queue

// Package broadcaster publishes outbox events to Kafka.
package broadcaster

// Package kafka is the kafka-go flavour of the event publisher.
package kafka

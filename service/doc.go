// Package service runs the custody vault: the single write entry point
// that ties the ledger, exchange adapter, journal and outbox together.
//
// It exposes deposits, withdrawals, owner operations and queries,
// decoupled from transports like gRPC.
package service

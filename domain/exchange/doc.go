// Package exchange converts non-reference assets into the reference asset
// through an external exchange service.
//
// The core only depends on the Service capability interface; any venue
// client that can quote and execute an exact-input swap satisfies it.
package exchange

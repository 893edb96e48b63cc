// Package exit is the pebble-backed outbox of ledger events.
//
// An event is stored NEW in the same guarded step that journals its
// mutation; the broadcaster moves it through SENT and deletes it once the
// broker acknowledges. FAILED entries are retried in sequence order.
package exit

// Package snapshot persists point-in-time ledger state. A snapshot carries
// the journal sequence it reflects, so recovery loads it and replays only
// the journal records after that sequence.
package snapshot

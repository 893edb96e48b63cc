// Package ledger is the accounting core of the custody vault.
//
// AccountLedger tracks reference-asset balances and their total,
// Normalizer rescales amounts into the comparison unit, CapacityPolicy
// enforces the global ceiling and ReentrancyGuard keeps every mutating
// operation exclusive. None of these types perform I/O; coordination with
// the exchange, the transfer primitive and the journal lives in package
// service.
package ledger

// Package asset holds the identity types shared by the ledger and the
// exchange adapter: depositor addresses, asset identifiers, per-asset
// descriptors and swap routes.
//
// It has no dependencies on storage or transport.
package asset

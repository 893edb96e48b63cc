// Package entry is the write-ahead journal of ledger mutations.
//
// Records are framed as
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// with a CRC32 (Castagnoli) over header and payload, and written to
// size-bounded segment files named segment-NNNNNN.wal. Sequence numbers
// are strictly increasing across segments; replay rejects anything else.
package entry

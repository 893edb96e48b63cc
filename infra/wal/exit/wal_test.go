package exit

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *ExitWAL {
	t.Helper()
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestLifecycle(t *testing.T) {
	w := openTest(t)

	require.NoError(t, w.PutNew(7, []byte("acct"), []byte(`{"type":"deposit.credited"}`)))
	rec, err := w.Get(7)
	require.NoError(t, err)
	require.Equal(t, StateNew, rec.State)
	require.Equal(t, []byte("acct"), rec.Key)
	require.Equal(t, `{"type":"deposit.credited"}`, string(rec.Payload))

	require.NoError(t, w.MarkSent(7))
	require.NoError(t, w.MarkFailed(7))
	rec, err = w.Get(7)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.Equal(t, uint32(1), rec.Retries)
	require.Positive(t, rec.LastAttempt)

	require.NoError(t, w.MarkAcked(7))
	_, err = w.Get(7)
	require.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestScanPendingIsOrdered(t *testing.T) {
	w := openTest(t)
	for _, seq := range []uint64{30, 2, 100, 11} {
		require.NoError(t, w.PutNew(seq, nil, []byte("x")))
	}

	var seen []uint64
	require.NoError(t, w.ScanPending(func(rec ExitRecord) error {
		seen = append(seen, rec.Seq)
		return nil
	}))
	require.Equal(t, []uint64{2, 11, 30, 100}, seen)

	seen = nil
	require.NoError(t, w.ScanPending(func(rec ExitRecord) error {
		seen = append(seen, rec.Seq)
		if rec.Seq == 11 {
			return ErrStopScan
		}
		return nil
	}))
	require.Equal(t, []uint64{2, 11}, seen)

	boom := errors.New("boom")
	require.ErrorIs(t, w.ScanPending(func(ExitRecord) error { return boom }), boom)

	n, err := w.Pending()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestDecodeRejectsShortRecords(t *testing.T) {
	_, err := decodeRecord(1, []byte{1, 2, 3})
	require.Error(t, err)
}

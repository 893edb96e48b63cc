package broadcaster

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	exitwal "custody/infra/wal/exit"
)

type recordingPublisher struct {
	mu     sync.Mutex
	sent   []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, _, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if string(value) == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, string(value))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func openOutbox(t *testing.T) *exitwal.ExitWAL {
	t.Helper()
	w, err := exitwal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestDrainOnceStopsAtFirstFailure(t *testing.T) {
	outbox := openOutbox(t)
	for i, v := range []string{"a", "b", "c"} {
		require.NoError(t, outbox.PutNew(uint64(i+1), nil, []byte(v)))
	}

	pub := &recordingPublisher{failOn: "b"}
	b := New(outbox, pub, 0, zaptest.NewLogger(t), nil)

	n, err := b.DrainOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"a"}, pub.sent)

	rec, err := outbox.Get(2)
	require.NoError(t, err)
	require.Equal(t, exitwal.StateFailed, rec.State)
	require.Equal(t, uint32(1), rec.Retries)

	_, err = outbox.Get(1)
	require.ErrorIs(t, err, pebble.ErrNotFound)

	// broker recovers; order is preserved
	pub.failOn = ""
	n, err = b.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a", "b", "c"}, pub.sent)

	pending, err := outbox.Pending()
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestSaramaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"deposit.credited"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	outbox := openOutbox(t)
	require.NoError(t, outbox.PutNew(1, []byte("0xabc"), []byte(`{"type":"deposit.credited"}`)))
	require.NoError(t, outbox.PutNew(2, []byte("0xabc"), []byte(`{"type":"withdrawal.sent"}`)))

	b := New(outbox, NewSaramaPublisher(producer, "custody.events"), 0, zaptest.NewLogger(t), nil)
	n, err := b.DrainOnce(context.Background())
	require.ErrorIs(t, err, sarama.ErrNotEnoughReplicas)
	require.Equal(t, 1, n)

	require.NoError(t, b.Close())
}

func TestRunStopsOnCancel(t *testing.T) {
	outbox := openOutbox(t)
	b := New(outbox, &recordingPublisher{}, 0, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Run(ctx))
}

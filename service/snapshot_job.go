package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"custody/snapshot"
)

// Truncator drops journal segments fully covered by a snapshot.
// *entry.WAL satisfies it.
type Truncator interface {
	TruncateBefore(seq uint64) (int, error)
}

// SnapshotJob periodically persists vault state and trims the journal.
type SnapshotJob struct {
	vault    *Vault
	writer   *snapshot.Writer
	journal  Truncator
	interval time.Duration
	log      *zap.Logger
}

func NewSnapshotJob(v *Vault, dir string, journal Truncator, interval time.Duration, log *zap.Logger) *SnapshotJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotJob{
		vault:    v,
		writer:   &snapshot.Writer{Dir: dir},
		journal:  journal,
		interval: interval,
		log:      log,
	}
}

// Run snapshots every interval until ctx ends, then once more on the way out.
func (j *SnapshotJob) Run(ctx context.Context) error {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := j.RunOnce(); err != nil {
				j.log.Error("final snapshot failed", zap.Error(err))
			}
			return nil
		case <-t.C:
			if _, err := j.RunOnce(); err != nil {
				j.log.Error("snapshot failed", zap.Error(err))
			}
		}
	}
}

// RunOnce writes a snapshot and truncates the journal behind it. It returns
// the snapshot sequence.
func (j *SnapshotJob) RunOnce() (uint64, error) {
	st := j.vault.Snapshot()
	if err := j.writer.Write(st); err != nil {
		return 0, err
	}

	// truncate ENTRY journal after snapshot
	removed := 0
	if j.journal != nil {
		var err error
		if removed, err = j.journal.TruncateBefore(st.Seq); err != nil {
			return st.Seq, err
		}
	}
	j.log.Debug("snapshot written", zap.Uint64("seq", st.Seq), zap.Int("segments_removed", removed))
	return st.Seq, nil
}

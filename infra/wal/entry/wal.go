package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEveryAppend fsyncs each record before Append returns.
	SyncEveryAppend bool
}

// WAL appends ledger records. It is safe for concurrent use, although the
// vault only ever appends from inside its guarded region.
type WAL struct {
	mu         sync.Mutex
	dir        string
	segSize    int64
	syncAlways bool
	current    *segment
	lastSeq    uint64
	// broken is set when a failed append could not be cut back out of the
	// segment. Open trims the torn bytes, so only a reopen clears it.
	broken error
}

// Open resumes the newest segment, cutting off a torn tail left by a
// crash mid-append.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 2 * 1024 * 1024
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	index := 0
	var lastSeq uint64
	for i := len(files) - 1; i >= 0; i-- {
		maxSeq, valid, err := scanSegment(files[i])
		if err != nil {
			return nil, err
		}
		if i == len(files)-1 {
			if index, err = segmentIndex(files[i]); err != nil {
				return nil, err
			}
			if err := os.Truncate(files[i], valid); err != nil {
				return nil, fmt.Errorf("journal: trim torn tail of %s: %w", files[i], err)
			}
		}
		if maxSeq > 0 {
			lastSeq = maxSeq
			break
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		syncAlways: cfg.SyncEveryAppend,
		current:    seg,
		lastSeq:    lastSeq,
	}, nil
}

// LastSeq is the highest sequence number on disk at open time, or the last
// appended one since.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return w.broken
	}
	if r.Seq <= w.lastSeq {
		return fmt.Errorf("journal: seq %d not after %d", r.Seq, w.lastSeq)
	}

	payloadLen := uint32(len(r.Data))

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, headerSize+int(payloadLen)+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)

	// A full segment rotates before the write so that a failed rotation
	// leaves nothing on disk for the caller's error to contradict.
	if w.current.offset >= w.segSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("journal: rotate: %w", err)
		}
	}

	prev := w.current.offset
	err := w.current.append(buf)
	if err == nil && w.syncAlways {
		err = w.current.sync()
	}
	if err != nil {
		if terr := w.current.truncate(prev); terr != nil {
			w.broken = fmt.Errorf("journal: segment %d holds a torn record: %w", w.current.index, terr)
			return errors.Join(err, w.broken)
		}
		return err
	}
	w.lastSeq = r.Seq
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// rotate keeps the current segment open until its successor exists.
func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}
	// already synced, a close error loses nothing
	_ = w.current.close()

	w.current = seg
	return nil
}

// TruncateBefore removes closed segments whose records are all covered by
// a snapshot at seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (removed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		idx, err := segmentIndex(path)
		if err != nil || idx >= w.current.index {
			continue
		}
		maxSeq, _, err := scanSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

package entry

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay feeds every record with Seq > after to fn in order and returns the
// last sequence number seen. A torn tail in the newest segment ends replay
// quietly; corruption anywhere else is an error.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	lastSeq = after

	for i, path := range files {
		newest := i == len(files)-1
		if lastSeq, err = replaySegment(path, newest, after, lastSeq, fn); err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, newest bool, after, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	var prev uint64
	for {
		rec, _, err := readRecord(f)
		if err != nil {
			if err == io.EOF {
				return lastSeq, nil
			}
			if newest && (err == io.ErrUnexpectedEOF || errors.Is(err, ErrCorrupt)) {
				return lastSeq, nil
			}
			return lastSeq, fmt.Errorf("journal: %s: %w", path, err)
		}

		if rec.Seq <= prev {
			return lastSeq, fmt.Errorf("journal: %s: non-monotonic seq %d after %d", path, rec.Seq, prev)
		}
		prev = rec.Seq
		if rec.Seq <= after {
			continue
		}
		if rec.Seq <= lastSeq {
			return lastSeq, fmt.Errorf("journal: %s: non-monotonic seq %d after %d", path, rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}

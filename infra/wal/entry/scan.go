package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const headerSize = 1 + 8 + 8 + 4

var ErrCorrupt = errors.New("journal: corrupt record")

// readRecord decodes one frame. io.EOF means a clean end; a partial
// frame surfaces as io.ErrUnexpectedEOF.
func readRecord(r io.Reader) (*Record, int64, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}

	l := binary.BigEndian.Uint32(header[17:21])
	data := make([]byte, int(l)+4)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	payload := data[:l]
	crc := binary.BigEndian.Uint32(data[l:])
	if !CRC32Valid(append(header, payload...), crc) {
		return nil, 0, fmt.Errorf("%w: crc mismatch", ErrCorrupt)
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, int64(headerSize) + int64(l) + 4, nil
}

// scanSegment walks a segment and reports the highest sequence number and
// the length of its intact prefix. A torn or corrupt tail stops the scan
// without an error; the caller decides whether to cut it off.
func scanSegment(path string) (maxSeq uint64, valid int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	for {
		rec, n, err := readRecord(f)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, ErrCorrupt) {
				return maxSeq, valid, nil
			}
			return maxSeq, valid, err
		}
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
		valid += n
	}
}

// Package deltalog implements a local, append-only log of extracted
// deltas with a bounded retention horizon, used to backfill counter
// updates when a mint is promoted to HOT; the backfill feeds the logged
// summaries to the counter store and does not re-run swap inference. Segment
// rotation keeps the currently-open segment from ever being selected for
// deletion, with delta records framed individually since each summary is
// variable-length.
package deltalog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rlaau/swapsentry/shared/domain"
)

const (
	codecMsgpackZstd byte = 1

	defaultMaxSegmentBytes = 64 << 20
	defaultRotateInterval  = time.Hour
)

// DeltaSummary is one logged record: enough of an ExtractedDeltas/SwapEvent
// to replay into the counters during a HOT backfill.
type DeltaSummary struct {
	Signature    string
	Mint         domain.Address
	Wallet       domain.Address
	Side         domain.Side
	BaseAmount   string // decimal.Decimal.String(); avoids a msgpack decimal dependency
	QuoteAmount  string
	Venue        domain.Venue
	Confidence   float64
	Time         time.Time

	// CountedLive is true when the counter store already recorded this
	// swap at ingest time (NORMAL/DEGRADED mode); a HOT backfill must
	// skip these to avoid double-counting and only replay the records a
	// CRITICAL-mode drop left uncounted.
	CountedLive bool
}

type Log struct {
	dir string
	mu  sync.Mutex

	enc *zstd.Encoder
	dec *zstd.Decoder

	idx *badger.DB

	cur       *os.File
	curWriter *bufio.Writer
	curPath   string
	curSize   int64
	curOpened time.Time

	maxSegmentBytes int64
	rotateInterval  time.Duration
}

func Open(dir string, idxDir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("deltalog: mkdir %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("deltalog: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("deltalog: new zstd decoder: %w", err)
	}

	opts := badger.DefaultOptions(idxDir)
	opts.Logger = nil
	idx, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("deltalog: open index: %w", err)
	}

	l := &Log{
		dir: dir, enc: enc, dec: dec, idx: idx,
		maxSegmentBytes: defaultMaxSegmentBytes,
		rotateInterval:  defaultRotateInterval,
	}
	if err := l.openNewSegment(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	if l.curWriter != nil {
		if err := l.curWriter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.cur != nil {
		if err := l.cur.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := l.idx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (l *Log) openNewSegment() error {
	name := fmt.Sprintf("delta-%s.log", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("deltalog: create segment: %w", err)
	}
	l.cur = f
	l.curWriter = bufio.NewWriter(f)
	l.curPath = path
	l.curSize = 0
	l.curOpened = time.Now()
	return nil
}

// Append writes one record, framed as {u32 length, u8 codec, payload},
// and indexes it by (mint, timestamp) for range replay. The currently-open
// segment is rotated first if it has outgrown its size or age budget; the
// segment being replaced by rotation is simply left on disk — "never
// selected for deletion" is enforced by TrimBefore skipping the open
// segment's path; every other segment whose modification time is before
// TrimBefore's cutoff is removed.
func (l *Log) Append(d DeltaSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.curSize >= l.maxSegmentBytes || time.Since(l.curOpened) >= l.rotateInterval {
		if err := l.curWriter.Flush(); err != nil {
			return err
		}
		if err := l.cur.Close(); err != nil {
			return err
		}
		if err := l.openNewSegment(); err != nil {
			return err
		}
	}

	payload, err := msgpack.Marshal(d)
	if err != nil {
		return fmt.Errorf("deltalog: marshal: %w", err)
	}
	compressed := l.enc.EncodeAll(payload, nil)

	var header [5]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(compressed)))
	header[4] = codecMsgpackZstd

	n1, err := l.curWriter.Write(header[:])
	if err != nil {
		return err
	}
	n2, err := l.curWriter.Write(compressed)
	if err != nil {
		return err
	}
	if err := l.curWriter.Flush(); err != nil {
		return err
	}
	l.curSize += int64(n1 + n2)

	return l.indexEntry(d)
}

func indexKey(mint domain.Address, t time.Time, signature string) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return []byte(fmt.Sprintf("idx:%s:%x:%s", mint.String(), buf, signature))
}

func (l *Log) indexEntry(d DeltaSummary) error {
	return l.idx.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(d.Mint, d.Time, d.Signature), []byte(l.curPath))
	})
}

// RangeSince returns every record for mint with timestamp >= since,
// reading the segment files named by the Badger secondary index. Order
// is not guaranteed across segments; callers replay each delta
// independently, so ordering doesn't matter.
func (l *Log) RangeSince(mint domain.Address, since time.Time) ([]DeltaSummary, error) {
	prefix := []byte("idx:" + mint.String() + ":")
	var paths []string
	seen := map[string]bool{}

	if err := l.idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				p := string(val)
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []DeltaSummary
	for _, p := range paths {
		recs, err := l.readSegment(p)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Mint == mint && !r.Time.Before(since) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (l *Log) readSegment(path string) ([]DeltaSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []DeltaSummary
	for {
		var header [5]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("deltalog: read header: %w", err)
		}
		length := binary.LittleEndian.Uint32(header[0:4])
		codec := header[4]
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("deltalog: read payload: %w", err)
		}
		if codec != codecMsgpackZstd {
			return nil, fmt.Errorf("deltalog: unknown codec %d", codec)
		}
		raw, err := l.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("deltalog: decompress: %w", err)
		}
		var d DeltaSummary
		if err := msgpack.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("deltalog: unmarshal: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// TrimBefore deletes every segment file strictly older than cutoff,
// skipping the currently-open segment even if its name would otherwise
// qualify.
func (l *Log) TrimBefore(cutoff time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		if path == l.curPath {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
	return nil
}

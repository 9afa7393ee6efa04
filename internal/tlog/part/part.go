// Package part implements a single domain-part file: an append-only
// sequence of chunks with an in-memory skip list for seeking, tail-zero
// truncation on crash recovery, and file-lock-guarded sync.
package part

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/google/btree"

	"github.com/fathomdb/searchcore/internal/tlog/chunk"
)

// SerialRange is an inclusive [From, To] range; an empty range is encoded
// as From > To.
type SerialRange struct {
	From uint64
	To   uint64
}

func (r SerialRange) Empty() bool { return r.From > r.To }

const headerMagic = "TLOGPART"

// skipEntry maps a chunk's first serial to its file offset.
type skipEntry struct {
	firstSerial uint64
	offset      int64
}

func (a skipEntry) Less(b btree.Item) bool {
	return a.firstSerial < b.(skipEntry).firstSerial
}

// Part is one append-only domain-part file.
type Part struct {
	mu sync.RWMutex

	path string
	f    *os.File

	skipList *btree.BTree
	count    int
	lastSerial uint64
	hasSerial  bool

	// logicalFrom overrides the part's first serial once a partial erase
	// has advanced past it without removing the part outright; the bytes
	// stay on disk but Range/Visit treat everything below it as gone.
	logicalFrom    uint64
	hasLogicalFrom bool

	fsyncOnCommit bool
	syncedSerial  uint64
}

// Create opens a new, empty part file at path, writing the header block.
func Create(path string, fsyncOnCommit bool) (*Part, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("part: create %s: %w", path, err)
	}
	if err := writeHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Part{path: path, f: f, skipList: btree.New(32), fsyncOnCommit: fsyncOnCommit}, nil
}

func writeHeader(f *os.File) error {
	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], 0) // no tags carried by this module
	buf.Write(lb[:])
	_, err := f.Write(buf.Bytes())
	return err
}

// Open reopens an existing part file, scanning its chunks to rebuild the
// skip list and applying tail-zero-truncate-or-corrupt-raise recovery
// (§4.9).
func Open(path string, fsyncOnCommit bool) (*Part, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("part: open %s: %w", path, err)
	}

	p := &Part{path: path, f: f, skipList: btree.New(32), fsyncOnCommit: fsyncOnCommit}
	if err := p.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *Part) recover() error {
	info, err := p.f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	if size < int64(len(headerMagic)+4) {
		if size == 0 {
			return writeHeader(p.f)
		}
		return p.truncateTo(0)
	}

	data := make([]byte, size)
	if _, err := p.f.ReadAt(data, 0); err != nil {
		return fmt.Errorf("part: read %s: %w", p.path, err)
	}
	if string(data[:len(headerMagic)]) != headerMagic {
		if !isAllZero(data) {
			return fmt.Errorf("part: bad header magic in %s", p.path)
		}
		return p.truncateTo(0)
	}

	offset := int64(len(headerMagic) + 4)
	lastGood := offset
	for offset < size {
		chunkData := data[offset:]
		entries, consumed, err := chunk.Decode(chunkData)
		if err != nil {
			if isAllZero(chunkData) {
				break
			}
			return fmt.Errorf("part: corrupt chunk at offset %d in %s: %w", offset, p.path, err)
		}
		if len(entries) > 0 {
			p.skipList.ReplaceOrInsert(skipEntry{firstSerial: entries[0].Serial, offset: offset})
			p.count += len(entries)
			p.lastSerial = entries[len(entries)-1].Serial
			p.hasSerial = true
		}
		offset += int64(consumed)
		lastGood = offset
	}

	if lastGood != size {
		if !isAllZero(data[lastGood:]) {
			return fmt.Errorf("part: non-zero tail past last good chunk in %s: refusing to truncate", p.path)
		}
		return p.truncateTo(lastGood)
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (p *Part) truncateTo(size int64) error {
	if err := p.f.Truncate(size); err != nil {
		return err
	}
	_, err := p.f.Seek(size, 0)
	return err
}

// Count returns the number of entries successfully recorded in this part.
func (p *Part) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

// Range returns the part's [firstSerial, lastSerial] range, or an empty
// range if nothing has been committed yet.
func (p *Part) Range() SerialRange {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasSerial {
		return SerialRange{From: 1, To: 0}
	}
	first, ok := p.firstSerialLocked()
	if !ok {
		return SerialRange{From: 1, To: 0}
	}
	if p.hasLogicalFrom && p.logicalFrom > first {
		first = p.logicalFrom
	}
	if first > p.lastSerial {
		return SerialRange{From: 1, To: 0}
	}
	return SerialRange{From: first, To: p.lastSerial}
}

func (p *Part) firstSerialLocked() (uint64, bool) {
	var first uint64
	found := false
	p.skipList.Ascend(func(item btree.Item) bool {
		first = item.(skipEntry).firstSerial
		found = true
		return false
	})
	return first, found
}

// Commit appends a pre-encoded chunk, enforcing that its first entry's
// serial exceeds the part's current last serial.
func (p *Part) Commit(firstSerial uint64, lastSerial uint64, entryCount int, encoded []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasSerial && firstSerial <= p.lastSerial {
		return fmt.Errorf("part: monotonicity violated: chunk first serial %d <= last serial %d", firstSerial, p.lastSerial)
	}

	offset, err := p.f.Seek(0, 2)
	if err != nil {
		return fmt.Errorf("part: seek to end: %w", err)
	}
	if n, err := p.f.Write(encoded); err != nil || n != len(encoded) {
		if rerr := p.truncateTo(offset); rerr != nil {
			return fmt.Errorf("part: write failed (%v) and rewind failed (%v)", err, rerr)
		}
		return fmt.Errorf("part: write: %w", err)
	}

	p.skipList.ReplaceOrInsert(skipEntry{firstSerial: firstSerial, offset: offset})
	p.count += entryCount
	p.lastSerial = lastSerial
	p.hasSerial = true

	if p.fsyncOnCommit {
		return p.f.Sync()
	}
	return nil
}

// Visit decodes chunks starting from the first whose first-serial is <=
// from, filtering entries to [from, to], stopping once targetBytes have
// been collected or the range/EOF is exhausted.
func (p *Part) Visit(from, to uint64, targetBytes int) ([]chunk.Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	effectiveFrom := from
	if p.hasLogicalFrom && p.logicalFrom > effectiveFrom {
		effectiveFrom = p.logicalFrom
	}

	var startOffset int64 = int64(len(headerMagic) + 4)
	p.skipList.DescendLessOrEqual(skipEntry{firstSerial: effectiveFrom}, func(item btree.Item) bool {
		startOffset = item.(skipEntry).offset
		return false
	})

	info, err := p.f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()

	var out []chunk.Entry
	collected := 0
	offset := startOffset
	for offset < size && collected < targetBytes {
		hdr := make([]byte, 9)
		if _, err := p.f.ReadAt(hdr, offset); err != nil {
			break
		}
		length := binary.BigEndian.Uint32(hdr[1:5])
		total := 9 + int(length)
		buf := make([]byte, total)
		if _, err := p.f.ReadAt(buf, offset); err != nil {
			return nil, fmt.Errorf("part: read chunk at %d: %w", offset, err)
		}
		entries, consumed, err := chunk.Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("part: decode chunk at %d: %w", offset, err)
		}
		for _, e := range entries {
			if e.Serial < effectiveFrom || e.Serial > to {
				continue
			}
			out = append(out, e)
			collected += len(e.Data)
		}
		offset += int64(consumed)
	}
	return out, nil
}

// Sync fsyncs the file and advances the synced-serial watermark.
func (p *Part) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.f.Sync(); err != nil {
		return err
	}
	p.syncedSerial = p.lastSerial
	return nil
}

// SyncedSerial returns the last serial known to be durably synced.
func (p *Part) SyncedSerial() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.syncedSerial
}

// Erase advances the part's logical first serial to `to`, per §3.3: a part
// entirely below `to` is deleted outright (removed=true); a part straddling
// `to` keeps its bytes on disk but moves its logical from-bound forward so
// Range/Visit no longer see entries below `to` (removed=false, but the part
// is mutated); a part entirely at or above `to` is untouched.
func (p *Part) Erase(to uint64) (removed bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasSerial {
		return false, nil
	}
	if to > p.lastSerial {
		if err := p.f.Close(); err != nil {
			return false, err
		}
		if err := os.Remove(p.path); err != nil {
			return false, err
		}
		return true, nil
	}

	first, ok := p.firstSerialLocked()
	if !ok {
		return false, nil
	}
	if p.hasLogicalFrom && p.logicalFrom > first {
		first = p.logicalFrom
	}
	if to > first {
		p.logicalFrom = to
		p.hasLogicalFrom = true
	}
	return false, nil
}

// Close closes the underlying file handle.
func (p *Part) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.f.Close()
}

// FileName returns the canonical <domain>-<016d first-serial> name for a
// part whose first serial is firstSerial.
func FileName(domain string, firstSerial uint64) string {
	return fmt.Sprintf("%s-%016d", domain, firstSerial)
}

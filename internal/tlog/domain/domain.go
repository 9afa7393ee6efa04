// Package domain implements one transaction-log domain: an ordered
// collection of append-only parts with a single-threaded commit pipeline
// and a visitor/session protocol for tailing or replaying the log.
package domain

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/part"
)

// Packet is an accumulated, not-yet-committed set of entries and their
// estimated encoded size; the callbacks waiting on its durability are
// held by the enclosing commitChunk.
type Packet struct {
	Entries []chunk.Entry
	SizeBytes int
}

func (p *Packet) from() uint64 {
	if len(p.Entries) == 0 {
		return 0
	}
	return p.Entries[0].Serial
}

func (p *Packet) to() uint64 {
	if len(p.Entries) == 0 {
		return 0
	}
	return p.Entries[len(p.Entries)-1].Serial
}

// commitChunk is one unit of work handed to the single committer
// goroutine: an accumulated Packet plus every done-callback registered
// against it, so callers observe exactly-once completion.
type commitChunk struct {
	packet    Packet
	callbacks []func(error)
}

// Config governs a Domain's storage and commit-pipeline tuning.
type Config struct {
	DataDir          string
	ChunkSizeLimit   int64
	PartSizeLimit    int64
	FSyncOnCommit    bool
	CRC              chunk.CRCKind
	Compression      chunk.CompressionKind
	SyncPollInterval time.Duration
	SessionPollInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.SyncPollInterval == 0 {
		c.SyncPollInterval = 50 * time.Millisecond
	}
	if c.SessionPollInterval == 0 {
		c.SessionPollInterval = 10 * time.Millisecond
	}
	if c.CRC == 0 {
		c.CRC = chunk.CRCXXH64
	}
	if c.Compression == 0 {
		c.Compression = chunk.CompressionZSTD
	}
}

// Domain is one transaction-log domain.
type Domain struct {
	name string
	cfg  Config

	partsMu sync.RWMutex
	parts   []*part.Part // ordered by first serial ascending; last is the open tail

	currentChunkMu sync.Mutex
	currentChunk   *commitChunk
	lastSerial     uint64

	commitQueue chan *commitChunk
	commitWG    sync.WaitGroup
	closeOnce   sync.Once
	closed      chan struct{}

	sessionsMu sync.Mutex
	sessions   map[uint64]*Session
	nextSessionID uint64
}

// Open reopens every part file already in the domain's data directory
// (which must exist), or creates the first part when there is none, then
// starts the single committer goroutine.
func Open(name string, cfg Config) (*Domain, error) {
	cfg.setDefaults()
	d := &Domain{
		name:        name,
		cfg:         cfg,
		commitQueue: make(chan *commitChunk, 64),
		closed:      make(chan struct{}),
		sessions:    make(map[uint64]*Session),
	}

	// Part names zero-pad the first serial, so Glob's lexical order is
	// first-serial order.
	paths, err := filepath.Glob(filepath.Join(cfg.DataDir, name+"-*"))
	if err != nil {
		return nil, fmt.Errorf("domain: scan parts: %w", err)
	}
	for _, path := range paths {
		p, err := part.Open(path, cfg.FSyncOnCommit)
		if err != nil {
			return nil, fmt.Errorf("domain: reopen part: %w", err)
		}
		d.parts = append(d.parts, p)
		if r := p.Range(); !r.Empty() {
			d.lastSerial = r.To
		}
	}
	if len(d.parts) == 0 {
		tail, err := part.Create(filepath.Join(cfg.DataDir, part.FileName(name, 1)), cfg.FSyncOnCommit)
		if err != nil {
			return nil, fmt.Errorf("domain: open tail part: %w", err)
		}
		d.parts = append(d.parts, tail)
	}

	d.commitWG.Add(1)
	go d.committer()
	return d, nil
}

// LastSerial returns the maximum serial ever accepted by this domain.
func (d *Domain) LastSerial() uint64 {
	d.currentChunkMu.Lock()
	defer d.currentChunkMu.Unlock()
	return d.lastSerial
}

// Append accumulates entry into the in-flight packet, enforcing strict
// monotonicity, and triggers a commit once the chunk size limit is
// exceeded. done is invoked exactly once, asynchronously, once the
// containing chunk has been durably written (or failed).
func (d *Domain) Append(e chunk.Entry, done func(error)) error {
	d.currentChunkMu.Lock()
	defer d.currentChunkMu.Unlock()

	if e.Serial <= d.lastSerial {
		return fmt.Errorf("domain: append serial %d must exceed last serial %d", e.Serial, d.lastSerial)
	}

	if d.currentChunk == nil {
		d.currentChunk = &commitChunk{}
	}
	d.currentChunk.packet.Entries = append(d.currentChunk.packet.Entries, e)
	d.currentChunk.packet.SizeBytes += len(e.Data) + 16
	d.currentChunk.callbacks = append(d.currentChunk.callbacks, done)
	d.lastSerial = e.Serial

	if int64(d.currentChunk.packet.SizeBytes) > d.cfg.ChunkSizeLimit {
		d.commitAndTransferResponsesLocked()
	}
	return nil
}

// commitAndTransferResponsesLocked moves the accumulated chunk out,
// installs a fresh one carrying the same pending callbacks semantics, and
// enqueues the old one for the committer goroutine. Must be called with
// currentChunkMu held.
func (d *Domain) commitAndTransferResponsesLocked() {
	old := d.currentChunk
	d.currentChunk = &commitChunk{}
	select {
	case d.commitQueue <- old:
	case <-d.closed:
	}
}

// FlushPending forces any accumulated-but-not-yet-committed entries to be
// enqueued immediately, regardless of size.
func (d *Domain) FlushPending() {
	d.currentChunkMu.Lock()
	defer d.currentChunkMu.Unlock()
	if d.currentChunk != nil && len(d.currentChunk.packet.Entries) > 0 {
		d.commitAndTransferResponsesLocked()
	}
}

// committer is the single consumer goroutine draining commitQueue in
// strict order, the total-order requirement the domain's write pipeline
// exists to satisfy.
func (d *Domain) committer() {
	defer d.commitWG.Done()
	for cc := range d.commitQueue {
		err := d.commitOne(cc)
		for _, cb := range cc.callbacks {
			if cb != nil {
				cb(err)
			}
		}
	}
}

func (d *Domain) commitOne(cc *commitChunk) error {
	if len(cc.packet.Entries) == 0 {
		return nil
	}
	encoded, err := chunk.Encode(cc.packet.Entries, d.cfg.CRC, d.cfg.Compression)
	if err != nil {
		return err
	}

	d.partsMu.Lock()
	tail := d.parts[len(d.parts)-1]
	d.partsMu.Unlock()

	if err := tail.Commit(cc.packet.from(), cc.packet.to(), len(cc.packet.Entries), encoded); err != nil {
		return fmt.Errorf("domain: commit: %w", err)
	}

	if int64(tail.Count())*256 > d.cfg.PartSizeLimit { // heuristic byte estimate of 256 bytes per entry; Part does not track its byte size
		d.rotate(cc.packet.to())
	}
	return nil
}

func (d *Domain) rotate(lastSerial uint64) {
	d.partsMu.Lock()
	defer d.partsMu.Unlock()
	newPart, err := part.Create(filepath.Join(d.cfg.DataDir, part.FileName(d.name, lastSerial+1)), d.cfg.FSyncOnCommit)
	if err != nil {
		return
	}
	d.parts = append(d.parts, newPart)
}

// Status returns the domain's [firstSerial, lastSerial, entryCount]
// summary.
func (d *Domain) Status() (from, to uint64, count int) {
	d.partsMu.RLock()
	defer d.partsMu.RUnlock()
	for _, p := range d.parts {
		r := p.Range()
		if !r.Empty() {
			if from == 0 || r.From < from {
				from = r.From
			}
			if r.To > to {
				to = r.To
			}
		}
		count += p.Count()
	}
	return from, to, count
}

// Visit collects entries in [from, to] across every part in order.
func (d *Domain) Visit(from, to uint64, targetBytes int) ([]chunk.Entry, error) {
	d.partsMu.RLock()
	parts := append([]*part.Part(nil), d.parts...)
	d.partsMu.RUnlock()

	var out []chunk.Entry
	for _, p := range parts {
		r := p.Range()
		if r.Empty() || r.To < from || (to != 0 && r.From > to) {
			continue
		}
		entries, err := p.Visit(from, to, targetBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// TriggerSyncNow fsyncs the open tail part immediately, outside the
// regular sync poll loop.
func (d *Domain) TriggerSyncNow() error {
	d.partsMu.RLock()
	tail := d.parts[len(d.parts)-1]
	d.partsMu.RUnlock()
	return tail.Sync()
}

// RunSyncLoop fsyncs the tail part on cfg.SyncPollInterval until ctx is
// done.
func (d *Domain) RunSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SyncPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closed:
			return
		case <-ticker.C:
			_ = d.TriggerSyncNow()
		}
	}
}

// Prune erases parts whose range is entirely below `to` and advances the
// logical start of a part straddling `to`, never touching the open tail.
// While any active session still needs data below `to` it returns an
// error and erases nothing.
func (d *Domain) Prune(to uint64) error {
	if oldest := d.findOldestActiveVisit(); oldest > 0 && oldest < to {
		return fmt.Errorf("domain: prune blocked: active visitor still needs serial %d", oldest)
	}

	d.partsMu.Lock()
	defer d.partsMu.Unlock()

	remaining := make([]*part.Part, 0, len(d.parts))
	for i, p := range d.parts {
		if i == len(d.parts)-1 {
			remaining = append(remaining, p) // never erase the open tail
			continue
		}
		removed, err := p.Erase(to)
		if err != nil {
			return err
		}
		if !removed {
			remaining = append(remaining, p)
		}
	}
	d.parts = remaining
	return nil
}

func (d *Domain) findOldestActiveVisit() uint64 {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()
	var oldest uint64
	for _, s := range d.sessions {
		if s.state == SessionFinished {
			continue
		}
		cursor := s.Cursor()
		if oldest == 0 || cursor < oldest {
			oldest = cursor
		}
	}
	return oldest
}

// Session looks up an active session by id.
func (d *Domain) Session(id uint64) (*Session, bool) {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

// ActiveSessionCount returns the number of sessions not yet closed.
func (d *Domain) ActiveSessionCount() int {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()
	return len(d.sessions)
}

// SyncedSerial returns the tail part's durable-sync watermark.
func (d *Domain) SyncedSerial() uint64 {
	d.partsMu.RLock()
	defer d.partsMu.RUnlock()
	var max uint64
	for _, p := range d.parts {
		if s := p.SyncedSerial(); s > max {
			max = s
		}
	}
	return max
}

// Close stops the committer and sync loop and closes every part.
func (d *Domain) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		close(d.commitQueue)
	})
	d.commitWG.Wait()

	d.partsMu.Lock()
	defer d.partsMu.Unlock()
	var firstErr error
	for _, p := range d.parts {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sortPartsByFirstSerial is kept for callers that rebuild d.parts from a
// directory scan (e.g. reopening a domain after restart).
func sortPartsByFirstSerial(parts []*part.Part) {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Range().From < parts[j].Range().From
	})
}

// Package server implements the transaction-log-server façade: a
// directory of named Domains exposed through a fixed method table, with
// domain creation/deletion persisted to an on-disk domain index.
package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fathomdb/searchcore/internal/metrics"
	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/domain"
	"github.com/fathomdb/searchcore/internal/tlogerr"
)

const domainIndexFile = "domains.idx"

// Config governs how the server lays out domains on disk and tunes each
// one's commit pipeline.
type Config struct {
	RootDir         string
	DomainConfig    func(name string) domain.Config
	SyncPollInterval  time.Duration
	SessionPollInterval time.Duration
}

// Server is the TLS façade over many domains.
type Server struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	domains map[string]*domain.Domain
}

// New opens the server's root directory, loading the domain index and
// reopening every previously created domain.
func New(cfg Config, m *metrics.Metrics) (*Server, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o700); err != nil {
		return nil, tlogerr.NewIOError("mkdir", cfg.RootDir, err)
	}
	s := &Server{cfg: cfg, metrics: m, domains: make(map[string]*domain.Domain)}

	names, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		d, err := domain.Open(name, s.domainConfig(name))
		if err != nil {
			return nil, fmt.Errorf("server: reopen domain %q: %w", name, err)
		}
		s.domains[name] = d
	}
	return s, nil
}

func (s *Server) domainConfig(name string) domain.Config {
	c := s.cfg.DomainConfig(name)
	c.DataDir = filepath.Join(s.cfg.RootDir, name)
	if c.SyncPollInterval == 0 {
		c.SyncPollInterval = s.cfg.SyncPollInterval
	}
	if c.SessionPollInterval == 0 {
		c.SessionPollInterval = s.cfg.SessionPollInterval
	}
	return c
}

func (s *Server) indexPath() string {
	return filepath.Join(s.cfg.RootDir, domainIndexFile)
}

func (s *Server) readIndex() ([]string, error) {
	f, err := os.Open(s.indexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, tlogerr.NewIOError("read domain index", s.indexPath(), err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			names = append(names, line)
		}
	}
	return names, scanner.Err()
}

// writeIndexLocked rewrites the domain index from the current in-memory
// set. Must be called with s.mu held.
func (s *Server) writeIndexLocked() error {
	tmp := s.indexPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return tlogerr.NewIOError("write domain index", tmp, err)
	}
	w := bufio.NewWriter(f)
	for name := range s.domains {
		fmt.Fprintln(w, name)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return tlogerr.NewIOError("flush domain index", tmp, err)
	}
	if err := f.Close(); err != nil {
		return tlogerr.NewIOError("close domain index", tmp, err)
	}
	return os.Rename(tmp, s.indexPath())
}

// CreateDomain creates the domain's data directory and in-memory Domain,
// then appends its name to the on-disk index.
func (s *Server) CreateDomain(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.domains[name]; exists {
		return fmt.Errorf("server: domain %q already exists", name)
	}

	dataDir := filepath.Join(s.cfg.RootDir, name)
	cfg := s.domainConfig(name)
	cfg.DataDir = dataDir
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return tlogerr.NewIOError("mkdir", dataDir, err)
	}

	d, err := domain.Open(name, cfg)
	if err != nil {
		return fmt.Errorf("server: open domain %q: %w", name, err)
	}

	s.domains[name] = d
	if err := s.writeIndexLocked(); err != nil {
		return err
	}
	return nil
}

// DeleteDomain requires the domain have no active sessions, then closes
// it and removes it from the index (the data directory is left on disk
// for operator inspection; nothing in this module reopens a deleted
// name without a fresh createDomain).
func (s *Server) DeleteDomain(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[name]
	if !ok {
		return tlogerr.NewNotFoundError("domain", name)
	}
	if d.ActiveSessionCount() > 0 {
		return tlogerr.NewBusyRetryError("deleteDomain", "active sessions remain open")
	}
	if err := d.Close(); err != nil {
		return err
	}
	delete(s.domains, name)
	return s.writeIndexLocked()
}

// OpenDomain reports whether name exists.
func (s *Server) OpenDomain(name string) (*domain.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[name]
	if !ok {
		return nil, tlogerr.NewNotFoundError("domain", name)
	}
	return d, nil
}

// ListDomains returns every known domain name.
func (s *Server) ListDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.domains))
	for name := range s.domains {
		names = append(names, name)
	}
	return names
}

// DomainStatus returns (begin, end, count) for name.
func (s *Server) DomainStatus(name string) (begin, end uint64, count int, err error) {
	d, err := s.OpenDomain(name)
	if err != nil {
		return 0, 0, 0, err
	}
	begin, end, count = d.Status()
	return begin, end, count, nil
}

// DomainCommit decodes entries and synchronously appends them, blocking
// until every entry has been durably committed (or the commit fails).
func (s *Server) DomainCommit(name string, entries []chunk.Entry) error {
	d, err := s.OpenDomain(name)
	if err != nil {
		return err
	}

	start := time.Now()
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	wg.Add(len(entries))
	for _, e := range entries {
		if err := d.Append(e, func(err error) {
			defer wg.Done()
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}); err != nil {
			wg.Done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}
	d.FlushPending()
	wg.Wait()

	if s.metrics != nil {
		s.metrics.ObserveCommit(name, firstErr, time.Since(start))
	}
	return firstErr
}

// DomainPrune erases any fully-stale parts at or below `to`.
func (s *Server) DomainPrune(name string, to uint64) error {
	d, err := s.OpenDomain(name)
	if err != nil {
		return err
	}
	return d.Prune(to)
}

// DomainVisit creates a session over [from, to] and returns its id.
func (s *Server) DomainVisit(name string, from, to uint64) (uint64, error) {
	d, err := s.OpenDomain(name)
	if err != nil {
		return 0, err
	}
	return d.StartSession(from, to).ID(), nil
}

// DomainSessionRun runs one batch of the named session's visit, per
// §6.3 (one call per poll; the caller drives the 10ms retry loop).
func (s *Server) DomainSessionRun(name string, id uint64, targetBytes int) (serials []uint64, payloads [][]byte, state domain.SessionState, err error) {
	d, err := s.OpenDomain(name)
	if err != nil {
		return nil, nil, domain.SessionFinished, err
	}
	sess, ok := d.Session(id)
	if !ok {
		return nil, nil, domain.SessionFinished, tlogerr.NewNotFoundError("session", fmt.Sprint(id))
	}
	start := time.Now()
	serials, payloads, err = sess.Run(targetBytes)
	if s.metrics != nil {
		s.metrics.ObserveVisit(name, time.Since(start))
	}
	return serials, payloads, sess.State(), err
}

// DomainSessionClose closes the named session.
func (s *Server) DomainSessionClose(name string, id uint64) error {
	d, err := s.OpenDomain(name)
	if err != nil {
		return err
	}
	sess, ok := d.Session(id)
	if !ok {
		return tlogerr.NewNotFoundError("session", fmt.Sprint(id))
	}
	sess.Close()
	return nil
}

// DomainSync blocks, polling every cfg.SyncPollInterval, until the
// domain's synced watermark reaches syncTo, then returns (0, syncedTo).
func (s *Server) DomainSync(name string, syncTo uint64) (status int, syncedTo uint64, err error) {
	d, err := s.OpenDomain(name)
	if err != nil {
		return -1, 0, err
	}

	interval := s.cfg.SyncPollInterval
	if interval == 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := d.TriggerSyncNow(); err != nil {
		return -1, 0, err
	}
	for {
		if synced := d.SyncedSerial(); synced >= syncTo {
			return 0, synced, nil
		}
		<-ticker.C
		if err := d.TriggerSyncNow(); err != nil {
			return -1, 0, err
		}
	}
}

// Close closes every open domain.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, d := range s.domains {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package domain

import (
	"fmt"
	"sync"
	"time"
)

// SessionState is the visit state machine: Created -> Visiting -> InSync
// -> Finished. InSync means the session has caught up to the domain's
// last committed serial and is now polling for new entries.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionVisiting
	SessionInSync
	SessionFinished
)

// Session is one open visitor over a Domain's entries, tracked so Prune
// can avoid erasing data a session still needs.
type Session struct {
	id     uint64
	domain *Domain

	mu     sync.Mutex
	state  SessionState
	cursor uint64 // next serial this session has not yet delivered
	to     uint64 // 0 means "follow the tail indefinitely"
}

// Cursor returns the next serial the session needs, used by Prune to
// find the oldest still-referenced serial.
func (s *Session) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartSession opens a new session against [from, to]; to == 0 means
// follow indefinitely until Close.
func (d *Domain) StartSession(from, to uint64) *Session {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()

	d.nextSessionID++
	s := &Session{
		id:     d.nextSessionID,
		domain: d,
		state:  SessionVisiting,
		cursor: from,
		to:     to,
	}
	d.sessions[s.id] = s
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() uint64 { return s.id }

// Run fetches the next batch of entries at or after the session's
// cursor, up to targetBytes. If nothing new is available and the
// session is following an open-ended range, it transitions to InSync
// and the caller should poll again after domain.cfg.SessionPollInterval.
func (s *Session) Run(targetBytes int) ([]uint64, [][]byte, error) {
	s.mu.Lock()
	cursor := s.cursor
	to := s.to
	s.mu.Unlock()

	upper := to
	if upper == 0 {
		upper = s.domain.LastSerial()
	}
	if cursor > upper {
		s.mu.Lock()
		if s.to != 0 {
			s.state = SessionFinished
		} else {
			s.state = SessionInSync
		}
		s.mu.Unlock()
		return nil, nil, nil
	}

	entries, err := s.domain.Visit(cursor, upper, targetBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("session: run: %w", err)
	}

	serials := make([]uint64, len(entries))
	payloads := make([][]byte, len(entries))
	var next uint64 = cursor
	for i, e := range entries {
		serials[i] = e.Serial
		payloads[i] = e.Data
		next = e.Serial + 1
	}

	s.mu.Lock()
	if len(entries) > 0 {
		s.cursor = next
	}
	if s.cursor > upper {
		if s.to != 0 {
			s.state = SessionFinished
		} else {
			s.state = SessionInSync
		}
	} else {
		s.state = SessionVisiting
	}
	s.mu.Unlock()

	return serials, payloads, nil
}

// Close marks the session finished and removes it from the domain's
// active-session set, unblocking any Prune waiting on its cursor.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = SessionFinished
	s.mu.Unlock()

	s.domain.sessionsMu.Lock()
	delete(s.domain.sessions, s.id)
	s.domain.sessionsMu.Unlock()
}

// pollInterval exposes the configured session poll interval so a server
// façade can implement its own sleep-and-retry loop around Run.
func (d *Domain) pollInterval() time.Duration {
	return d.cfg.SessionPollInterval
}

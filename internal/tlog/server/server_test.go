package server

import (
	"testing"
	"time"

	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		RootDir: root,
		DomainConfig: func(name string) domain.Config {
			return domain.Config{
				ChunkSizeLimit: 1,
				PartSizeLimit:  1 << 30,
				CRC:            chunk.CRCXXH64,
				Compression:    chunk.CompressionNoneMulti,
			}
		},
		SyncPollInterval:   5 * time.Millisecond,
		SessionPollInterval: 5 * time.Millisecond,
	}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

// TestScenarioS4_TLSRoundTrip exercises scenario S4 end to end through
// the server façade: create domain "d", append three 64-byte payloads,
// check status, visit, and sync.
func TestScenarioS4_TLSRoundTrip(t *testing.T) {
	s := testServer(t)
	defer s.Close()

	require.NoError(t, s.CreateDomain("d"))

	entries := []chunk.Entry{
		{Serial: 100, Data: make([]byte, 64)},
		{Serial: 101, Data: make([]byte, 64)},
		{Serial: 102, Data: make([]byte, 64)},
	}
	require.NoError(t, s.DomainCommit("d", entries))

	begin, end, count, err := s.DomainStatus("d")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), begin)
	assert.Equal(t, uint64(102), end)
	assert.Equal(t, 3, count)

	id, err := s.DomainVisit("d", 99, 102)
	require.NoError(t, err)

	serials, _, _, err := s.DomainSessionRun("d", id, 1<<20)
	require.NoError(t, err)
	assert.Len(t, serials, 3)

	require.NoError(t, s.DomainSessionClose("d", id))

	status, syncedTo, err := s.DomainSync("d", 102)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, uint64(102), syncedTo)
}

func TestCreateDomain_PersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		RootDir: root,
		DomainConfig: func(name string) domain.Config {
			return domain.Config{CRC: chunk.CRCXXH64, Compression: chunk.CompressionNoneMulti, PartSizeLimit: 1 << 30}
		},
	}
	s1, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s1.CreateDomain("d"))
	require.NoError(t, s1.Close())

	s2, err := New(cfg, nil)
	require.NoError(t, err)
	defer s2.Close()
	assert.Contains(t, s2.ListDomains(), "d")
}

func TestDeleteDomain_BlockedByActiveSession(t *testing.T) {
	s := testServer(t)
	defer s.Close()
	require.NoError(t, s.CreateDomain("d"))

	id, err := s.DomainVisit("d", 1, 0)
	require.NoError(t, err)
	_ = id

	err = s.DeleteDomain("d")
	assert.Error(t, err)
}

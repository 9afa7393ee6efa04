package part

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitChunk(t *testing.T, p *Part, entries []chunk.Entry) {
	t.Helper()
	encoded, err := chunk.Encode(entries, chunk.CRCXXH64, chunk.CompressionNoneMulti)
	require.NoError(t, err)
	require.NoError(t, p.Commit(entries[0].Serial, entries[len(entries)-1].Serial, len(entries), encoded))
}

func TestAppendAndVisit_ReturnsEntriesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d-0000000000000100")
	p, err := Create(path, false)
	require.NoError(t, err)
	defer p.Close()

	commitChunk(t, p, []chunk.Entry{{Serial: 100, Data: make([]byte, 64)}})
	commitChunk(t, p, []chunk.Entry{{Serial: 101, Data: make([]byte, 64)}})
	commitChunk(t, p, []chunk.Entry{{Serial: 102, Data: make([]byte, 64)}})

	assert.Equal(t, 3, p.Count())

	entries, err := p.Visit(99, 102, 1<<20)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(100), entries[0].Serial)
	assert.Equal(t, uint64(101), entries[1].Serial)
	assert.Equal(t, uint64(102), entries[2].Serial)
}

func TestCommit_RejectsNonMonotonicSerial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d-0000000000000100")
	p, err := Create(path, false)
	require.NoError(t, err)
	defer p.Close()

	commitChunk(t, p, []chunk.Entry{{Serial: 100, Data: []byte("a")}})

	encoded, err := chunk.Encode([]chunk.Entry{{Serial: 100, Data: []byte("b")}}, chunk.CRCXXH64, chunk.CompressionNoneMulti)
	require.NoError(t, err)
	err = p.Commit(100, 100, 1, encoded)
	assert.Error(t, err)
}

// TestScenarioS5_CrashTailZero exercises scenario S5: three chunks are
// written, then a zero-filled extent is written past the last chunk;
// reopening truncates to the last good chunk and a subsequent append
// succeeds.
func TestScenarioS5_CrashTailZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d-0000000000000100")
	p, err := Create(path, false)
	require.NoError(t, err)

	commitChunk(t, p, []chunk.Entry{{Serial: 100, Data: make([]byte, 64)}})
	commitChunk(t, p, []chunk.Entry{{Serial: 101, Data: make([]byte, 64)}})
	commitChunk(t, p, []chunk.Entry{{Serial: 102, Data: make([]byte, 64)}})
	require.NoError(t, p.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	zeros := make([]byte, 512+4096)
	_, err = f.WriteAt(zeros, info.Size())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())
	r := reopened.Range()
	assert.Equal(t, uint64(102), r.To)

	encoded, err := chunk.Encode([]chunk.Entry{{Serial: 103, Data: []byte("next")}}, chunk.CRCXXH64, chunk.CompressionNoneMulti)
	require.NoError(t, err)
	assert.NoError(t, reopened.Commit(103, 103, 1, encoded))
}

func TestErase_RemovesFileWhenFullyPastRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d-0000000000000100")
	p, err := Create(path, false)
	require.NoError(t, err)

	commitChunk(t, p, []chunk.Entry{{Serial: 100, Data: []byte("a")}})

	removed, err := p.Erase(200)
	require.NoError(t, err)
	assert.True(t, removed)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

// TestErase_StraddlingPartAdvancesLogicalFrom covers the partial-erase
// case: a part whose range straddles `to` keeps its bytes on disk, but
// Range/Visit no longer surface entries below `to`.
func TestErase_StraddlingPartAdvancesLogicalFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d-0000000000000100")
	p, err := Create(path, false)
	require.NoError(t, err)
	defer p.Close()

	commitChunk(t, p, []chunk.Entry{{Serial: 100, Data: []byte("a")}})
	commitChunk(t, p, []chunk.Entry{{Serial: 101, Data: []byte("b")}})
	commitChunk(t, p, []chunk.Entry{{Serial: 102, Data: []byte("c")}})

	removed, err := p.Erase(102)
	require.NoError(t, err)
	assert.False(t, removed)
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("file should still exist after a partial erase: %v", statErr)
	}

	r := p.Range()
	assert.Equal(t, uint64(102), r.From)
	assert.Equal(t, uint64(102), r.To)

	entries, err := p.Visit(1, 200, 1<<20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(102), entries[0].Serial)

	// A second, lower erase must not move the bound backwards.
	removed, err = p.Erase(50)
	require.NoError(t, err)
	assert.False(t, removed)
	r = p.Range()
	assert.Equal(t, uint64(102), r.From)
}

package upstream

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func seedBlockStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockchain.sqlite")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE full_blocks (height INTEGER, block BLOB, in_main_chain INTEGER)`)
	require.NoError(t, err)

	for h := 0; h < 5; h++ {
		_, err = db.Exec(`INSERT INTO full_blocks (height, block, in_main_chain) VALUES (?, ?, 1)`, h, []byte{byte(h)})
		require.NoError(t, err)
	}
	// A reorged-out block at the same height as 2, excluded from queries.
	_, err = db.Exec(`INSERT INTO full_blocks (height, block, in_main_chain) VALUES (2, ?, 0)`, []byte{0xee})
	require.NoError(t, err)

	return path
}

func TestFetchRangeReturnsOnlyMainChainBlocksInRange(t *testing.T) {
	path := seedBlockStore(t)
	s, err := OpenBlockStore(path)
	require.NoError(t, err)
	defer s.Close()

	out, err := s.FetchRange(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, []byte{1}, out[1])
	require.Equal(t, []byte{2}, out[2])
	require.Equal(t, []byte{3}, out[3])
}

func TestFetchOneReturnsNotOkForMissingHeight(t *testing.T) {
	path := seedBlockStore(t)
	s, err := OpenBlockStore(path)
	require.NoError(t, err)
	defer s.Close()

	blob, ok, err := s.FetchOne(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{3}, blob)

	_, ok, err = s.FetchOne(context.Background(), 999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFetchRangeOfZeroIsEmpty(t *testing.T) {
	path := seedBlockStore(t)
	s, err := OpenBlockStore(path)
	require.NoError(t, err)
	defer s.Close()

	out, err := s.FetchRange(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

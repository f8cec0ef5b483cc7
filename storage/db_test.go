package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("ledger"), []byte("state")))
	_, err = db1.Get([]byte("other"))
	require.ErrorIs(t, err, ErrNotFound)
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("ledger"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), got)
}

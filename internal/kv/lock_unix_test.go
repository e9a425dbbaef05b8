//go:build unix

package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteWriterLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	ctx := context.Background()

	first, err := NewSQLite(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	release, err := AcquireWriter(ctx, first)
	require.NoError(t, err)

	_, err = AcquireWriter(ctx, second)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	releaseSecond, err := AcquireWriter(ctx, second)
	require.NoError(t, err)
	releaseSecond()
}

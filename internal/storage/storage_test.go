package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
	"github.com/jwebster45206/novel-engine/pkg/storage/storagetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := NewRedisStorage(mr.Addr(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func openTempSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "novel.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, _ := setupTestRedis(t)
		return s
	})
}

func TestSQLiteStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return openTempSQLite(t)
	})
}

func TestNewRedisStorage_URL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStorage("redis://"+mr.Addr()+"/0", testLogger())
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))

	_, err = NewRedisStorage("redis://:bad:port/x", testLogger())
	assert.Error(t, err)
}

func TestRedisStorage_Keys(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	p := cartridgetest.Project()
	require.NoError(t, s.PutProject(ctx, &p))
	pt, err := state.NewPlaythrough(&p, "user-1")
	require.NoError(t, err)
	require.NoError(t, s.CreatePlaythrough(ctx, pt))

	assert.True(t, mr.Exists("project:"+cartridgetest.ProjectID))
	assert.True(t, mr.Exists("playthrough:"+pt.ID.String()))
	members, err := mr.Members("playthroughs:" + cartridgetest.ProjectID + ":user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{pt.ID.String()}, members)
}

func TestRedisStorage_CreateTwiceFails(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()
	p := cartridgetest.Project()
	pt, err := state.NewPlaythrough(&p, "user-1")
	require.NoError(t, err)

	require.NoError(t, s.CreatePlaythrough(ctx, pt))
	assert.Error(t, s.CreatePlaythrough(ctx, pt))
}

func TestRedisStorage_PingAfterServerClose(t *testing.T) {
	s, mr := setupTestRedis(t)
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(" ", testLogger())
	assert.Error(t, err)
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novel.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, testLogger())
	require.NoError(t, err)
	p := cartridgetest.Project()
	require.NoError(t, s.PutProject(ctx, &p))
	pt, err := state.NewPlaythrough(&p, "user-1")
	require.NoError(t, err)
	require.NoError(t, s.CreatePlaythrough(ctx, pt))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, testLogger())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadPlaythrough(ctx, pt.ID)
	require.NoError(t, err)
	assert.Equal(t, pt.Lines, got.Lines)
	assert.EqualValues(t, 1, got.Version)
}

func TestSQLiteStorage_CanceledContext(t *testing.T) {
	s := openTempSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadProject(ctx, cartridgetest.ProjectID)
	assert.ErrorIs(t, err, context.Canceled)
}

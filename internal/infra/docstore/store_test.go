package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type counter struct {
	Value int `json:"value"`
}

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	return New(b, zap.NewNop()), dir
}

func TestRead_AbsentDocumentWritesDefault(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	got, err := Read(ctx, s, "counter.json", func() counter { return counter{Value: 7} })
	require.NoError(t, err)
	assert.Equal(t, 7, got.Value)

	raw, err := os.ReadFile(filepath.Join(dir, "counter.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"value": 7`)
}

func TestRead_CorruptDocumentFallsBackAndKeepsBackup(t *testing.T) {
	s, dir := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.json"), []byte("{not json"), 0o644))

	got, err := Read(context.Background(), s, "counter.json", func() counter { return counter{Value: 1} })
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backups int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "counter.json.corrupt-") {
			backups++
		}
	}
	assert.Equal(t, 1, backups)
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	s, dir := newFileStore(t)
	require.NoError(t, Write(context.Background(), s, "counter.json", counter{Value: 3}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "counter.json", entries[0].Name())
}

func TestUpdate_NoChangeSkipsWrite(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	def := func() counter { return counter{} }
	require.NoError(t, Write(ctx, s, "counter.json", counter{Value: 2}))

	path := filepath.Join(dir, "counter.json")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	err := Update(ctx, s, "counter.json", def, func(c *counter) error { return ErrNoChange })
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "document should not be rewritten")
}

func TestUpdate_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	def := func() counter { return counter{} }

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Update(ctx, s, "counter.json", def, func(c *counter) error {
				c.Value++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := Read(ctx, s, "counter.json", def)
	require.NoError(t, err)
	assert.Equal(t, writers, got.Value)
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	defer b.Close()
	s := New(b, zap.NewNop())
	ctx := context.Background()

	_, err = b.Load(ctx, "counter.json")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, Write(ctx, s, "counter.json", counter{Value: 4}))
	require.NoError(t, Write(ctx, s, "counter.json", counter{Value: 5}))

	got, err := Read(ctx, s, "counter.json", func() counter { return counter{} })
	require.NoError(t, err)
	assert.Equal(t, 5, got.Value)
	assert.NoError(t, b.Ping(ctx))
}

func TestFileBackend_WatchReportsOutOfBandWrites(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	require.NoError(t, b.Watch(ctx, zap.NewNop(), func(name string) { changed <- name }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clients.json"), []byte("[]"), 0o644))

	select {
	case name := <-changed:
		assert.Equal(t, "clients.json", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mongo"})
	assert.Error(t, err)
}

package watcher

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

	"github.com/jxucoder/uavlog/pkg/model"
)

type recordingIngester struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingIngester) Supported(name string) bool {
	return strings.HasSuffix(name, ".bin") || strings.HasSuffix(name, ".log")
}

func (r *recordingIngester) IngestFile(_ context.Context, path, name string) (*model.Flight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return &model.Flight{ID: name}, nil
}

func (r *recordingIngester) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startWatcher(t *testing.T, dir string, ing Ingester) (*Watcher, context.CancelFunc, chan error) {
	t.Helper()
	w := New(dir, 150*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-w.ready:
	case err := <-errc:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}
	t.Cleanup(cancel)
	return w, cancel, errc
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	path := filepath.Join(dir, "flight.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(ing.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// No second ingestion once the file is quiet.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{"flight.bin"}, ing.Calls())
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000001.log"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(ing.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"00000001.log"}, ing.Calls())
}

func TestWatcher_LeavesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.bin"), []byte("x"), 0o644))

	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, ing.Calls())
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	_, cancel, errc := startWatcher(t, dir, ing)

	// A pending file is dropped when the watcher stops.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.bin"), []byte("x"), 0o644))
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "incoming")
	startWatcher(t, dir, &recordingIngester{})

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_DefaultDebounce(t *testing.T) {
	w := New(t.TempDir(), 0, &recordingIngester{})
	assert.Equal(t, DefaultDebounce, w.debounce)
	assert.Equal(t, "watcher", w.Name())
}

func TestClaim_ReplacedTimerLoses(t *testing.T) {
	w := New(t.TempDir(), time.Hour, &recordingIngester{})
	path := filepath.Join(w.dir, "flight.bin")

	stale := time.NewTimer(time.Hour)
	fresh := time.NewTimer(time.Hour)
	defer stale.Stop()
	defer fresh.Stop()

	// A fired timer that was replaced before it took the lock.
	w.pending[path] = fresh
	assert.False(t, w.claim(path, stale))
	assert.Same(t, fresh, w.pending[path], "stale timer must not clear the newer one")

	require.True(t, w.claim(path, fresh))
	w.wg.Done()
	assert.NotContains(t, w.pending, path)

	// Claimed already: a second firing loses.
	assert.False(t, w.claim(path, fresh))
}

func TestClaim_AfterStop(t *testing.T) {
	w := New(t.TempDir(), time.Hour, &recordingIngester{})
	path := filepath.Join(w.dir, "flight.bin")
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	w.pending[path] = timer
	w.stopPending()
	assert.False(t, w.claim(path, timer))
}

package uavlog

import (
	"context"
	"go/parser"
	"go/token"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jxucoder/uavlog/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestBuild_Defaults(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewBuilder().WithConfig(cfg).WithLLM(nil).Build()
	require.NoError(t, err)
	t.Cleanup(func() { app.store.Close() })

	assert.Equal(t, filepath.Join(cfg.DataDir, "uploads"), cfg.UploadDir)
	assert.FileExists(t, cfg.DatabasePath())
	assert.Empty(t, app.Channels())
	assert.Equal(t, "fallback", app.chat.Provider())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestBuild_WatchChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchDir = filepath.Join(cfg.DataDir, "incoming")

	app, err := NewBuilder().WithConfig(cfg).WithLLM(nil).Build()
	require.NoError(t, err)
	t.Cleanup(func() { app.store.Close() })

	require.Len(t, app.Channels(), 1)
	assert.Equal(t, "watcher", app.Channels()[0].Name())
}

type stubChannel struct {
	ran chan struct{}
}

func (s *stubChannel) Name() string { return "stub" }

func (s *stubChannel) Run(ctx context.Context) error {
	close(s.ran)
	<-ctx.Done()
	return nil
}

func TestStart_StopsOnCancel(t *testing.T) {
	ch := &stubChannel{ran: make(chan struct{})}
	app, err := NewBuilder().WithConfig(testConfig(t)).WithLLM(nil).WithChannel(ch).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()

	select {
	case <-ch.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not started")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

// pkg/ is importable by other modules, which cannot reach internal/.
func TestPkgDoesNotImportInternal(t *testing.T) {
	fset := token.NewFileSet()
	err := filepath.WalkDir("pkg", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range f.Imports {
			p, _ := strconv.Unquote(imp.Path.Value)
			if strings.HasPrefix(p, "github.com/jxucoder/uavlog/internal/") {
				t.Errorf("%s imports %s", path, p)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

package httpx

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	"github.com/target/jobfeed/internal/mocks"
	"github.com/target/jobfeed/internal/service"
)

type testSub struct {
	scope model.Scope
	ch    chan model.Change
	mu    sync.Mutex
	err   error
	once  sync.Once
}

func (s *testSub) Changes() <-chan model.Change { return s.ch }

func (s *testSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *testSub) Close() { s.once.Do(func() { close(s.ch) }) }

// fail ends the subscription with err.
func (s *testSub) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Close()
}

// testFeed records subscriptions and lets tests push changes into them.
type testFeed struct {
	mu   sync.Mutex
	subs []*testSub
	// initial is delivered to subscriptions opened with includeInitial.
	initial func(model.Scope) []model.Change
	opened  chan *testSub
}

func newTestFeed() *testFeed {
	return &testFeed{opened: make(chan *testSub, 8)}
}

func (f *testFeed) Subscribe(ctx context.Context, scope model.Scope, includeInitial bool) (core.Subscription, error) {
	sub := &testSub{scope: scope, ch: make(chan model.Change, 16)}
	if includeInitial && f.initial != nil {
		for _, c := range f.initial(scope) {
			sub.ch <- c
		}
	}
	context.AfterFunc(ctx, sub.Close)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	f.opened <- sub
	return sub, nil
}

func (f *testFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *testFeed) next(t *testing.T) *testSub {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

type recordingReporter struct {
	mu    sync.Mutex
	errs  []error
	attrs []map[string]string
}

func (r *recordingReporter) Report(_ context.Context, err error, attrs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.attrs = append(r.attrs, attrs)
}

func (r *recordingReporter) reported() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type testEnv struct {
	jobs     *mocks.MockJobRepository
	results  *mocks.MockResultRepository
	feed     *testFeed
	reporter *recordingReporter
	server   *httptest.Server
	shutdown context.CancelFunc
}

func newTestEnv(t *testing.T, modules ...model.Module) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		jobs:     mocks.NewMockJobRepository(ctrl),
		results:  mocks.NewMockResultRepository(ctrl),
		feed:     newTestFeed(),
		reporter: &recordingReporter{},
	}

	reader, err := service.NewJobReader(service.JobReaderOptions{
		Jobs: env.jobs, Results: env.results, BaseURL: "http://feed.test",
	})
	require.NoError(t, err)
	watcher, err := service.NewJobWatcher(service.JobWatcherOptions{
		Jobs: env.jobs, Feed: env.feed, BaseURL: "http://feed.test",
	})
	require.NoError(t, err)

	shutdownCtx, shutdown := context.WithCancel(context.Background())
	env.shutdown = shutdown
	lifecycle := NewLifecycle(LifecycleOptions{
		Config:   config.WebSocketConfig{PingPeriod: time.Minute, WriteWait: time.Second, ReadLimit: 1024},
		Reporter: env.reporter,
		Shutdown: shutdownCtx,
	})

	handler, err := NewRouter(RouterServices{
		Reader:    reader,
		Watcher:   watcher,
		Feed:      env.feed,
		Lifecycle: lifecycle,
		Modules:   modules,
	})
	require.NoError(t, err)

	env.server = httptest.NewServer(handler)
	t.Cleanup(func() {
		shutdown()
		env.server.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readText reads the next text frame.
func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	typ, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	return string(b)
}

// readClose reads until the close frame and returns it.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
		return ce
	}
}

func notFound(id string) error { return apperrors.NotFoundf("job %s not found", id) }

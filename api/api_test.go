package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/monitor"
)

type fakeSource struct {
	mu        sync.Mutex
	snap      *models.Snapshot
	health    monitor.Health
	refreshes int
	subs      []chan *models.Snapshot
}

func (f *fakeSource) Snapshot() (*models.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.snap != nil
}

func (f *fakeSource) Health() monitor.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeSource) RequestRefresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshes == 1
}

func (f *fakeSource) Subscribe() (<-chan *models.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *models.Snapshot, 1)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeSource) publish(s *models.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
	for _, ch := range f.subs {
		ch <- s
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeLedger struct {
	doc models.LedgerDocument
}

func (f *fakeLedger) Document(context.Context) models.LedgerDocument { return f.doc }

func (f *fakeLedger) Totals(context.Context) models.Earnings {
	return models.Earnings{TrackedJobs: len(f.doc.Jobs), TotalEarnedUSD: 0.1}
}

func SetupMockRouter(source *fakeSource, ledger *fakeLedger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(NewHandler(source, ledger), nil)
}

func testSnapshot(status models.NodeStatus) *models.Snapshot {
	return &models.Snapshot{NodeAddress: "node", Status: status, Specs: models.EmptySpecs()}
}

func TestSnapshotUnavailableBeforeFirstSuccess(t *testing.T) {
	msg := "cycle deadline exceeded"
	router := SetupMockRouter(&fakeSource{health: monitor.Health{LastError: &msg}}, &fakeLedger{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/snapshot", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem ProblemDetail
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "Snapshot Unavailable", problem.Title)
	assert.Equal(t, msg, problem.Detail)
	assert.Equal(t, "/api/v1/snapshot", problem.Instance)
}

func TestSnapshotReturnsLastGood(t *testing.T) {
	router := SetupMockRouter(&fakeSource{snap: testSnapshot(models.StatusQueued)}, &fakeLedger{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/snapshot", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var snap models.Snapshot
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.StatusQueued, snap.Status)
	assert.Equal(t, "node", snap.NodeAddress)
}

func TestStatusAlwaysAvailable(t *testing.T) {
	router := SetupMockRouter(&fakeSource{health: monitor.Health{NodeAddress: "node", ConsecutiveFailures: 3}}, &fakeLedger{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var health monitor.Health
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, 3, health.ConsecutiveFailures)
	assert.False(t, health.Available)
}

func TestLedgerFiltersAndOrders(t *testing.T) {
	ledger := &fakeLedger{doc: models.LedgerDocument{Version: models.LedgerVersion, Jobs: map[string]models.JobRecord{
		"a": {JobID: "a", TimeStart: 100, TimeEnd: 200, Finalized: true},
		"b": {JobID: "b", TimeStart: 300, TimeEnd: 500, Finalized: true},
		"c": {JobID: "c", TimeStart: 600, State: "RUNNING"},
	}}}
	router := SetupMockRouter(&fakeSource{}, ledger)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/ledger?finalized=true", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))
	var resp LedgerResponse
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "b", resp.Jobs[0].JobID)
	assert.Equal(t, "a", resp.Jobs[1].JobID)
	assert.Equal(t, 3, resp.Totals.TrackedJobs)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/ledger?limit=1", nil)
	router.ServeHTTP(w, req)
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "b", resp.Jobs[0].JobID)
}

func TestLedgerRejectsBadQuery(t *testing.T) {
	router := SetupMockRouter(&fakeSource{}, &fakeLedger{})

	for _, query := range []string{"limit=-1", "limit=5000"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/ledger?"+query, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		var problem ProblemDetail
		require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &problem))
		assert.Equal(t, "Input Validation Error", problem.Title)
		require.Len(t, problem.Errors, 1)
		assert.Equal(t, "#/limit", problem.Errors[0].Pointer)
	}
}

func TestRefreshIsAccepted(t *testing.T) {
	source := &fakeSource{}
	router := SetupMockRouter(source, &fakeLedger{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/refresh", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":true}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"queued":false}`, w.Body.String())
}

func TestCorsAllowsConfiguredOrigin(t *testing.T) {
	router := SetupMockRouter(&fakeSource{}, &fakeLedger{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:9991")
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:9991", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req.Header.Set("Origin", "http://evil.example")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	source := &fakeSource{snap: testSnapshot(models.StatusRunning)}
	server := httptest.NewServer(SetupMockRouter(source, &fakeLedger{}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap models.Snapshot
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, jsonx.Unmarshal(raw, &snap))
	assert.Equal(t, models.StatusRunning, snap.Status)

	require.Eventually(t, func() bool { return source.subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	source.publish(testSnapshot(models.StatusOffline))

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, jsonx.Unmarshal(raw, &snap))
	assert.Equal(t, models.StatusOffline, snap.Status)
}

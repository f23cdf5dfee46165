package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"

	"gitlab.com/nunet/nosana-node-monitor/cache"
	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
	"gitlab.com/nunet/nosana-node-monitor/ledger"
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/upstream"
)

const marketAddr = "7AtiXMSH6R1jjBxrcYjehCkkSF7zvYWte63gwEDBcGHq"

var nodeKey = bytes.Repeat([]byte{7}, 32)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// upstreamStub serves canned documents and counts requests per source.
type upstreamStub struct {
	mu        sync.Mutex
	infoState string
	infoDelay time.Duration
	jobsFail  bool
	hits      map[string]*int32
}

func (u *upstreamStub) setJobsFail(fail bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.jobsFail = fail
}

func (u *upstreamStub) setState(s string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.infoState = s
}

func (u *upstreamStub) count(name string) int {
	return int(atomic.LoadInt32(u.hits[name]))
}

func (u *upstreamStub) handler() http.Handler {
	u.hits = map[string]*int32{"info": new(int32), "specs": new(int32), "markets": new(int32), "jobs": new(int32), "rpc": new(int32)}
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(u.hits["info"], 1)
		u.mu.Lock()
		state, delay := u.infoState, u.infoDelay
		u.mu.Unlock()
		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		fmt.Fprintf(w, `{"state":%q,"uptime":3600,"info":{"version":"1.0.30","country":"NL","network":{"ping_ms":12.5,"download_mbps":900,"upload_mbps":450}}}`, state)
	})
	mux.HandleFunc("/specs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(u.hits["specs"], 1)
		fmt.Fprintf(w, `{"ram":32000,"diskSpace":512,"cpu":"AMD Ryzen 9","logicalCores":24,"physicalCores":12,"gpus":[{"gpu":"RTX 4090","memory":24564}],"memoryGPU":24564,"marketAddress":%q}`, marketAddr)
	})
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(u.hits["markets"], 1)
		fmt.Fprintf(w, `[{"address":"other","name":"Other"},{"address":%q,"name":"RTX 4090","type":"PREMIUM","usd_reward_per_hour":0.45}]`, marketAddr)
	})
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(u.hits["jobs"], 1)
		u.mu.Lock()
		fail := u.jobsFail
		u.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"jobs":[{"id":"1","timeStart":100,"timeEnd":200,"usdRewardPerHour":3.6,"state":"COMPLETED"}]}`))
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(u.hits["rpc"], 1)
		blob := make([]byte, 8)
		binary.LittleEndian.PutUint32(blob[4:], 2)
		blob = append(blob, bytes.Repeat([]byte{1}, 32)...)
		blob = append(blob, nodeKey...)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":{"data":[%q,"base64"]}}}`, base64.StdEncoding.EncodeToString(blob))
	})
	return mux
}

type CoordinatorTestSuite struct {
	suite.Suite
	stub   *upstreamStub
	server *httptest.Server
	clock  *fakeClock
	ledger *ledger.Ledger
	node   string
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.stub = &upstreamStub{infoState: "RUNNING"}
	s.server = httptest.NewServer(s.stub.handler())
	s.clock = &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s.node = base58.Encode(nodeKey)
	s.ledger = ledger.New(ledger.NewFileStore(afero.NewMemMapFs(), "/data"), s.node, 10, ledger.WithClock(s.clock.Now))
}

func (s *CoordinatorTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *CoordinatorTestSuite) endpoints(base string) config.Endpoints {
	return config.Endpoints{
		Info:    base + "/info?node={address}",
		Specs:   base + "/specs?node={address}",
		Markets: base + "/markets",
		Jobs:    base + "/jobs",
	}
}

func (s *CoordinatorTestSuite) newCoordinator(endpoints config.Endpoints, settings Settings) *Coordinator {
	settings.NodeAddress = s.node
	client := upstream.NewClient(endpoints, time.Second, upstream.WithRPCURL(s.server.URL+"/rpc"))
	return New(settings, client,
		cache.NewMarketCache(cache.DefaultMarketTTL, s.clock.Now),
		cache.NewJobGate(cache.DefaultJobTTL),
		s.ledger,
		WithClock(s.clock.Now),
	)
}

func (s *CoordinatorTestSuite) TestHealthyCycle() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	snap, err := c.Refresh(context.Background())
	s.Require().NoError(err)

	s.Equal(models.StatusRunning, snap.Status)
	s.NotEmpty(snap.CycleID)
	s.Equal("1.0.30", *snap.Version)
	s.Equal(12.5, *snap.Network.PingMs)
	s.Equal("AMD Ryzen 9", *snap.Specs.CPU)
	s.Equal("RTX 4090", *snap.Specs.GPUModel)
	s.Equal("RTX 4090", *snap.Market.Name)
	s.Equal(0.45, *snap.Market.USDRewardPerHour)
	s.InDelta(0.1, snap.Earnings.TotalEarnedUSD, 1e-12)
	s.Equal(100.0, snap.Earnings.TotalRuntimeSeconds)
	s.Nil(snap.Queue.Position)
	s.True(snap.Sources.Info.OK)
	s.True(snap.Sources.Jobs.OK)
	s.False(snap.Sources.Jobs.Cached)
	s.Equal(models.StatusRunning, c.PreviousStatus())
}

func (s *CoordinatorTestSuite) TestInfoConnectionErrorYieldsOffline() {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	endpoints := s.endpoints(s.server.URL)
	endpoints.Info = deadURL + "/info"
	c := s.newCoordinator(endpoints, Settings{})

	snap, err := c.Refresh(context.Background())
	s.Require().NoError(err)
	s.Equal(models.StatusOffline, snap.Status)
	s.Nil(snap.Uptime)
	s.False(snap.Sources.Info.OK)
	s.Require().NotNil(snap.Sources.Info.Error)

	s.Equal("AMD Ryzen 9", *snap.Specs.CPU)
	s.Equal("RTX 4090", *snap.Market.Name)
	s.InDelta(0.1, snap.Earnings.TotalEarnedUSD, 1e-12)
}

func (s *CoordinatorTestSuite) TestSnapshotIsStructurallyCompleteWhenEverythingFails() {
	dead := httptest.NewServer(http.NotFoundHandler())
	endpoints := s.endpoints(dead.URL)
	dead.Close()
	c := s.newCoordinator(endpoints, Settings{})

	snap, err := c.Refresh(context.Background())
	s.Require().NoError(err)
	s.Equal(models.StatusOffline, snap.Status)

	raw, err := jsonx.Marshal(snap)
	s.Require().NoError(err)
	var doc map[string]interface{}
	s.Require().NoError(jsonx.Unmarshal(raw, &doc))

	for _, key := range []string{"cycle_id", "node_address", "fetched_at", "status", "state", "uptime", "version",
		"country", "network", "specs", "market", "earnings", "queue", "sources"} {
		s.Contains(doc, key)
	}
	nested := map[string][]string{
		"network":  {"ping_ms", "download_mbps", "upload_mbps"},
		"specs":    {"ram_mb", "disk_space_gb", "cpu", "logical_cores", "physical_cores", "gpu_model", "gpus", "memory_gpu_mb", "market_address", "node_version", "cuda_version", "bandwidth"},
		"market":   {"address", "name", "type", "slug", "nos_reward_per_second", "usd_reward_per_hour"},
		"earnings": {"total_runtime_seconds", "total_earned_usd", "tracked_jobs", "finalized_jobs", "last_benchmark", "ledger_refreshed_at"},
		"queue":    {"position", "length"},
		"sources":  {"info", "specs", "markets", "jobs", "account"},
	}
	for section, keys := range nested {
		obj, ok := doc[section].(map[string]interface{})
		s.Require().True(ok, section)
		for _, key := range keys {
			s.Contains(obj, key, section)
		}
	}
	s.Equal([]interface{}{}, doc["specs"].(map[string]interface{})["gpus"])
}

func (s *CoordinatorTestSuite) TestJobsAreGatedByTTL() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.stub.count("jobs"))

	s.clock.Advance(time.Minute)
	snap, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.stub.count("jobs"))
	s.True(snap.Sources.Jobs.Cached)
	s.InDelta(0.1, snap.Earnings.TotalEarnedUSD, 1e-12)

	s.clock.Advance(cache.DefaultJobTTL)
	_, err = c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(2, s.stub.count("jobs"))
}

func (s *CoordinatorTestSuite) TestFailedForcedJobsFetchIsRetried() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.stub.count("jobs"))

	s.clock.Advance(time.Minute)
	s.stub.setState("QUEUED")
	s.stub.setJobsFail(true)
	snap, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusQueued, snap.Status)
	s.Equal(2, s.stub.count("jobs"))
	s.False(snap.Sources.Jobs.OK)

	s.clock.Advance(time.Minute)
	s.stub.setJobsFail(false)
	snap, err = c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(3, s.stub.count("jobs"))
	s.True(snap.Sources.Jobs.OK)
	s.False(snap.Sources.Jobs.Cached)

	s.clock.Advance(time.Minute)
	snap, err = c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(3, s.stub.count("jobs"))
	s.True(snap.Sources.Jobs.Cached)
}

func (s *CoordinatorTestSuite) TestCacheStatusTracksSuccessfulFetches() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	st := c.CacheStatus()
	s.Nil(st.MarketsUpdatedAt)
	s.Nil(st.JobsRefreshedAt)

	started := s.clock.Now()
	_, err := c.Refresh(context.Background())
	s.Require().NoError(err)

	st = c.CacheStatus()
	s.Require().NotNil(st.MarketsUpdatedAt)
	s.Equal(started, *st.MarketsUpdatedAt)
	s.Nil(st.MarketsError)
	s.Require().NotNil(st.JobsRefreshedAt)
	s.Equal(started, *st.JobsRefreshedAt)
}

func (s *CoordinatorTestSuite) TestStatusTransitionForcesJobsFetch() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.stub.count("jobs"))

	s.stub.setState("QUEUED")
	s.clock.Advance(time.Minute)
	snap, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusQueued, snap.Status)
	s.Equal(2, s.stub.count("jobs"))

	s.clock.Advance(time.Minute)
	_, err = c.Refresh(ctx)
	s.Require().NoError(err)
	s.Equal(2, s.stub.count("jobs"))
}

func (s *CoordinatorTestSuite) TestMarketsAreCachedWithinTTL() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)
	snap, err := c.Refresh(ctx)
	s.Require().NoError(err)

	s.Equal(1, s.stub.count("markets"))
	s.True(snap.Sources.Markets.Cached)
	s.Equal("RTX 4090", *snap.Market.Name)
}

func (s *CoordinatorTestSuite) TestTwoCyclesWithSameJobsHaveEqualTotals() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})
	ctx := context.Background()

	first, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.clock.Advance(cache.DefaultJobTTL + time.Second)
	second, err := c.Refresh(ctx)
	s.Require().NoError(err)

	s.Equal(2, s.stub.count("jobs"))
	s.Equal(first.Earnings.TotalRuntimeSeconds, second.Earnings.TotalRuntimeSeconds)
	s.Equal(first.Earnings.TotalEarnedUSD, second.Earnings.TotalEarnedUSD)
	s.Equal(first.Earnings.FinalizedJobs, second.Earnings.FinalizedJobs)
}

func (s *CoordinatorTestSuite) TestCycleTimeoutCommitsNothing() {
	s.stub.infoDelay = 2 * time.Second
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{CycleTimeout: 50 * time.Millisecond})

	snap, err := c.Refresh(context.Background())
	s.Nil(snap)
	var cycleErr *CycleError
	s.Require().True(errors.As(err, &cycleErr))
	s.ErrorIs(err, context.DeadlineExceeded)

	s.Equal(models.InitialStatus, c.PreviousStatus())
	s.Zero(s.stub.count("jobs"))
	s.Zero(s.ledger.Totals(context.Background()).TrackedJobs)
}

func (s *CoordinatorTestSuite) TestQueuePositionIsDecoded() {
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{QueueEnabled: true})
	snap, err := c.Refresh(context.Background())
	s.Require().NoError(err)

	s.True(snap.Sources.Account.OK)
	s.Require().NotNil(snap.Queue.Position)
	s.Equal(2, *snap.Queue.Position)
	s.Equal(2, *snap.Queue.Length)
}

func (s *CoordinatorTestSuite) TestConcurrentRefreshesShareACycle() {
	s.stub.infoDelay = 100 * time.Millisecond
	c := s.newCoordinator(s.endpoints(s.server.URL), Settings{})

	var wg sync.WaitGroup
	snaps := make([]*models.Snapshot, 4)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := c.Refresh(context.Background())
			s.NoError(err)
			snaps[i] = snap
		}(i)
		// let the first caller start the cycle
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	s.Equal(1, s.stub.count("info"))
	for _, snap := range snaps[1:] {
		s.Equal(snaps[0].CycleID, snap.CycleID)
	}
}

package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
)

type ClientTestSuite struct {
	suite.Suite
	server *httptest.Server
	client *Client
	body   map[string]string
	status map[string]int
	seen   map[string]*http.Request
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.body = map[string]string{}
	s.status = map[string]int{}
	s.seen = map[string]*http.Request{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen[r.URL.Path] = r
		if code, ok := s.status[r.URL.Path]; ok {
			w.WriteHeader(code)
		}
		_, _ = io.WriteString(w, s.body[r.URL.Path])
	}))
	s.client = NewClient(config.Endpoints{
		Info:    s.server.URL + "/node/{address}/info",
		Specs:   s.server.URL + "/nodes/{address}/specs",
		Markets: s.server.URL + "/markets",
		Jobs:    s.server.URL + "/jobs",
	}, time.Second, WithRPCURL(s.server.URL+"/rpc"))
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) TestFetchInfoExpandsAddress() {
	s.body["/node/abc/info"] = `{"state":"RUNNING"}`
	r := s.client.FetchInfo(context.Background(), "abc")
	s.Require().True(r.OK(), "%v", r.Err)
	s.JSONEq(`{"state":"RUNNING"}`, string(r.Value))
	s.Equal(userAgent, s.seen["/node/abc/info"].Header.Get("User-Agent"))
}

func (s *ClientTestSuite) TestNon2xxIsFetchError() {
	s.status["/nodes/abc/specs"] = http.StatusBadGateway
	s.body["/nodes/abc/specs"] = `{"error":"upstream"}`

	r := s.client.FetchSpecs(context.Background(), "abc")
	s.False(r.OK())
	var fe *FetchError
	s.Require().True(errors.As(r.Err, &fe))
	s.Equal(SourceSpecs, fe.Source)
	s.Equal(http.StatusBadGateway, fe.StatusCode)
	s.Nil(r.ValueOr(nil))
}

func (s *ClientTestSuite) TestMalformedBodyIsFetchError() {
	s.body["/node/abc/info"] = `{"state":`
	r := s.client.FetchInfo(context.Background(), "abc")
	var fe *FetchError
	s.Require().True(errors.As(r.Err, &fe))
	s.Equal(SourceInfo, fe.Source)
}

func (s *ClientTestSuite) TestWrongShapeIsRejected() {
	s.body["/node/abc/info"] = `[1,2,3]`
	r := s.client.FetchInfo(context.Background(), "abc")
	s.ErrorIs(r.Err, ErrUnexpectedShape)

	s.body["/markets"] = `[{"address":"m"}]`
	s.True(s.client.FetchMarkets(context.Background()).OK())
	s.body["/markets"] = `"markets"`
	s.ErrorIs(s.client.FetchMarkets(context.Background()).Err, ErrUnexpectedShape)
}

func (s *ClientTestSuite) TestFetchJobsQuery() {
	s.body["/jobs"] = `{"jobs":[]}`
	r := s.client.FetchJobs(context.Background(), "abc", 10)
	s.Require().True(r.OK())

	q := s.seen["/jobs"].URL.Query()
	s.Equal("abc", q.Get("node"))
	s.Equal("10", q.Get("limit"))
	s.Equal("0", q.Get("offset"))
}

func (s *ClientTestSuite) TestFetchAccountData() {
	s.body["/rpc"] = `{"jsonrpc":"2.0","id":1,"result":{"value":{"data":["AQID","base64"]}}}`
	r := s.client.FetchAccountData(context.Background(), "acct")
	s.Require().True(r.OK(), "%v", r.Err)
	s.JSONEq(`["AQID","base64"]`, string(r.Value))
	s.Equal(http.MethodPost, s.seen["/rpc"].Method)

	s.body["/rpc"] = `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid param"}}`
	s.ErrorContains(s.client.FetchAccountData(context.Background(), "acct").Err, "invalid param")

	s.body["/rpc"] = `{"jsonrpc":"2.0","id":1,"result":{"value":null}}`
	s.Error(s.client.FetchAccountData(context.Background(), "acct").Err)
}

func (s *ClientTestSuite) TestRequestTimeout() {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	c := NewClient(config.Endpoints{Info: slow.URL + "/{address}"}, 50*time.Millisecond)
	r := c.FetchInfo(context.Background(), "abc")
	s.ErrorIs(r.Err, context.DeadlineExceeded)
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{Source: SourceJobs, URL: "http://x", StatusCode: 500, Err: errors.New("boom")}
	assert.Equal(t, "jobs fetch from http://x: status 500: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

func TestJobsURLKeepsExplicitNode(t *testing.T) {
	u, err := jobsURL("https://api/jobs?node={address}&state=DONE", "abc", 5)
	require.NoError(t, err)
	assert.Equal(t, "https://api/jobs?limit=5&node=abc&offset=0&state=DONE", u)
}

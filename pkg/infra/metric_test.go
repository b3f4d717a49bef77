package infra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricCounters(t *testing.T) {
	setConfig(t, nil)

	m := NewMetricInstance()
	before := m.LastProgress()
	time.Sleep(time.Millisecond)

	m.AddValid()
	m.AddAbort(peer.TxValidationCode_MVCC_READ_CONFLICT)
	m.AddAbort(peer.TxValidationCode_PHANTOM_READ_CONFLICT)
	m.AddFailure("submit")
	m.AddStage("endorse")

	assert.EqualValues(t, 1, m.Valid.Load())
	assert.EqualValues(t, 2, m.Abort.Load())
	assert.EqualValues(t, 1, m.Failed.Load())
	assert.EqualValues(t, 4, m.Finished())
	assert.True(t, m.LastProgress().After(before))
}

func TestCheckObserverEndClosesOnce(t *testing.T) {
	setConfig(t, &Config{TxNum: 2})
	savedMetric, savedCh := Metric, observerEndCh
	t.Cleanup(func() { Metric, observerEndCh = savedMetric, savedCh })

	Metric = NewMetricInstance()
	observerEndCh = NewObserverEndChannel()
	observerEndOnce = sync.Once{}

	Metric.AddValid()
	select {
	case <-observerEndCh:
		t.Fatal("closed before every transaction finished")
	default:
	}

	Metric.AddFailure("endorse")
	Metric.AddValid()
	_, open := <-observerEndCh
	assert.False(t, open)
}

func TestMetricsRouter(t *testing.T) {
	setConfig(t, nil)

	m := NewMetricInstance()
	m.AddValid()
	m.AddAbort(peer.TxValidationCode_MVCC_READ_CONFLICT)
	m.AddFailure("commit_status")
	m.ObserveCommitLatency(200 * time.Millisecond)

	server := httptest.NewServer(NewMetricsRouter(m))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fabgw_commits_total{code="VALID"} 1`)
	assert.Contains(t, string(body), `fabgw_commits_total{code="MVCC_READ_CONFLICT"} 1`)
	assert.Contains(t, string(body), `fabgw_stage_total{stage="commit_status",status="failed"} 1`)
	assert.Contains(t, string(body), `fabgw_commit_latency_seconds_count 1`)

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	post, err := http.Post(server.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	defer post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

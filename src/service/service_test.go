package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/client"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/node"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats client.Stats

func (f fixedStats) GetStats() client.Stats {
	return client.Stats(f)
}

func newTestService(t *testing.T) *Service {
	stats := fixedStats{
		Nodes: []node.Stats{
			{AccountID: "0.0.3", Address: "node0:50211", Healthy: true, UsedCount: 4},
			{AccountID: "0.0.4", Address: "node1:50211", Healthy: false, CurrentBackoff: 2 * time.Second, FailureCount: 1},
		},
		Requests: executable.MetricsSnapshot{Executions: 4, Attempts: 5, Failovers: 1},
	}

	return NewService("127.0.0.1:0", stats, common.NewTestEntry(t, logrus.DebugLevel))
}

func TestGetNodes(t *testing.T) {
	s := newTestService(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var nodes []node.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "node0:50211", nodes[0].Address)
	assert.False(t, nodes[1].Healthy)
	assert.Equal(t, 2*time.Second, nodes[1].CurrentBackoff)
}

func TestGetStats(t *testing.T) {
	s := newTestService(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats executable.MetricsSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(4), stats.Executions)
	assert.Equal(t, int64(1), stats.Failovers)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestService(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

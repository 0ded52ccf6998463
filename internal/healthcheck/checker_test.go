package healthcheck

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMarksUnhealthyAfterMaxFailures(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()

	checker := NewChecker(Config{
		Targets: map[string]string{
			"up":   up.URL,
			"down": "http://127.0.0.1:1",
		},
		Timeout:     200 * time.Millisecond,
		MaxFailures: 2,
	})

	checker.checkAll()
	snapshot := checker.Snapshot()
	assert.True(t, snapshot["up"].Healthy)
	assert.True(t, snapshot["down"].Healthy, "one failure is below the threshold")

	checker.checkAll()
	snapshot = checker.Snapshot()
	assert.True(t, snapshot["up"].Healthy)
	assert.False(t, snapshot["down"].Healthy)
	assert.NotEmpty(t, snapshot["down"].LastError)
}

func TestProbeRecovers(t *testing.T) {
	healthy := false
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			// Close the connection mid-request to simulate an outage.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer flaky.Close()

	checker := NewChecker(Config{
		Targets:     map[string]string{"flaky": flaky.URL},
		Timeout:     200 * time.Millisecond,
		MaxFailures: 1,
	})

	checker.checkAll()
	assert.False(t, checker.Snapshot()["flaky"].Healthy)

	healthy = true
	checker.checkAll()

	status := checker.Snapshot()["flaky"]
	assert.True(t, status.Healthy)
	assert.Zero(t, status.ConsecutiveFails)
	assert.Empty(t, status.LastError)
}

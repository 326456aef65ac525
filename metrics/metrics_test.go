package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.RoundPaired(false)
	r.RoundPaired(false)
	r.RoundClosed(true)
	r.ResultsRejected("rank_set")
	r.KnockoutRoundCreated("Final")
	r.ChampionDecided()
	r.PublishFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.roundsPaired.WithLabelValues("prelim")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.roundsPaired.WithLabelValues("knockout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.roundsClosed.WithLabelValues("knockout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.resultsRejected.WithLabelValues("rank_set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.knockoutRounds.WithLabelValues("Final")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.championsDecided))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishFailures))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RoundPaired(true)
		r.RoundClosed(false)
		r.ResultsRejected("x")
		r.KnockoutRoundCreated("Final")
		r.ChampionDecided()
		r.PublishFailed()
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(nil)
	r.ChampionDecided()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "debate_tab_champions_decided_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/model"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(model.LoggingConfig{Level: "debug", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := NewLogger(model.LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector("clausewise")

	c.RecordProviderCall("rules", "simplify", "ok", 10*time.Millisecond)
	c.RecordProviderCall("rules", "simplify", "ok", 10*time.Millisecond)
	c.RecordProviderCall("openai", "classify", "timeout", time.Second)
	c.RecordDocument("complete", 3)
	c.RecordCache(true)
	c.RecordCache(false)
	c.RecordCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ProviderCalls.WithLabelValues("rules", "simplify", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProviderCalls.WithLabelValues("openai", "classify", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DocumentsAnalyzed.WithLabelValues("complete")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ClausesSegmented))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheMisses))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not panic on duplicate registration
	a := NewCollector("clausewise")
	b := NewCollector("clausewise")
	a.RecordDocument("failed", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocumentsAnalyzed.WithLabelValues("failed")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordProviderCall("rules", "classify", "ok", time.Millisecond)
		c.RecordDocument("complete", 1)
		c.RecordCache(true)
		c.RecordHTTP("GET", "/healthz", "200", time.Millisecond)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("clausewise")
	c.RecordDocument("partial", 2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clausewise_documents_analyzed_total{status="partial"} 1`)
	assert.Contains(t, string(body), "clausewise_clauses_segmented_total 2")
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAPICall(t *testing.T) {
	m := NewExportMetrics("test-api")
	before := testutil.ToFloat64(APICallsTotal.WithLabelValues("test-api", "products", "200"))

	m.RecordAPICall("products", "200", 15*time.Millisecond)
	m.RecordAPICall("products", "200", 20*time.Millisecond)

	after := testutil.ToFloat64(APICallsTotal.WithLabelValues("test-api", "products", "200"))
	assert.Equal(t, before+2, after)
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewExportMetrics("test-cache")

	m.RecordCacheLookup("categories", true)
	m.RecordCacheLookup("categories", false)
	m.RecordCacheLookup("categories", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(CacheLookups.WithLabelValues("test-cache", "categories", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(CacheLookups.WithLabelValues("test-cache", "categories", "miss")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var m *ExportMetrics
	assert.NotPanics(t, func() {
		m.RecordRetry("categories")
		m.RecordStorageWrite("s3", false)
		m.RecordDegraded("inventory", 3)
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 2*time.Millisecond)
}

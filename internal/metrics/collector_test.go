package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.negotiationsTotal)
	assert.NotNil(t, collector.remoteCallsTotal)
	assert.NotNil(t, collector.rowsDispatched)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_NilReceiverIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0, 0)
		c.RecordNegotiation("success", time.Second)
		c.RecordNegotiationTransition("INACTIVE", "ACTIVATING")
		c.SetActiveAssets(3)
		c.RecordRemoteCall("https", "success", time.Second)
		c.RecordDedup("https", 10, 2)
		c.RecordDropped("batch_limit", 1)
		c.RecordCacheHit("endpoint")
		c.RecordCacheMiss("endpoint")
		c.RecordDBConnections("ledger", 1, 1)
		c.RecordDBQuery("ledger", "insert", time.Millisecond)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/test", 503, 50*time.Millisecond, 512, 1024)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "5xx")))
}

func TestCollector_RecordNegotiation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordNegotiation("success", 2*time.Second)
	collector.RecordNegotiation("conflict", 0)
	collector.RecordNegotiationTransition("AGREED", "PROVISIONING")
	collector.SetActiveAssets(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.negotiationsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.negotiationsTotal.WithLabelValues("conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.negotiationTransition.WithLabelValues("AGREED", "PROVISIONING")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.activeAssets))
}

func TestCollector_RecordFederation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRemoteCall("edc", "success", 300*time.Millisecond)
	collector.RecordDedup("edc", 10, 3)
	collector.RecordDropped("batch_limit", 4)
	collector.RecordDropped("batch_limit", 0)

	assert.Greater(t, testutil.CollectAndCount(collector.remoteCallDuration), 0)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.bindingsReceived.WithLabelValues("edc")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.rowsDispatched.WithLabelValues("edc")))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.bindingsDropped.WithLabelValues("batch_limit")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("endpoint")
	collector.RecordCacheMiss("endpoint")

	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheMisses), 0)
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("ledger", "insert", 20*time.Millisecond)
	collector.RecordDBConnections("ledger", 10, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("ledger")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("ledger")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordRemoteCall("https", "success", 10*time.Millisecond)
			collector.RecordCacheHit("skill")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.remoteCallsTotal.WithLabelValues("https", "success")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.cacheHits.WithLabelValues("skill")))
}

package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordOperation(t *testing.T) {
	c := NewCollector("memorybank")

	c.RecordOperation("buffer", "add", 10*time.Millisecond, nil)
	c.RecordOperation("buffer", "add", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Operations.WithLabelValues("buffer", "add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Operations.WithLabelValues("buffer", "add", "error")))
}

func TestCollector_RecordLookup(t *testing.T) {
	c := NewCollector("memorybank")

	c.RecordLookup("graph", true)
	c.RecordLookup("graph", true)
	c.RecordLookup("graph", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheHits.WithLabelValues("graph")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheMisses.WithLabelValues("graph")))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not fight over metric registration.
	a := NewCollector("memorybank")
	b := NewCollector("memorybank")
	require.NotSame(t, a.Registry(), b.Registry())

	a.EntriesAdded.WithLabelValues("buffer").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EntriesAdded.WithLabelValues("buffer")))
}

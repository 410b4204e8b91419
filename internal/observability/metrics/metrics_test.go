package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobfeed/internal/observability/statsd"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

var _ statsd.Sink = (*recordingSink)(nil)

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.add(recordedMetric{kind: "count", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.add(recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(recordedMetric{kind: "timing", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) add(m recordedMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

type decodeError struct{}

func (decodeError) Error() string { return "decode" }

func TestEmitIngest(t *testing.T) {
	sink := &recordingSink{}
	EmitIngest(sink, IngestMetric{
		Kind:     "results",
		Result:   ResultError,
		Duration: time.Millisecond,
		Err:      fmt.Errorf("handle results: %w", decodeError{}),
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "ingest.message", sink.metrics[0].name)
	assert.Equal(t, "results", sink.metrics[0].tags["kind"])
	assert.Equal(t, "metrics_decodeerror", sink.metrics[0].tags["error_class"])
	assert.Equal(t, "timing", sink.metrics[1].kind)
}

func TestEmitIngest_NoErrorClassOnSuccess(t *testing.T) {
	sink := &recordingSink{}
	EmitIngest(sink, IngestMetric{Kind: "job_sizes", Result: ResultSuccess, Err: errors.New("ignored")})
	require.Len(t, sink.metrics, 1)
	_, ok := sink.metrics[0].tags["error_class"]
	assert.False(t, ok)
}

func TestEmitJanitor(t *testing.T) {
	sink := &recordingSink{}
	EmitJanitor(sink, 0, time.Second, nil)
	assert.Equal(t, ResultNoop, sink.metrics[0].tags["result"])

	sink = &recordingSink{}
	EmitJanitor(sink, 12, time.Second, nil)
	require.Len(t, sink.metrics, 3)
	assert.Equal(t, "janitor.pruned", sink.metrics[1].name)
	assert.InDelta(t, 12, sink.metrics[1].value, 0)
}

func TestEmitStreamClosed(t *testing.T) {
	sink := &recordingSink{}
	EmitStreamClosed(sink, StreamMetric{Feed: FeedResults, Outcome: "rejected"})
	require.Len(t, sink.metrics, 1, "zero duration emits no timing")
	assert.Equal(t, map[string]string{"feed": "results", "outcome": "rejected"}, sink.metrics[0].tags)
}

func TestNilSinkIsSafe(t *testing.T) {
	EmitIngest(nil, IngestMetric{})
	EmitCompletion(nil, "checkpoint")
	EmitJobCompleted(nil, ResultSuccess)
	EmitStreamOpened(nil, FeedJob)
	EmitStreamClosed(nil, StreamMetric{})
	EmitStreamMessages(nil, FeedJob, 3)
	EmitJanitor(nil, 1, time.Second, nil)
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1", "": "x"}
	out := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, out)
	out["a"] = "2"
	assert.Equal(t, "1", src["a"])
}

package metrics

import (
	"time"

	obserrors "github.com/target/jobfeed/internal/observability/errors"
	"github.com/target/jobfeed/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	// ResultSkipped marks a message for a job that no longer exists.
	ResultSkipped = "skipped"
)

// IngestMetric captures the outcome of one inbound message.
type IngestMetric struct {
	// Kind is the message type: result_checkpoints, results, job_sizes or output_files.
	Kind     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitIngest emits standardised ingest metrics.
func EmitIngest(sink statsd.Sink, in IngestMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":   in.Kind,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("ingest.message", 1, tags)
	if in.Duration > 0 {
		sink.Timing("ingest.duration", in.Duration, CloneTags(tags))
	}
}

// EmitCompletion counts "all checkpoints processed" notifications. source is either
// "checkpoint" or "job_size", the message that observed the count reaching the total.
func EmitCompletion(sink statsd.Sink, source string) {
	if sink == nil {
		return
	}
	sink.Count("job.completion_emitted", 1, map[string]string{"source": source})
}

// EmitJobCompleted counts completion events consumed from the event stream.
func EmitJobCompleted(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count("job.completed", 1, map[string]string{"result": result})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

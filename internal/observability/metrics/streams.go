package metrics

import (
	"time"

	"github.com/target/jobfeed/internal/observability/statsd"
)

// Feed names for stream metrics.
const (
	FeedResults = "results"
	FeedJob     = "job"
)

// StreamMetric describes one finished live connection.
type StreamMetric struct {
	Feed string
	// Outcome is the lifecycle outcome: completed, rejected, gone or failed.
	Outcome  string
	Duration time.Duration
}

// EmitStreamOpened counts an accepted live connection.
func EmitStreamOpened(sink statsd.Sink, feed string) {
	if sink == nil {
		return
	}
	sink.Count("stream.opened", 1, map[string]string{"feed": feed})
}

// EmitStreamClosed emits the outcome and lifetime of a live connection.
func EmitStreamClosed(sink statsd.Sink, in StreamMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"feed": in.Feed, "outcome": in.Outcome}
	sink.Count("stream.closed", 1, tags)
	if in.Duration > 0 {
		sink.Timing("stream.duration", in.Duration, CloneTags(tags))
	}
}

// EmitStreamMessages counts frames pushed to one connection.
func EmitStreamMessages(sink statsd.Sink, feed string, n int64) {
	if sink == nil || n == 0 {
		return
	}
	sink.Count("stream.messages", n, map[string]string{"feed": feed})
}

// EmitJanitor emits the result of one change log prune pass.
func EmitJanitor(sink statsd.Sink, pruned int64, elapsed time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case err != nil:
		result = ResultError
	case pruned == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	sink.Count("janitor.run", 1, tags)
	if pruned > 0 {
		sink.Count("janitor.pruned", pruned, nil)
	}
	sink.Timing("janitor.duration", elapsed, CloneTags(tags))
}

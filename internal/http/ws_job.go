package httpx

import (
	"context"
	"net/http"

	"github.com/target/jobfeed/internal/domain/model"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/service"
)

// JobStreamer pushes the full view of a job on connect and after every change to the job or
// its results.
type JobStreamer struct {
	Reader    *service.JobReader
	Watcher   *service.JobWatcher
	Lifecycle *Lifecycle
	Module    string
}

func (h *JobStreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	h.Lifecycle.Serve(w, r, metrics.FeedJob, func(ctx context.Context, conn *Conn) Outcome {
		if _, err := h.Reader.Job(ctx, h.Module, jobID); err != nil {
			return OutcomeOf(err)
		}
		err := h.Watcher.Watch(ctx, jobID, func(ctx context.Context, v model.JobView) error {
			return conn.Send(ctx, v)
		})
		return OutcomeOf(err)
	})
}

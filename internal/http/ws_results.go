package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/service"
)

// ResultStreamer pushes the live results of one page of a job. Every result written to the
// page window after the connection opened is sent as one frame, unchanged and in commit
// order.
type ResultStreamer struct {
	Reader    *service.JobReader
	Feed      core.ChangeFeed
	Lifecycle *Lifecycle
	// Module restricts the stream to jobs of one module; empty serves every job.
	Module string
}

func (h *ResultStreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	rawPage, hasPage := r.URL.Query()["page"]
	h.Lifecycle.Serve(w, r, metrics.FeedResults, func(ctx context.Context, conn *Conn) Outcome {
		job, err := h.Reader.Job(ctx, h.Module, jobID)
		if err != nil {
			return OutcomeOf(err)
		}
		if !hasPage || len(rawPage) != 1 {
			return Policy(ReasonInvalidPage)
		}
		page, err := strconv.Atoi(rawPage[0])
		if err != nil {
			return Policy(ReasonInvalidPage)
		}
		window, err := service.PageWindow(job, page)
		if err != nil {
			return OutcomeOf(err)
		}
		return h.stream(ctx, conn, model.ResultsScope(jobID, &window))
	})
}

func (h *ResultStreamer) stream(ctx context.Context, conn *Conn, scope model.Scope) Outcome {
	sub, err := h.Feed.Subscribe(ctx, scope, false)
	if err != nil {
		return OutcomeOf(err)
	}
	defer sub.Close()

	for c := range sub.Changes() {
		if c.New == nil {
			continue
		}
		if err := conn.SendRaw(ctx, c.New); err != nil {
			return OutcomeOf(err)
		}
	}
	if err := sub.Err(); err != nil {
		return Failed{Err: err}
	}
	return OutcomeOf(ctx.Err())
}

package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// OutputFile links one finished output format of a job. The file itself is written and
// served by the file service behind the application base URL, not by this service.
type OutputFile struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

// JobView is the client-facing projection of a job pushed by the job status feed.
type JobView struct {
	ID                  string          `json:"id"`
	JobType             string          `json:"job_type"`
	SourceID            string          `json:"source_id"`
	Params              json.RawMessage `json:"params"`
	Status              JobStatus       `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	PageSize            int             `json:"page_size"`
	EntriesProcessed    IntervalSet     `json:"entries_processed"`
	NumEntriesTotal     *int64          `json:"num_entries_total,omitempty"`
	NumEntriesProcessed int64           `json:"num_entries_processed"`
	NumPagesTotal       *int64          `json:"num_pages_total,omitempty"`
	NumPagesProcessed   int64           `json:"num_pages_processed"`
	OutputFiles         []OutputFile    `json:"output_files"`
	JobURL              string          `json:"job_url"`
	ResultsURL          string          `json:"results_url"`
}

// NewJobView derives the view of job. Links are rooted at baseURL, the public address that
// fronts both this service's job routes and the output file service.
func NewJobView(job *Job, baseURL string) JobView {
	jobURL := strings.TrimRight(baseURL, "/") + "/jobs/" + url.PathEscape(job.ID)

	v := JobView{
		ID:                  job.ID,
		JobType:             job.JobType,
		SourceID:            job.SourceID,
		Params:              job.Params,
		Status:              job.Status,
		CreatedAt:           job.CreatedAt,
		PageSize:            job.PageSize,
		EntriesProcessed:    job.EntriesProcessed,
		NumEntriesTotal:     job.NumEntriesTotal,
		NumEntriesProcessed: job.EntriesProcessed.Count(),
		NumPagesProcessed:   job.EntriesProcessed.CoveredPages(job.PageSize, job.NumEntriesTotal),
		OutputFiles:         make([]OutputFile, 0, len(job.OutputFormats)),
		JobURL:              jobURL,
		ResultsURL:          jobURL + "/results",
	}
	if len(v.Params) == 0 {
		v.Params = json.RawMessage(`{}`)
	}
	if job.NumEntriesTotal != nil && job.PageSize > 0 {
		pages := NumPages(*job.NumEntriesTotal, job.PageSize)
		v.NumPagesTotal = &pages
	}
	for _, f := range job.OutputFormats {
		v.OutputFiles = append(v.OutputFiles, OutputFile{
			Format: f,
			URL:    jobURL + "/output." + url.PathEscape(f),
		})
	}
	return v
}

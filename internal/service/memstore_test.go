package service

import (
	"context"
	"slices"
	"sync"

	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

// memStore is an in-memory JobRepository and CheckpointRepository.
type memStore struct {
	mu          sync.Mutex
	jobs        map[string]*model.Job
	checkpoints map[string]map[string]model.ResultCheckpoint
}

func newMemStore(jobs ...*model.Job) *memStore {
	s := &memStore{
		jobs:        map[string]*model.Job{},
		checkpoints: map[string]map[string]model.ResultCheckpoint{},
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &model.Job{ID: req.ID, JobType: req.JobType, Status: model.JobStatusSubmitted, PageSize: req.PageSize}
	s.jobs[j.ID] = j
	return s.copyJob(j), nil
}

func (s *memStore) copyJob(j *model.Job) *model.Job {
	c := *j
	c.OutputFormats = slices.Clone(j.OutputFormats)
	for id := range s.checkpoints[j.ID] {
		c.CheckpointsProcessed = append(c.CheckpointsProcessed, id)
	}
	return &c
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return s.copyJob(j), nil
}

func (s *memStore) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok && j.Status == model.JobStatusSubmitted {
		j.Status = model.JobStatusProcessing
	}
	s.mu.Unlock()
	return s.GetByID(ctx, id)
}

func (s *memStore) MarkCompleted(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, apperrors.NotFoundf("job %s not found", id)
	}
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobStatusCompleted
	return true, nil
}

func (s *memStore) AddProcessedEntry(_ context.Context, id string, molID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, apperrors.NotFoundf("job %s not found", id)
	}
	return j.EntriesProcessed.Add(molID), nil
}

func (s *memStore) SetSize(ctx context.Context, msg model.JobSizeMessage) (*model.Job, error) {
	s.mu.Lock()
	if j, ok := s.jobs[msg.JobID]; ok {
		if msg.NumEntriesTotal != nil {
			j.NumEntriesTotal = msg.NumEntriesTotal
		}
		if msg.NumCheckpointsTotal != nil {
			j.NumCheckpointsTotal = msg.NumCheckpointsTotal
		}
	}
	s.mu.Unlock()
	return s.GetByID(ctx, msg.JobID)
}

func (s *memStore) AddOutputFormat(_ context.Context, id, format string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, apperrors.NotFoundf("job %s not found", id)
	}
	if slices.Contains(j.OutputFormats, format) {
		return false, nil
	}
	j.OutputFormats = append(j.OutputFormats, format)
	return true, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	delete(s.jobs, id)
	delete(s.checkpoints, id)
	return nil
}

func (s *memStore) Upsert(_ context.Context, cp model.ResultCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[cp.JobID]; !ok {
		return &apperrors.AppError{Code: apperrors.ErrCodeForeignKey, Message: "job does not exist"}
	}
	if s.checkpoints[cp.JobID] == nil {
		s.checkpoints[cp.JobID] = map[string]model.ResultCheckpoint{}
	}
	s.checkpoints[cp.JobID][cp.ID] = cp
	return nil
}

func (s *memStore) ListByJobID(_ context.Context, jobID string) ([]model.ResultCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ResultCheckpoint
	for _, cp := range s.checkpoints[jobID] {
		out = append(out, cp)
	}
	return out, nil
}

func (s *memStore) CountByJobID(_ context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checkpoints[jobID]), nil
}

// eventLog records published events.
type eventLog struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (l *eventLog) Publish(_ context.Context, evt model.JobEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Package mocks provides mock implementations of the jobfeed ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. The mocks are generated using go:generate directives and provide a fluent API
// for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
package mocks

// JobRepository: Create, GetByID, MarkProcessing, MarkCompleted, AddProcessedEntry, SetSize, AddOutputFormat, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/jobfeed/internal/core JobRepository

// CheckpointRepository: Upsert, ListByJobID, CountByJobID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=checkpoint_repository_mock.go github.com/target/jobfeed/internal/core CheckpointRepository

// ResultRepository: Upsert, ListWindow
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=result_repository_mock.go github.com/target/jobfeed/internal/core ResultRepository

// ChangelogRepository: Prune
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=changelog_repository_mock.go github.com/target/jobfeed/internal/core ChangelogRepository

// EventPublisher: Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_publisher_mock.go github.com/target/jobfeed/internal/core EventPublisher

// ErrorReporter: Report
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=error_reporter_mock.go github.com/target/jobfeed/internal/core ErrorReporter

// ChangeFeed and Subscription: Subscribe; Changes, Err, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=changefeed_mock.go github.com/target/jobfeed/internal/core ChangeFeed,Subscription

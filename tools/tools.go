//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - Generates the gomock doubles in internal/mocks
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Version: v0.6.0 (matches go.uber.org/mock in go.mod)
//   Usage: go generate ./internal/mocks/...
//
// asynq CLI - Inspects the ingest queues (pending, retry and archived tasks)
//   Install: go install github.com/hibiken/asynq/tools/asynq@v0.25.1
//   Version: v0.25.1 (matches github.com/hibiken/asynq in go.mod)
//   Usage: asynq queue inspect jobfeed

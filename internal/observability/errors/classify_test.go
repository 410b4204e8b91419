package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/jobfeed/internal/errors"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error code", err: fmt.Errorf("load: %w", apperrors.NotFound("job not found")), want: "not_found"},
		{name: "transport gone", err: apperrors.TransportGone(goerrors.New("broken pipe")), want: "transport_gone"},
		{name: "canceled", err: fmt.Errorf("wait: %w", context.Canceled), want: "canceled"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "redis nil", err: fmt.Errorf("get: %w", redis.Nil), want: "redis_nil"},
		{name: "skip retry", err: fmt.Errorf("decode: %w", asynq.SkipRetry), want: "skip_retry"},
		{name: "pg connection", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, want: "pg_connection"},
		{name: "pg integrity", err: fmt.Errorf("upsert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation}), want: "pg_integrity"},
		{name: "pg rollback", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: "pg_rollback"},
		{name: "pg other", err: &pgconn.PgError{Code: pgerrcode.UndefinedTable}, want: "pg_42p01"},
		{name: "ws going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, want: "ws_closed"},
		{name: "ws abnormal", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, want: "ws_abnormal_close"},
		{name: "net timeout", err: fmt.Errorf("read: %w", timeoutErr{}), want: "net_timeout"},
		{name: "innermost type", err: fmt.Errorf("a: %w", fmt.Errorf("b: %w", &customErr{})), want: "errors_customerr"},
		{name: "plain", err: goerrors.New("x"), want: "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

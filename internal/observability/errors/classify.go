// Package errors classifies errors into short, low-cardinality names for metric tags and log fields.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/target/jobfeed/internal/errors"
)

// Classify returns a normalized error class for tagging metrics and logs.
//
// Order of precedence: application error codes, context errors, infrastructure errors
// (postgres, redis, websocket close, network timeouts, asynq skip-retry), and finally the
// innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return string(appErr.Code)
	}
	switch {
	case goerrors.Is(err, context.Canceled):
		return string(apperrors.ErrCodeCanceled)
	case goerrors.Is(err, context.DeadlineExceeded):
		return string(apperrors.ErrCodeTimeout)
	case goerrors.Is(err, redis.Nil):
		return "redis_nil"
	case goerrors.Is(err, asynq.SkipRetry):
		return "skip_retry"
	}
	if class := infraClass(err); class != "" {
		return class
	}
	return typeName(err)
}

func infraClass(err error) string {
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return "pg_connection"
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
			return "pg_integrity"
		case pgerrcode.IsTransactionRollback(pgErr.Code):
			return "pg_rollback"
		}
		return "pg_" + strings.ToLower(pgErr.Code)
	}

	var closeErr *websocket.CloseError
	if goerrors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return "ws_closed"
		}
		return "ws_abnormal_close"
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "net_timeout"
	}
	return ""
}

// typeName names err after its innermost concrete type, e.g. "errors_errorstring".
func typeName(err error) string {
	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}

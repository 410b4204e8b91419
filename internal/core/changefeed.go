package core

import (
	"context"

	"github.com/target/jobfeed/internal/domain/model"
)

// ChangeFeed opens subscriptions to record changes of one scope. Implementations deliver the
// changes of a subscription in commit order and never buffer without bound.
type ChangeFeed interface {
	// Subscribe starts observing scope. With includeInitial every record currently in scope is
	// delivered first as a change with a nil Old, and no change already reflected in that
	// initial set is delivered again. Subscribe blocks while the subscription limit is reached.
	Subscribe(ctx context.Context, scope model.Scope, includeInitial bool) (Subscription, error)
}

// Subscription is a live stream of changes. The Changes channel closes when the subscription
// ends; Err then reports why (nil after Close or context cancellation).
type Subscription interface {
	Changes() <-chan model.Change
	Err() error
	// Close ends the subscription and releases its connection. It is safe to call more than once.
	Close()
}

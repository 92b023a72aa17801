package notify

import (
	"context"
	"errors"

	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// Dispatcher delivers one event to a user and returns how many devices or
// channels received it. Zero deliveries is not an error.
type Dispatcher interface {
	Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error)
}

// BatchDispatcher can deliver several events for one user as a single push
type BatchDispatcher interface {
	Dispatcher
	SendBatch(ctx context.Context, userID string, events []types.NotificationEvent) (int, error)
}

// Notifier hands detected events to a Dispatcher. Delivery failures are
// logged and counted but never returned to the caller.
type Notifier struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewNotifier creates a notifier. A nil dispatcher logs events instead.
func NewNotifier(d Dispatcher) *Notifier {
	if d == nil {
		d = NewLogDispatcher()
	}
	return &Notifier{
		dispatcher: d,
		logger:     log.WithComponent("notifier"),
	}
}

// Dispatch delivers all of owner's events from one batch. Batch capable
// dispatchers receive them in one call; others get one call per event.
// It returns the number of deliveries.
func (n *Notifier) Dispatch(ctx context.Context, owner string, events []types.NotificationEvent) int {
	if len(events) == 0 {
		return 0
	}

	delivered, err := deliver(ctx, n.dispatcher, owner, events)
	outcome := "delivered"
	switch {
	case err != nil:
		outcome = "failed"
		n.logger.Warn().
			Err(err).
			Str("owner", owner).
			Int("events", len(events)).
			Msg("Notification delivery failed")
	case delivered == 0:
		outcome = "undelivered"
	}
	for _, e := range events {
		metrics.NotificationsTotal.WithLabelValues(string(e.Type), outcome).Inc()
	}

	n.logger.Debug().
		Str("owner", owner).
		Int("events", len(events)).
		Int("delivered", delivered).
		Msg("Notifications dispatched")
	return delivered
}

func deliver(ctx context.Context, d Dispatcher, userID string, events []types.NotificationEvent) (int, error) {
	if bd, ok := d.(BatchDispatcher); ok {
		return bd.SendBatch(ctx, userID, events)
	}

	var (
		total int
		errs  []error
	)
	for _, e := range events {
		n, err := d.Send(ctx, userID, e)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

package notify

import (
	"context"
	"errors"

	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// LogDispatcher writes events to the log. Useful when no push channel is
// configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a log-only dispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{logger: log.WithComponent("notify")}
}

func (d *LogDispatcher) Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error) {
	d.logger.Info().
		Str("owner", userID).
		Str("event", string(event.Type)).
		Str("node_id", event.NodeID).
		Str("address", event.Address).
		Msg(event.Message)
	return 1, nil
}

// MultiDispatcher fans events out to several dispatchers
type MultiDispatcher struct {
	dispatchers []Dispatcher
}

// NewMultiDispatcher combines dispatchers, skipping nil ones
func NewMultiDispatcher(dispatchers ...Dispatcher) *MultiDispatcher {
	m := &MultiDispatcher{}
	for _, d := range dispatchers {
		if d != nil {
			m.dispatchers = append(m.dispatchers, d)
		}
	}
	return m
}

func (m *MultiDispatcher) Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error) {
	return m.SendBatch(ctx, userID, []types.NotificationEvent{event})
}

// SendBatch delivers to every dispatcher; one failing does not stop the rest
func (m *MultiDispatcher) SendBatch(ctx context.Context, userID string, events []types.NotificationEvent) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, d := range m.dispatchers {
		n, err := deliver(ctx, d, userID, events)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

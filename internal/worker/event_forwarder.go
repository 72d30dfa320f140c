package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/events"
)

const forwardTimeout = 5 * time.Second

// Forwarder ships events to an external broker.
type Forwarder interface {
	Forward(ctx context.Context, event events.Event) error
}

// StartEventForwarder relays every dispatched event to forwarder. Broker failures are logged
// and never reach the workflow that published the event.
func StartEventForwarder(dispatcher events.Dispatcher, forwarder Forwarder, logger *zap.Logger) {
	if dispatcher == nil || forwarder == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	events.SubscribeAll(dispatcher, func(ctx context.Context, event events.Event) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
		defer cancel()
		if err := forwarder.Forward(ctx, event); err != nil {
			logger.Warn("event forward failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		return nil
	})
}

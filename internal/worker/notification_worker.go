package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/service"
)

// StartNotificationWorker wires owner notifications onto the event dispatcher.
func StartNotificationWorker(notifications *service.NotificationService, logger *zap.Logger) {
	if notifications == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	subscribed := notifications.RegisterHandlers()
	if len(subscribed) == 0 {
		logger.Warn("owner notifications disabled")
		return
	}
	names := make([]string, 0, len(subscribed))
	for _, eventType := range subscribed {
		names = append(names, string(eventType))
	}
	logger.Info("owner notifications enabled", zap.Strings("events", names))
}

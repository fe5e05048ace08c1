package notifications

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

type notifyFunc func(title, message string, icon any) error

// DesktopSender shows notifications through the host desktop notification service.
type DesktopSender struct {
	notify notifyFunc
	logger *slog.Logger
}

func NewDesktopSender(logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.With("component", "notifications.desktop")
	}

	return &DesktopSender{
		notify: beeep.Notify,
		logger: logger,
	}
}

// Send never fails the caller; headless hosts without a notification daemon only log.
func (s *DesktopSender) Send(payload Payload) {
	if err := s.notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "title", payload.Title, "error", err)
	}
}


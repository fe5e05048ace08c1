package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/coordinator"
	"github.com/skobkin/web888mon/internal/notifications"
)

const (
	notificationTitleThermal        = "Web-888 CPU temperature high"
	notificationTitleThermalCleared = "Web-888 CPU temperature normal"
)

// NotificationService listens to bus events and emits user-facing notifications.
type NotificationService struct {
	bus           bus.MessageBus
	currentConfig func() config.AppConfig
	sender        notifications.Sender
	logger        *slog.Logger

	mu               sync.Mutex
	lastConnState    connectors.ConnectionState
	lastConnStateSet bool
	thermalActive    bool

	wg sync.WaitGroup
}

func NewNotificationService(
	messageBus bus.MessageBus,
	currentConfig func() config.AppConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	connSub := s.bus.Subscribe(connectors.TopicConnStatus)
	viewSub := s.bus.Subscribe(connectors.TopicTelemetryView)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer s.bus.Unsubscribe(connSub, connectors.TopicConnStatus)
		bus.Consume(ctx, s.logger, connSub, func(raw any) {
			if status, ok := raw.(connectors.ConnStatus); ok {
				s.handleConnectionStatus(status)
			}
		})
	}()
	go func() {
		defer s.wg.Done()
		defer s.bus.Unsubscribe(viewSub, connectors.TopicTelemetryView)
		bus.Consume(ctx, s.logger, viewSub, func(raw any) {
			if view, ok := raw.(coordinator.View); ok {
				s.handleView(view)
			}
		})
	}()
}

// Wait blocks until the consumers started by Start have unsubscribed.
func (s *NotificationService) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *NotificationService) handleConnectionStatus(status connectors.ConnStatus) {
	if status.State == "" {
		return
	}

	s.mu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.mu.Unlock()

		return
	}
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.mu.Unlock()

	if status.State != connectors.ConnectionStateReady &&
		status.State != connectors.ConnectionStateReconnecting {
		return
	}
	prefs := s.notificationPrefs()
	if !shouldNotify(prefs, prefs.ConnectionStatus) {
		return
	}

	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if errText := strings.TrimSpace(status.Err); errText != "" {
		details = fmt.Sprintf("%s (error: %s)", details, errText)
	}

	s.send(notifications.Payload{
		Title:   fmt.Sprintf("Web-888 - %s", connectionStateLabel(status.State)),
		Content: details,
	})
}

// handleView notifies once when the thermal warning turns on and once when it clears.
func (s *NotificationService) handleView(view coordinator.View) {
	if !view.HasSocket {
		return
	}

	s.mu.Lock()
	changed := view.ThermalWarning != s.thermalActive
	s.thermalActive = view.ThermalWarning
	s.mu.Unlock()
	if !changed {
		return
	}

	prefs := s.notificationPrefs()
	if !shouldNotify(prefs, prefs.Thermal) {
		return
	}

	name := strings.TrimSpace(view.Name)
	if name == "" {
		name = "receiver"
	}
	title := notificationTitleThermalCleared
	if view.ThermalWarning {
		title = notificationTitleThermal
	}
	s.send(notifications.Payload{
		Title:   title,
		Content: fmt.Sprintf("%s: %.1f °C (threshold %.0f °C)", name, view.Stats.CPUTempC, view.ThermalThresholdC),
	})
}

func shouldNotify(prefs config.NotificationConfig, kindEnabled bool) bool {
	return prefs.Enabled && kindEnabled
}

func (s *NotificationService) notificationPrefs() config.NotificationConfig {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications
}

func (s *NotificationService) send(notification notifications.Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notifications.Payload{
		Title:   title,
		Content: content,
	})
}

func connectionStateLabel(state connectors.ConnectionState) string {
	switch state {
	case connectors.ConnectionStateReady:
		return "connected"
	case connectors.ConnectionStateReconnecting:
		return "connection lost"
	default:
		return string(state)
	}
}

package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/coordinator"
	"github.com/skobkin/web888mon/internal/notifications"
	"github.com/skobkin/web888mon/internal/telemetry"
)

func enabledNotificationConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Notifications.Enabled = true

	return cfg
}

func startNotificationService(t *testing.T, cfg func() config.AppConfig) (*bus.PubSubBus, *collectingNotificationSender) {
	t.Helper()

	messageBus := newTestMessageBus(t)
	sender := newCollectingNotificationSender()
	service := NewNotificationService(messageBus, cfg, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	service.Start(ctx)

	return messageBus, sender
}

func TestNotificationServiceConnectionReady(t *testing.T) {
	messageBus, sender := startNotificationService(t, enabledNotificationConfig)

	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{
		State:  connectors.ConnectionStateReady,
		Target: "ws://sdr.local:8073",
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != "Web-888 - connected" {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
	if got[0].Content != "ws://sdr.local:8073" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}
}

func TestNotificationServiceConnectionLostIncludesError(t *testing.T) {
	messageBus, sender := startNotificationService(t, enabledNotificationConfig)

	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{
		State:  connectors.ConnectionStateReconnecting,
		Target: "ws://sdr.local:8073",
		Err:    "keepalive: no response after 10s",
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != "Web-888 - connection lost" {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
	if got[0].Content != "ws://sdr.local:8073 (error: keepalive: no response after 10s)" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}
}

func TestNotificationServiceDeduplicatesStates(t *testing.T) {
	messageBus, sender := startNotificationService(t, enabledNotificationConfig)

	for _, state := range []connectors.ConnectionState{
		connectors.ConnectionStateConnecting,
		connectors.ConnectionStateAuthenticating,
		connectors.ConnectionStateReady,
		connectors.ConnectionStateReady,
	} {
		messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{State: state})
	}

	sender.waitForCount(t, 1)
	sender.assertCount(t, 1)
}

func TestNotificationServiceRespectsPreferences(t *testing.T) {
	var cfgMu sync.Mutex
	cfg := config.Default()
	messageBus, sender := startNotificationService(t, func() config.AppConfig {
		cfgMu.Lock()
		defer cfgMu.Unlock()

		return cfg
	})

	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{State: connectors.ConnectionStateReady})
	sender.assertCount(t, 0)

	cfgMu.Lock()
	cfg.Notifications.Enabled = true
	cfg.Notifications.ConnectionStatus = false
	cfgMu.Unlock()
	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{State: connectors.ConnectionStateReconnecting})
	sender.assertCount(t, 0)

	cfgMu.Lock()
	cfg.Notifications.ConnectionStatus = true
	cfgMu.Unlock()
	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnStatus{State: connectors.ConnectionStateReady})
	got := sender.waitForCount(t, 1)
	if got[0].Title != "Web-888 - connected" {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
}

func TestNotificationServiceThermalEdges(t *testing.T) {
	messageBus, sender := startNotificationService(t, enabledNotificationConfig)

	view := func(tempC float64, warning bool) coordinator.View {
		return coordinator.View{
			Name:              "Rooftop",
			HasSocket:         true,
			Stats:             telemetry.DeviceStats{CPUTempC: tempC},
			ThermalThresholdC: 70,
			ThermalWarning:    warning,
		}
	}

	messageBus.Publish(connectors.TopicTelemetryView, view(60, false))
	messageBus.Publish(connectors.TopicTelemetryView, view(72.5, true))
	messageBus.Publish(connectors.TopicTelemetryView, view(74, true))

	got := sender.waitForCount(t, 1)
	if got[0].Title != notificationTitleThermal {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
	if got[0].Content != "Rooftop: 72.5 °C (threshold 70 °C)" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}
	sender.assertCount(t, 1)

	messageBus.Publish(connectors.TopicTelemetryView, view(65, false))
	got = sender.waitForCount(t, 2)
	if got[1].Title != notificationTitleThermalCleared {
		t.Fatalf("expected cleared notification, got %q", got[1].Title)
	}
}

func TestNotificationServiceIgnoresHTTPOnlyViews(t *testing.T) {
	messageBus, sender := startNotificationService(t, enabledNotificationConfig)

	messageBus.Publish(connectors.TopicTelemetryView, coordinator.View{HasHTTP: true, ThermalWarning: true})
	sender.assertCount(t, 0)
}

func newTestMessageBus(t *testing.T) *bus.PubSubBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	t.Cleanup(func() {
		messageBus.Close()
	})

	return messageBus
}

type collectingNotificationSender struct {
	mu            sync.Mutex
	notifications []notifications.Payload
	changes       chan struct{}
}

func newCollectingNotificationSender() *collectingNotificationSender {
	return &collectingNotificationSender{
		changes: make(chan struct{}, 1),
	}
}

func (s *collectingNotificationSender) Send(notification notifications.Payload) {
	s.mu.Lock()
	s.notifications = append(s.notifications, notification)
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *collectingNotificationSender) snapshot() []notifications.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notifications.Payload, len(s.notifications))
	copy(out, s.notifications)

	return out
}

func (s *collectingNotificationSender) waitForCount(t *testing.T, expected int) []notifications.Payload {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current := s.snapshot()
		if len(current) >= expected {
			return current
		}
		select {
		case <-s.changes:
		case <-time.After(10 * time.Millisecond):
		}
	}

	t.Fatalf("timed out waiting for %d notifications", expected)

	return nil
}

func (s *collectingNotificationSender) assertCount(t *testing.T, expected int) {
	t.Helper()

	time.Sleep(100 * time.Millisecond)
	current := s.snapshot()
	if len(current) != expected {
		t.Fatalf("expected %d notifications, got %d", expected, len(current))
	}
}

func TestNotificationServiceWaitReturnsAfterCancel(t *testing.T) {
	messageBus := newTestMessageBus(t)
	service := NewNotificationService(messageBus, enabledNotificationConfig, newCollectingNotificationSender(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	service.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("notification consumers did not stop after cancel")
	}
}

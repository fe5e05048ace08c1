package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/persistence"
)

const identitySourceDevice = "device"

// IdentityCache stores device-reported identities and seeds the session with the
// last known one when the device stays silent.
type IdentityCache struct {
	repo   *persistence.IdentityRepo
	writer *persistence.WriterQueue
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewIdentityCache(repo *persistence.IdentityRepo, writer *persistence.WriterQueue, logger *slog.Logger) *IdentityCache {
	if logger == nil {
		logger = slog.With("component", "app.identity")
	}

	return &IdentityCache{repo: repo, writer: writer, logger: logger}
}

// Fallback returns the identity used until the device reports one. A configured
// MAC always wins over the cached one.
func (c *IdentityCache) Fallback(ctx context.Context, cfg config.DeviceConfig) connectors.DeviceIdentity {
	id := connectors.DeviceIdentity{Host: cfg.Host}
	if c != nil && c.repo != nil {
		cached, ok, err := c.repo.Get(ctx, cfg.Host)
		switch {
		case err != nil:
			c.logger.Warn("read identity cache", "host", cfg.Host, "error", err)
		case ok:
			id = cached
		}
	}
	if cfg.MAC != "" {
		id.MACAddress = cfg.MAC
		id.Source = "configured"
	}

	return id
}

// Start persists identities the device reports until ctx is done.
func (c *IdentityCache) Start(ctx context.Context, b bus.MessageBus) {
	if c == nil || c.repo == nil || c.writer == nil || b == nil {
		return
	}

	sub := b.Subscribe(connectors.TopicDeviceIdentity)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer b.Unsubscribe(sub, connectors.TopicDeviceIdentity)
		bus.Consume(ctx, c.logger, sub, func(raw any) {
			id, ok := raw.(connectors.DeviceIdentity)
			if !ok || id.Source != identitySourceDevice || id.Host == "" || id.Empty() {
				return
			}
			c.writer.Enqueue("identity.upsert", func(ctx context.Context) error {
				return c.repo.Upsert(ctx, id)
			})
		})
	}()
}

func (c *IdentityCache) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/coordinator"
	"github.com/skobkin/web888mon/internal/device"
	"github.com/skobkin/web888mon/internal/logging"
	"github.com/skobkin/web888mon/internal/metrics"
	"github.com/skobkin/web888mon/internal/notifications"
	"github.com/skobkin/web888mon/internal/persistence"
	"github.com/skobkin/web888mon/internal/platform"
	"github.com/skobkin/web888mon/internal/session"
	"github.com/skobkin/web888mon/internal/status"
	"github.com/skobkin/web888mon/internal/telemetry"
	"github.com/skobkin/web888mon/internal/transport"
)

// Options tune Initialize. Zero values pick the defaults.
type Options struct {
	ConfigPath string
	Registerer prometheus.Registerer
	Sender     notifications.Sender
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig
	Mode   config.Mode

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	WriterQueue *persistence.WriterQueue
	Identities  *IdentityCache

	DeviceConfig *device.Store
	Telemetry    *telemetry.Store

	Fetcher       *status.Fetcher
	Session       *session.Manager
	Coordinator   *coordinator.Coordinator
	ClientMetrics *metrics.Client
	DeviceMetrics *metrics.DeviceCollector
	Notifications *NotificationService
	deviceLock    platform.DeviceLock

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnStatus
	connStatusKnown bool

	startOnce sync.Once
	workers   sync.WaitGroup
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
		Mode:   cfg.Device.ResolveMode(),
	}

	logMgr := logging.NewManager()
	logPath := ""
	if cfg.Logging.LogToFile {
		logPath = paths.LogFile
	}
	if err := logMgr.Configure(cfg.Logging, logPath); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting web888mon runtime",
		"version", BuildVersion(),
		"build_date", BuildDateYMD(),
		"target", ConnectionTarget(cfg.Device),
		"mode", rt.Mode,
	)

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	rt.setConnStatus(ConnectionStatusFromConfig(cfg.Device))
	connSub := b.Subscribe(connectors.TopicConnStatus)
	rt.workers.Add(1)
	go func() {
		defer rt.workers.Done()
		bus.Consume(ctx, logMgr.Logger("app"), connSub, func(raw any) {
			if st, ok := raw.(connectors.ConnStatus); ok {
				rt.setConnStatus(st)
			}
		})
	}()

	if cfg.Storage.IdentityCache {
		db, err := persistence.Open(ctx, paths.DBFile)
		if err != nil {
			_ = rt.Close()

			return nil, err
		}
		rt.DB = db
		rt.WriterQueue = persistence.NewWriterQueue(logMgr.Logger("persistence"), 0)
		rt.WriterQueue.Start(ctx)
		rt.Identities = NewIdentityCache(persistence.NewIdentityRepo(db), rt.WriterQueue, logMgr.Logger("app.identity"))
		rt.Identities.Start(ctx, b)
	}

	rt.ClientMetrics = metrics.NewClient()
	rt.DeviceMetrics = metrics.NewDeviceCollector()
	if opts.Registerer != nil {
		if err := rt.ClientMetrics.Register(opts.Registerer); err != nil {
			_ = rt.Close()

			return nil, fmt.Errorf("register client metrics: %w", err)
		}
		if err := opts.Registerer.Register(rt.DeviceMetrics); err != nil {
			_ = rt.Close()

			return nil, fmt.Errorf("register device metrics: %w", err)
		}
	}

	sources := coordinator.Sources{}
	if rt.Mode == config.ModeHTTP || rt.Mode == config.ModeHybrid {
		rt.Fetcher = status.NewFetcher(cfg.Device.BaseURL(),
			status.WithLogger(logMgr.Logger("status")),
			status.WithRoundTripper(rt.ClientMetrics.InstrumentRoundTripper),
		)
		sources.Fetcher = rt.Fetcher
	}
	if rt.Mode == config.ModeSocket || rt.Mode == config.ModeHybrid {
		if err := rt.lockDevice(cfg.Device.Host); err != nil {
			_ = rt.Close()

			return nil, err
		}
		rt.DeviceConfig = device.NewStore()
		rt.Telemetry = telemetry.NewStore()
		rt.Session = session.NewManager(
			transport.NewWebSocket(cfg.Device.Host, cfg.Device.Port),
			cfg.Device.Password,
			rt.DeviceConfig,
			rt.Telemetry,
			session.WithLogger(logMgr.Logger("session")),
			session.WithBus(b),
			session.WithObserver(rt.ClientMetrics),
			session.WithFallbackIdentity(rt.Identities.Fallback(ctx, cfg.Device)),
			session.WithTables(cfg.Polling.EnableChannels, cfg.Polling.EnableSatellites),
			session.WithTimings(session.Timings{RequestInterval: cfg.Polling.Interval()}),
		)
		sources.Session = rt.Session
		sources.Config = rt.DeviceConfig
		sources.Telemetry = rt.Telemetry
	}

	coord, err := coordinator.New(rt.Mode, sources,
		coordinator.WithLogger(logMgr.Logger("coordinator")),
		coordinator.WithBus(b),
		coordinator.WithThermalThreshold(cfg.Thermal.ThresholdC),
		coordinator.WithConfiguredMAC(cfg.Device.MAC),
		coordinator.WithTables(cfg.Polling.EnableChannels, cfg.Polling.EnableSatellites),
	)
	if err != nil {
		_ = rt.Close()

		return nil, fmt.Errorf("initialize coordinator: %w", err)
	}
	rt.Coordinator = coord
	coord.Subscribe(rt.DeviceMetrics.Update)

	if cfg.Notifications.Enabled {
		sender := opts.Sender
		if sender == nil {
			sender = notifications.NewDesktopSender(logMgr.Logger("notifications"))
		}
		rt.Notifications = NewNotificationService(b, rt.CurrentConfig, sender, logMgr.Logger("app.notifications"))
		rt.Notifications.Start(ctx)
	}

	return rt, nil
}

// lockDevice keeps two monitors on this machine from opening competing admin
// sessions to one receiver.
func (r *Runtime) lockDevice(host string) error {
	lock, err := platform.AcquireDeviceLock(Name, host)
	switch {
	case errors.Is(err, platform.ErrDeviceLockUnsupported):
		slog.Warn("device lock unavailable, continuing without it", "error", err)

		return nil
	case errors.Is(err, platform.ErrDeviceLocked):
		return fmt.Errorf("%s: %w", host, err)
	case err != nil:
		return err
	}
	r.deviceLock = lock

	return nil
}

// Start opens the admin session, if any, and begins periodic refreshes.
func (r *Runtime) Start() {
	r.startOnce.Do(func() {
		if r.Session != nil {
			r.Session.Start(r.Ctx)
		}
		r.workers.Add(1)
		go func() {
			defer r.workers.Done()
			r.Coordinator.Run(r.Ctx, r.Config.Polling.Interval())
		}()
	})
}

// RefreshOnce connects, waits for the session to become ready and returns a
// single View. Socket data may be partial if the device never became ready.
func (r *Runtime) RefreshOnce(ctx context.Context) (coordinator.View, error) {
	if r.Session != nil {
		sub := r.Bus.Subscribe(connectors.TopicConnStatus)
		r.Session.Start(r.Ctx)
		if !r.waitReady(ctx, sub, session.HandshakeTimeout+session.ConfigDrainTimeout+5*time.Second) {
			slog.Warn("admin session not ready, reporting partial data", "state", r.Session.State())
		}
		r.Bus.Unsubscribe(sub, connectors.TopicConnStatus)
	}

	return r.Coordinator.Refresh(ctx)
}

func (r *Runtime) waitReady(ctx context.Context, sub bus.Subscription, timeout time.Duration) bool {
	if r.Session.State() == connectors.ConnectionStateReady {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case raw, ok := <-sub:
			if !ok {
				return false
			}
			if st, ok := raw.(connectors.ConnStatus); ok && st.State == connectors.ConnectionStateReady {
				return true
			}
		}
	}
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

func (r *Runtime) setConnStatus(status connectors.ConnStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnStatus, bool) {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()

	return r.connStatus, r.connStatusKnown
}

func (r *Runtime) Close() error {
	if r.Session != nil {
		r.Session.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	// Everything that publishes or unsubscribes must be done before the bus shuts down.
	r.workers.Wait()
	if r.Notifications != nil {
		r.Notifications.Wait()
	}
	if r.Identities != nil {
		r.Identities.Wait()
	}
	if r.WriterQueue != nil {
		r.WriterQueue.Wait()
	}
	if r.Fetcher != nil {
		r.Fetcher.Close()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.deviceLock != nil {
		_ = r.deviceLock.Release()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return nil
}

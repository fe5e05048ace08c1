package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/device"
	"github.com/skobkin/web888mon/internal/status"
	"github.com/skobkin/web888mon/internal/telemetry"
)

// StatusFetcher is the HTTP side of a refresh.
type StatusFetcher interface {
	Fetch(ctx context.Context) (status.Fields, error)
}

// SessionSource is the socket side of a refresh.
type SessionSource interface {
	State() connectors.ConnectionState
	Identity() connectors.DeviceIdentity
}

// Sources wires the collaborators a Coordinator reads from.
type Sources struct {
	Fetcher   StatusFetcher
	Session   SessionSource
	Config    *device.Store
	Telemetry *telemetry.Store
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithBus(b bus.MessageBus) Option {
	return func(c *Coordinator) { c.bus = b }
}

func WithThermalThreshold(celsius float64) Option {
	return func(c *Coordinator) {
		if celsius > 0 {
			c.thermalThreshold = celsius
		}
	}
}

// WithConfiguredMAC overrides whatever MAC the device reports.
func WithConfiguredMAC(mac string) Option {
	return func(c *Coordinator) { c.configuredMAC = mac }
}

// WithTables hides the channel or satellite tables from views.
func WithTables(channels, satellites bool) Option {
	return func(c *Coordinator) {
		c.channels = channels
		c.satellites = satellites
	}
}

// Coordinator merges HTTP and socket data into Views and hands them to subscribers.
type Coordinator struct {
	mode             config.Mode
	src              Sources
	logger           *slog.Logger
	bus              bus.MessageBus
	thermalThreshold float64
	configuredMAC    string
	channels         bool
	satellites       bool
	now              func() time.Time

	mu          sync.Mutex
	subscribers map[uint64]func(View)
	nextID      uint64
}

func New(mode config.Mode, src Sources, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		mode:             mode,
		src:              src,
		logger:           slog.With("component", "coordinator"),
		thermalThreshold: config.DefaultThermalThresholdC,
		channels:         true,
		satellites:       true,
		now:              time.Now,
		subscribers:      make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.usesHTTP() && src.Fetcher == nil {
		return nil, fmt.Errorf("mode %s needs a status fetcher", mode)
	}
	if c.usesSocket() && (src.Session == nil || src.Config == nil || src.Telemetry == nil) {
		return nil, fmt.Errorf("mode %s needs a socket session and stores", mode)
	}
	if !c.usesHTTP() && !c.usesSocket() {
		return nil, fmt.Errorf("unsupported mode: %q", mode)
	}

	return c, nil
}

func (c *Coordinator) Mode() config.Mode {
	return c.mode
}

func (c *Coordinator) usesHTTP() bool {
	return c.mode == config.ModeHTTP || c.mode == config.ModeHybrid
}

func (c *Coordinator) usesSocket() bool {
	return c.mode == config.ModeSocket || c.mode == config.ModeHybrid
}

// Subscribe registers fn for every delivered View. The returned func removes it.
func (c *Coordinator) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// Refresh builds one View and delivers it. In http mode a failed fetch returns
// the error and delivers nothing; in hybrid mode the socket view is still delivered.
func (c *Coordinator) Refresh(ctx context.Context) (View, error) {
	var (
		fields   status.Fields
		fetchErr error
		snap     telemetry.Snapshot
		devCfg   device.Config
		state    connectors.ConnectionState
		identity connectors.DeviceIdentity
	)

	g, gctx := errgroup.WithContext(ctx)
	if c.usesHTTP() {
		g.Go(func() error {
			fields, fetchErr = c.src.Fetcher.Fetch(gctx)

			return nil
		})
	}
	if c.usesSocket() {
		g.Go(func() error {
			state = c.src.Session.State()
			identity = c.src.Session.Identity()
			snap = c.src.Telemetry.Snapshot()
			devCfg = c.src.Config.Config()

			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	if fetchErr != nil {
		if !c.usesSocket() {
			return View{}, fmt.Errorf("refresh: %w", fetchErr)
		}
		c.logger.Warn("status fetch failed, delivering socket data only", "error", fetchErr)
	}

	view := c.merge(fields, fetchErr, snap, devCfg, state, identity)
	c.deliver(ctx, view)

	return view, nil
}

func (c *Coordinator) merge(fields status.Fields, fetchErr error, snap telemetry.Snapshot, devCfg device.Config, state connectors.ConnectionState, identity connectors.DeviceIdentity) View {
	view := View{
		Mode:              c.mode,
		UpdatedAt:         c.now(),
		ThermalThresholdC: c.thermalThreshold,
	}

	if c.usesHTTP() {
		if fetchErr == nil {
			view.HasHTTP = true
			view.HTTP = fields
		} else {
			view.HTTPError = fetchErr.Error()
		}
	}

	if c.usesSocket() {
		view.HasSocket = true
		view.ConnectionState = state
		view.Identity = identity
		view.Stats = snap.Stats
		view.Config = devCfg
		if c.channels {
			view.HasChannels = true
			view.Channels = snap.Channels
		}
		if c.satellites {
			view.HasSatellites = true
			view.Satellites = snap.Satellites
		}
		view.ThermalWarning = snap.StatsSeen && snap.Stats.CPUTempC >= c.thermalThreshold
	}

	view.Name = preferSocket(devCfg.RXName, fields.Name)
	view.Location = preferSocket(devCfg.RXLocation, fields.Location)
	view.Antenna = preferSocket(devCfg.RXAntenna, fields.Antenna)
	view.Version = fields.Version

	if c.configuredMAC != "" {
		view.Identity.MACAddress = c.configuredMAC
		view.Identity.Source = "configured"
	}

	return view
}

func (c *Coordinator) deliver(ctx context.Context, view View) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	ids := make([]uint64, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(View), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subscribers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.invoke(fn, view)
	}
	if c.bus != nil {
		c.bus.Publish(connectors.TopicTelemetryView, view)
	}
}

func (c *Coordinator) invoke(fn func(View), view View) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked", "panic", r)
		}
	}()
	fn(view)
}

// Run refreshes immediately and then every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	c.logger.Info("coordinator started", "mode", c.mode, "interval", interval.String())
	c.refreshAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopped")

			return
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *Coordinator) refreshAndLog(ctx context.Context) {
	view, err := c.Refresh(ctx)
	switch {
	case err == nil:
		c.logger.Debug("refresh delivered", "state", view.ConnectionState, "http", view.HasHTTP, "users", view.Users())
	case errors.Is(err, context.Canceled):
	default:
		c.logger.Warn("refresh failed", "error", err)
	}
}

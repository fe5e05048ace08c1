package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/skobkin/web888mon/internal/bus"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/device"
	"github.com/skobkin/web888mon/internal/telemetry"
	"github.com/skobkin/web888mon/internal/transport"
	"github.com/skobkin/web888mon/internal/wire"
)

// Observer receives session events for metrics.
type Observer interface {
	StateChanged(state connectors.ConnectionState)
	Reconnecting()
	ParseFailed(name string)
}

type noopObserver struct{}

func (noopObserver) StateChanged(connectors.ConnectionState) {}
func (noopObserver) Reconnecting()                           {}
func (noopObserver) ParseFailed(string)                      {}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithBus(b bus.MessageBus) Option {
	return func(m *Manager) { m.bus = b }
}

func WithTimings(t Timings) Option {
	return func(m *Manager) { m.timings = t.withDefaults() }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithFallbackIdentity sets the identity kept when the device reports none.
func WithFallbackIdentity(id connectors.DeviceIdentity) Option {
	return func(m *Manager) { m.fallback = id }
}

// WithTables toggles the channel and satellite requests.
func WithTables(channels, satellites bool) Option {
	return func(m *Manager) {
		m.channels = channels
		m.satellites = satellites
	}
}

// Manager owns the admin socket: connect, authenticate, drain config, then keep
// the session alive and reconnect with backoff.
type Manager struct {
	logger    *slog.Logger
	transport transport.Transport
	password  string
	config    *device.Store
	telemetry *telemetry.Store
	bus       bus.MessageBus
	observer  Observer
	timings   Timings

	channels   bool
	satellites bool

	backoff  *backoff.Backoff
	fallback connectors.DeviceIdentity
	identity atomic.Pointer[connectors.DeviceIdentity]

	state    atomic.Value
	stopping atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewManager(tr transport.Transport, password string, cfg *device.Store, tel *telemetry.Store, opts ...Option) *Manager {
	m := &Manager{
		logger:     slog.With("component", "session"),
		transport:  tr,
		password:   password,
		config:     cfg,
		telemetry:  tel,
		observer:   noopObserver{},
		timings:    DefaultTimings(),
		channels:   true,
		satellites: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.backoff = &backoff.Backoff{
		Min:    m.timings.BackoffMin,
		Max:    m.timings.BackoffMax,
		Factor: 2,
		Jitter: false,
	}
	m.state.Store(connectors.ConnectionStateDisconnected)
	fallback := m.fallback
	m.identity.Store(&fallback)

	return m
}

func (m *Manager) State() connectors.ConnectionState {
	return m.state.Load().(connectors.ConnectionState)
}

// RequestInterval is how often a ready session asks for stats, users and GPS.
func (m *Manager) RequestInterval() time.Duration {
	return m.timings.RequestInterval
}

// Identity is the device identity from the last discovery, or the fallback.
func (m *Manager) Identity() connectors.DeviceIdentity {
	return *m.identity.Load()
}

func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopping.Load() {
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.run(runCtx, m.done)
	})
}

// Stop closes the session for good and clears the telemetry it collected.
// It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.stopping.Store(true)
		m.setState(connectors.ConnectionStateClosing, nil)

		m.mu.Lock()
		cancel, done := m.cancel, m.done
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if err := m.transport.Close(); err != nil {
			m.logger.Debug("transport close on stop", "error", err)
		}
		if done != nil {
			select {
			case <-done:
			case <-time.After(CloseTimeout):
				m.logger.Warn("session did not stop in time", "timeout", CloseTimeout.String())
			}
		}
		m.telemetry.Reset()
		m.setState(connectors.ConnectionStateDisconnected, nil)
	})
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if !m.stopping.Load() {
			m.setState(connectors.ConnectionStateDisconnected, ctx.Err())
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		err := m.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := m.nextDelay()
		m.observer.Reconnecting()
		m.setState(connectors.ConnectionStateReconnecting, err)
		m.logger.Warn("session ended", "error", err, "retry_in", delay.String())
		if !sleepWithContext(ctx, delay) {
			return
		}
	}
}

func (m *Manager) nextDelay() time.Duration {
	return m.backoff.Duration()
}

type frame struct {
	payload []byte
	err     error
}

type sessionState struct {
	attemptID string
	statsSeen bool
}

func (m *Manager) runSession(ctx context.Context) error {
	sess := &sessionState{attemptID: uuid.NewString()}
	logger := m.logger.With("attempt_id", sess.attemptID)

	m.config.Reset()
	m.setStateAttempt(connectors.ConnectionStateConnecting, nil, sess.attemptID)

	connectCtx, cancelConnect := context.WithTimeout(ctx, m.timings.Handshake)
	err := m.transport.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		return &ConnectError{Op: "connect", Err: err}
	}
	connectedAt := time.Now()

	sessCtx, cancel := context.WithCancel(ctx)
	frames := make(chan frame, 64)
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		m.readLoop(sessCtx, frames)
	}()
	defer func() {
		cancel()
		if closeErr := m.transport.Close(); closeErr != nil {
			logger.Debug("transport close", "error", closeErr)
		}
		readers.Wait()
	}()

	m.setStateAttempt(connectors.ConnectionStateAuthenticating, nil, sess.attemptID)
	logger.Debug("sending admin auth")
	if err := m.send(ctx, cmdAuth+m.password); err != nil {
		return &ConnectError{Op: "send auth", Err: err}
	}

	phase := connectors.ConnectionStateAuthenticating
	drain := time.NewTimer(m.timings.ConfigDrain - time.Since(connectedAt))
	defer drain.Stop()

	var (
		pingC, requestC <-chan time.Time
		pongTimeoutC    <-chan time.Time
		pongs           <-chan struct{}
		pongTimer       *time.Timer
		pingTicker      *time.Ticker
		requestTicker   *time.Ticker
	)
	keepAlive, hasKeepAlive := m.transport.(transport.KeepAliver)
	if hasKeepAlive {
		pongs = keepAlive.Pongs()
	}
	stopPongTimer := func() {
		if pongTimer != nil {
			pongTimer.Stop()
			pongTimer = nil
			pongTimeoutC = nil
		}
	}
	defer func() {
		stopPongTimer()
		if pingTicker != nil {
			pingTicker.Stop()
		}
		if requestTicker != nil {
			requestTicker.Stop()
		}
	}()

	enterReady := func(reason string) error {
		drain.Stop()
		phase = connectors.ConnectionStateReady
		if err := m.becomeReady(ctx, sess, reason, logger); err != nil {
			return err
		}
		pingTicker = time.NewTicker(m.timings.PingInterval)
		requestTicker = time.NewTicker(m.timings.RequestInterval)
		pingC, requestC = pingTicker.C, requestTicker.C

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fr := <-frames:
			if fr.err != nil {
				return &ConnectError{Op: "read", Err: fr.err}
			}
			next, err := m.handleLine(ctx, sess, phase, string(fr.payload), logger)
			if err != nil {
				return err
			}
			phase = next
			if phase == connectors.ConnectionStateDraining && m.drainComplete(sess) {
				if err := enterReady("complete"); err != nil {
					return err
				}
			}

		case <-drain.C:
			switch phase {
			case connectors.ConnectionStateAuthenticating:
				return &AuthError{}
			case connectors.ConnectionStateDraining:
				if err := enterReady("timeout"); err != nil {
					return err
				}
			}

		case <-pingC:
			if !hasKeepAlive || pongTimer != nil {
				continue
			}
			pingCtx, cancelPing := context.WithTimeout(ctx, writeTimeout)
			err := keepAlive.Ping(pingCtx)
			cancelPing()
			if err != nil {
				return &ConnectError{Op: "ping", Err: err}
			}
			pongTimer = time.NewTimer(m.timings.PingTimeout)
			pongTimeoutC = pongTimer.C

		case <-pongs:
			stopPongTimer()

		case <-pongTimeoutC:
			return &TimeoutError{Op: "keep-alive", After: m.timings.PingTimeout}

		case <-requestC:
			if err := m.sendRequests(ctx); err != nil {
				return &ConnectError{Op: "send requests", Err: err}
			}
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, out chan<- frame) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := m.transport.ReadFrame(ctx)
		select {
		case out <- frame{payload: payload, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleLine applies one protocol line and returns the phase after it.
func (m *Manager) handleLine(ctx context.Context, sess *sessionState, phase connectors.ConnectionState, line string, logger *slog.Logger) (connectors.ConnectionState, error) {
	msg := wire.Parse(line)

	switch msg.Kind {
	case wire.KindUnknown:
		m.observer.ParseFailed(msg.Name)
		if msg.Name != "" {
			logger.Warn("discarding message", "error", &ProtocolError{Name: msg.Name, Err: msg.Err})
		} else {
			logger.Debug("discarding line", "error", msg.Err, "len", len(line))
		}

	case wire.KindStatus:
		if code, ok := msg.Lookup(wire.NameAuthResult); ok && phase == connectors.ConnectionStateAuthenticating {
			if code != wire.AuthResultAccepted {
				return phase, &AuthError{Code: code}
			}
			logger.Info("admin auth accepted")
			phase = connectors.ConnectionStateDraining
			m.setStateAttempt(phase, nil, sess.attemptID)
			if err := m.send(ctx, cmdGetConfig); err != nil {
				return phase, &ConnectError{Op: "request identity", Err: err}
			}
		}
		if _, ok := msg.Lookup(wire.NameConfigLoaded); ok {
			logger.Debug("device finished sending config")
		}
		m.telemetry.ApplyStatusUpdate(msg.Pairs)

	case wire.KindConfig:
		kind, _ := device.DocumentKindFor(msg.Name)
		if err := m.config.ApplyDecoded(kind, msg.Doc); err != nil {
			m.observer.ParseFailed(msg.Name)
			logger.Warn("config document rejected", "error", &ProtocolError{Name: msg.Name, Err: err})

			break
		}
		logger.Debug("config document applied", "name", msg.Name)
		if kind == device.DocumentIdentity && phase == connectors.ConnectionStateReady {
			m.discoverIdentity(logger)
		}

	case wire.KindSnapshot:
		switch msg.Name {
		case wire.NameStats:
			m.telemetry.ApplyStatsBlock(msg.Doc)
			sess.statsSeen = true
		case wire.NameUsers:
			if m.channels {
				m.telemetry.ApplyChannelBlock(msg.Doc)
			}
		case wire.NameSatellites:
			if m.satellites {
				m.telemetry.ApplySatelliteBlock(msg.Doc)
			}
		case wire.NamePosition:
			m.telemetry.ApplyPosition(msg.Doc)
		}
	}

	return phase, nil
}

func (m *Manager) drainComplete(sess *sessionState) bool {
	return sess.statsSeen && m.config.Seen(device.DocumentMain) && m.config.Seen(device.DocumentAdmin)
}

func (m *Manager) becomeReady(ctx context.Context, sess *sessionState, reason string, logger *slog.Logger) error {
	m.backoff.Reset()
	m.setStateAttempt(connectors.ConnectionStateReady, nil, sess.attemptID)
	logger.Info("session ready",
		"drain", reason,
		"main_config", m.config.Seen(device.DocumentMain),
		"admin_config", m.config.Seen(device.DocumentAdmin),
		"stats", sess.statsSeen,
	)
	m.discoverIdentity(logger)

	if err := m.sendRequests(ctx); err != nil {
		return &ConnectError{Op: "send requests", Err: err}
	}

	return nil
}

// discoverIdentity publishes the device-reported identity, keeping the fallback
// when the device reports nothing.
func (m *Manager) discoverIdentity(logger *slog.Logger) {
	found := m.config.Config().Identity()
	id := m.fallback
	if !found.Empty() {
		id = connectors.DeviceIdentity{
			Host:         id.Host,
			MACAddress:   found.MACAddress,
			SerialNumber: found.SerialNumber,
			DNA:          found.DNA,
			Source:       identityDevice,
		}
		if id.MACAddress == "" {
			id.MACAddress = m.fallback.MACAddress
		}
		if id.SerialNumber == "" {
			id.SerialNumber = m.fallback.SerialNumber
		}
		if id.DNA == "" {
			id.DNA = m.fallback.DNA
		}
	}
	id.Timestamp = time.Now()

	prev := m.Identity()
	m.identity.Store(&id)
	m.telemetry.SetIdentity(id.MACAddress, id.SerialNumber, id.DNA)
	if id.Empty() {
		logger.Debug("device identity unknown")

		return
	}
	if prev.MACAddress == id.MACAddress && prev.SerialNumber == id.SerialNumber && prev.DNA == id.DNA && prev.Source == id.Source {
		return
	}
	logger.Info("device identity", "mac", id.MACAddress, "serial", id.SerialNumber, "source", id.Source)
	if m.bus != nil {
		m.bus.Publish(connectors.TopicDeviceIdentity, id)
	}
}

func (m *Manager) sendRequests(ctx context.Context) error {
	cmds := []string{cmdStats}
	if m.channels {
		cmds = append(cmds, cmdUsers)
	}
	if m.satellites {
		cmds = append(cmds, cmdGPSUpdate)
	}
	for _, cmd := range cmds {
		if err := m.send(ctx, cmd); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) send(ctx context.Context, line string) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return m.transport.WriteFrame(writeCtx, []byte(line))
}

func (m *Manager) setState(state connectors.ConnectionState, err error) {
	m.setStateAttempt(state, err, "")
}

func (m *Manager) setStateAttempt(state connectors.ConnectionState, err error, attemptID string) {
	if m.stopping.Load() && state != connectors.ConnectionStateClosing && state != connectors.ConnectionStateDisconnected {
		return
	}
	prev := m.State()
	m.state.Store(state)
	m.observer.StateChanged(state)

	status := connectors.ConnStatus{
		State:         state,
		TransportName: m.transport.Name(),
		AttemptID:     attemptID,
		Timestamp:     time.Now(),
	}
	if resolver, ok := m.transport.(transport.EndpointResolver); ok {
		status.Target = resolver.Endpoint()
	}
	if err != nil {
		status.Err = err.Error()
	}
	if prev != state {
		m.logger.Debug("state changed", "from", prev, "to", state, "attempt_id", attemptID)
	}
	if m.bus != nil {
		m.bus.Publish(connectors.TopicConnStatus, status)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

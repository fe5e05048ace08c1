package session

import "time"

const (
	HandshakeTimeout   = 10 * time.Second
	ConfigDrainTimeout = 5 * time.Second
	PingInterval       = 20 * time.Second
	PingTimeout        = 10 * time.Second
	CloseTimeout       = 10 * time.Second

	DefaultRequestInterval = 30 * time.Second
	BackoffMin             = 5 * time.Second
	BackoffMax             = 60 * time.Second

	writeTimeout = 5 * time.Second
)

const (
	cmdAuth        = "SET auth t=admin p="
	cmdGetConfig   = "SET GET_CONFIG"
	cmdStats       = "SET STATS_UPD ch=0"
	cmdUsers       = "SET GET_USERS"
	cmdGPSUpdate   = "SET gps_update"
	identityDevice = "device"
)

// Timings groups the session durations; tests shorten them.
type Timings struct {
	Handshake       time.Duration
	ConfigDrain     time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	RequestInterval time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Handshake:       HandshakeTimeout,
		ConfigDrain:     ConfigDrainTimeout,
		PingInterval:    PingInterval,
		PingTimeout:     PingTimeout,
		RequestInterval: DefaultRequestInterval,
		BackoffMin:      BackoffMin,
		BackoffMax:      BackoffMax,
	}
}

func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.Handshake <= 0 {
		t.Handshake = def.Handshake
	}
	if t.ConfigDrain <= 0 {
		t.ConfigDrain = def.ConfigDrain
	}
	if t.PingInterval <= 0 {
		t.PingInterval = def.PingInterval
	}
	if t.PingTimeout <= 0 {
		t.PingTimeout = def.PingTimeout
	}
	if t.RequestInterval <= 0 {
		t.RequestInterval = def.RequestInterval
	}
	if t.BackoffMin <= 0 {
		t.BackoffMin = def.BackoffMin
	}
	if t.BackoffMax < t.BackoffMin {
		t.BackoffMax = def.BackoffMax
	}

	return t
}

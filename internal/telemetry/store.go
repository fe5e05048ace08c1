package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/web888mon/internal/wire"
)

// Snapshot is a fully committed view of device telemetry.
type Snapshot struct {
	Stats      DeviceStats
	Channels   ChannelTable
	Satellites SatelliteTable

	StatsSeen      bool
	ChannelsSeen   bool
	SatellitesSeen bool
	UpdatedAt      time.Time
}

func emptySnapshot() Snapshot {
	return Snapshot{Channels: IdleChannels()}
}

// Store publishes telemetry snapshots. Each Apply call builds a new Snapshot and
// swaps it in, so readers never observe a half-applied update.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
	now func() time.Time
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	snap := emptySnapshot()
	s.cur.Store(&snap)

	return s
}

func (s *Store) Snapshot() Snapshot {
	return *s.cur.Load()
}

func (s *Store) update(fn func(next *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	fn(&next)
	next.UpdatedAt = s.now()
	s.cur.Store(&next)
}

// ApplyStatusUpdate sets scalar stats from status pairs. It reports how many
// pairs were recognized; unknown names are ignored.
func (s *Store) ApplyStatusUpdate(pairs []wire.Pair) int {
	applied := 0
	for _, p := range pairs {
		if _, ok := statusFields[p.Name]; ok {
			applied++
		}
	}
	if applied == 0 {
		return 0
	}

	s.update(func(next *Snapshot) {
		for _, p := range pairs {
			if set, ok := statusFields[p.Name]; ok {
				set(&next.Stats, p.Value)
			}
		}
	})

	return applied
}

// ApplyStatsBlock replaces counters from a stats_cb document.
func (s *Store) ApplyStatsBlock(doc any) {
	s.update(func(next *Snapshot) {
		next.Stats = decodeStats(next.Stats, doc)
		next.StatsSeen = true
	})
}

// ApplyChannelBlock replaces the full channel table from a user_cb document.
func (s *Store) ApplyChannelBlock(doc any) {
	table := decodeChannels(doc)
	s.update(func(next *Snapshot) {
		next.Channels = table
		next.ChannelsSeen = true
	})
}

// ApplySatelliteBlock replaces the full satellite table from a gps_update_cb document.
func (s *Store) ApplySatelliteBlock(doc any) {
	table := decodeSatellites(doc)
	s.update(func(next *Snapshot) {
		next.Satellites = table
		next.SatellitesSeen = true
	})
}

// ApplyPosition sets the reference position from a gps_POS_data_cb document.
func (s *Store) ApplyPosition(doc any) {
	obj := wire.Object(doc)
	s.update(func(next *Snapshot) {
		next.Stats.Latitude = wire.Float(obj["ref_lat"])
		next.Stats.Longitude = wire.Float(obj["ref_lon"])
	})
}

// SetIdentity records hardware identity discovered on the admin channel.
func (s *Store) SetIdentity(mac, serial, dna string) {
	s.update(func(next *Snapshot) {
		next.Stats.MACAddress = mac
		next.Stats.SerialNumber = serial
		next.Stats.DNA = dna
	})
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := emptySnapshot()
	s.cur.Store(&snap)
}

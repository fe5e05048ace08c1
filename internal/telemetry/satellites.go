package telemetry

import "github.com/skobkin/web888mon/internal/wire"

// MaxSatellites is the number of GPS receiver channels reported.
const MaxSatellites = 12

type SatelliteEntry struct {
	Channel    int
	System     string
	PRN        int
	SNR        int
	RSSI       int
	Azimuth    int
	Elevation  int
	InSolution bool
	// Tracked is false for placeholder slots.
	Tracked bool
}

// SatelliteTable always holds MaxSatellites entries. Slots without a tracked
// satellite are zero-value placeholders.
type SatelliteTable [MaxSatellites]SatelliteEntry

func decodeSatellites(doc any) SatelliteTable {
	var table SatelliteTable
	list := wire.Array(doc)
	if obj := wire.Object(doc); obj != nil {
		list = wire.Array(obj["ch"])
	}

	for pos, item := range list {
		if pos >= MaxSatellites {
			break
		}
		obj := wire.Object(item)
		if obj == nil {
			continue
		}
		prn := wire.Int(obj["prn"])
		if prn <= 0 {
			continue
		}
		table[pos] = SatelliteEntry{
			Channel:    wire.Int(obj["ch"]),
			System:     wire.String(obj["prn_s"]),
			PRN:        prn,
			SNR:        wire.Int(obj["snr"]),
			RSSI:       wire.Int(obj["rssi"]),
			Azimuth:    wire.Int(obj["az"]),
			Elevation:  wire.Int(obj["el"]),
			InSolution: wire.Int(obj["soln"]) == 1,
			Tracked:    true,
		}
	}

	return table
}

func (t SatelliteTable) Tracked() int {
	n := 0
	for _, s := range t {
		if s.Tracked {
			n++
		}
	}

	return n
}

func (t SatelliteTable) InSolution() int {
	n := 0
	for _, s := range t {
		if s.Tracked && s.InSolution {
			n++
		}
	}

	return n
}

// AverageSNR is the mean SNR over tracked satellites. ok is false when none are tracked.
func (t SatelliteTable) AverageSNR() (avg float64, ok bool) {
	sum, n := 0, 0
	for _, s := range t {
		if s.Tracked {
			sum += s.SNR
			n++
		}
	}
	if n == 0 {
		return 0, false
	}

	return float64(sum) / float64(n), true
}

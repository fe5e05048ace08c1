package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skobkin/web888mon/internal/wire"
)

// DeviceStats holds scalar counters and gauges. Slices are never modified after a
// snapshot is published.
type DeviceStats struct {
	UptimeSeconds int64

	CPUTempC   float64
	CPUFreqMHz float64
	CPUUserPct []int
	CPUSysPct  []int
	CPUIdlePct []int

	AudioKbps     float64
	WaterfallKbps float64
	HTTPKbps      float64

	Dropped        int64
	Underruns      int64
	SequenceErrors int64
	RealtimeErrors int64
	ADCOverflow    int

	GPSAcquiring    bool
	GPSTracking     int
	GPSGood         int
	GPSFixes        int
	GPSFixesPerMin  int
	GPSFixesPerHour int
	ADCClockMHz     float64
	GridSquare      string
	Latitude        float64
	Longitude       float64

	MACAddress   string
	SerialNumber string
	DNA          string
}

func (s DeviceStats) TotalKbps() float64 {
	return s.AudioKbps + s.WaterfallKbps + s.HTTPKbps
}

// CPUUsageAverage is the mean user CPU percentage across cores.
func (s DeviceStats) CPUUsageAverage() (float64, bool) {
	if len(s.CPUUserPct) == 0 {
		return 0, false
	}
	sum := 0
	for _, v := range s.CPUUserPct {
		sum += v
	}

	return float64(sum) / float64(len(s.CPUUserPct)), true
}

// UptimeFormatted renders uptime as H:MM:SS.
func (s DeviceStats) UptimeFormatted() string {
	u := s.UptimeSeconds
	if u < 0 {
		u = 0
	}

	return fmt.Sprintf("%d:%02d:%02d", u/3600, (u%3600)/60, u%60)
}

func decodeStats(prev DeviceStats, doc any) DeviceStats {
	obj := wire.Object(doc)
	next := prev
	next.UptimeSeconds = wire.Int64(obj["ct"])
	next.CPUTempC = wire.Float(obj["cc"])
	next.CPUFreqMHz = wire.Float(obj["cf"])
	next.CPUUserPct = wire.Ints(obj["cu"])
	next.CPUSysPct = wire.Ints(obj["cs"])
	next.CPUIdlePct = wire.Ints(obj["ci"])
	next.AudioKbps = wire.Float(obj["ac"])
	next.WaterfallKbps = wire.Float(obj["wc"])
	next.HTTPKbps = wire.Float(obj["ah"])
	next.Dropped = wire.Int64(obj["ad"])
	next.Underruns = wire.Int64(obj["au"])
	next.SequenceErrors = wire.Int64(obj["as"])
	next.RealtimeErrors = wire.Int64(obj["ar"])
	next.GPSAcquiring = wire.Int(obj["ga"]) == 1
	next.GPSTracking = wire.Int(obj["gt"])
	next.GPSGood = wire.Int(obj["gg"])
	next.GPSFixes = wire.Int(obj["gf"])
	next.ADCClockMHz = wire.Float(obj["gc"])
	next.GridSquare = wire.String(obj["gr"])

	return next
}

type statusSetter func(s *DeviceStats, value string)

func intStatus(dst func(*DeviceStats) *int) statusSetter {
	return func(s *DeviceStats, value string) { *dst(s) = atoiOrZero(value) }
}

var statusFields = map[string]statusSetter{
	"adc_ov":     intStatus(func(s *DeviceStats) *int { return &s.ADCOverflow }),
	"gps_good":   intStatus(func(s *DeviceStats) *int { return &s.GPSGood }),
	"fixes":      intStatus(func(s *DeviceStats) *int { return &s.GPSFixes }),
	"fixes_min":  intStatus(func(s *DeviceStats) *int { return &s.GPSFixesPerMin }),
	"fixes_hour": intStatus(func(s *DeviceStats) *int { return &s.GPSFixesPerHour }),
	"uptime": func(s *DeviceStats, value string) {
		s.UptimeSeconds = int64(atoiOrZero(value))
	},
	"grid": func(s *DeviceStats, value string) {
		s.GridSquare = strings.TrimSpace(value)
	},
}

func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}

	return n
}

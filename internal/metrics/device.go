package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/web888mon/internal/coordinator"
)

func newDeviceMetric(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

var (
	upMetric      = newDeviceMetric("", "up", "Did the last refresh reach the device.")
	infoMetric    = newDeviceMetric("", "info", "Receiver identity and firmware.", "name", "version", "mac", "serial")
	uptimeMetric  = newDeviceMetric("", "uptime_seconds", "Receiver uptime.")
	usersMetric   = newDeviceMetric("", "users", "Connected listeners.")
	maxUserMetric = newDeviceMetric("", "users_max", "Listener slots.")
	snrMetric     = newDeviceMetric("", "snr_db", "Measured band SNR.", "band")
	offlineMetric = newDeviceMetric("", "offline", "Receiver reports itself offline.")

	cpuTempMetric     = newDeviceMetric("cpu", "temperature_celsius", "CPU temperature.")
	thermalMetric     = newDeviceMetric("cpu", "thermal_warning", "CPU temperature is at or above the configured threshold.")
	cpuFreqMetric     = newDeviceMetric("cpu", "frequency_mhz", "CPU clock.")
	bandwidthMetric   = newDeviceMetric("network", "kbps", "Outgoing bandwidth by stream.", "stream")
	audioErrorsMetric = newDeviceMetric("audio", "errors", "Audio pipeline error counters.", "kind")
	adcOverflowMetric = newDeviceMetric("adc", "overflow", "ADC overflow count.")

	gpsFixesMetric     = newDeviceMetric("gps", "fixes", "GPS fixes since boot.")
	gpsTrackedMetric   = newDeviceMetric("gps", "satellites_tracked", "Satellites being tracked.")
	gpsSolutionMetric  = newDeviceMetric("gps", "satellites_in_solution", "Satellites used in the position solution.")
	gpsAvgSNRMetric    = newDeviceMetric("gps", "average_snr_db", "Average SNR of tracked satellites.")
	gpsLatitudeMetric  = newDeviceMetric("gps", "latitude_degrees", "Receiver latitude.")
	gpsLongitudeMetric = newDeviceMetric("gps", "longitude_degrees", "Receiver longitude.")

	channelActiveMetric  = newDeviceMetric("channel", "active", "Channel occupied.", "channel", "class")
	channelDecodesMetric = newDeviceMetric("channel", "decoded", "Spots decoded on the channel this session.", "channel", "class")
	decodesMetric        = newDeviceMetric("decoder", "spots", "Spots decoded across all channels.", "decoder")
)

var deviceMetrics = []*prometheus.Desc{
	upMetric, infoMetric, uptimeMetric, usersMetric, maxUserMetric, snrMetric, offlineMetric,
	cpuTempMetric, thermalMetric, cpuFreqMetric, bandwidthMetric, audioErrorsMetric, adcOverflowMetric,
	gpsFixesMetric, gpsTrackedMetric, gpsSolutionMetric, gpsAvgSNRMetric, gpsLatitudeMetric, gpsLongitudeMetric,
	channelActiveMetric, channelDecodesMetric, decodesMetric,
}

// DeviceCollector exports the latest delivered View. Subscribe Update to a
// coordinator; Collect never talks to the device.
type DeviceCollector struct {
	mu   sync.RWMutex
	view coordinator.View
	seen bool
}

func NewDeviceCollector() *DeviceCollector {
	return &DeviceCollector{}
}

func (d *DeviceCollector) Update(view coordinator.View) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.view = view
	d.seen = true
}

func (d *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range deviceMetrics {
		ch <- m
	}
}

func (d *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	d.mu.RLock()
	view, seen := d.view, d.seen
	d.mu.RUnlock()

	if !seen || !view.Connected() {
		ch <- prometheus.MustNewConstMetric(upMetric, prometheus.GaugeValue, 0)

		return
	}
	ch <- prometheus.MustNewConstMetric(upMetric, prometheus.GaugeValue, 1)

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	gauge(infoMetric, 1, view.Name, view.Version, view.Identity.MACAddress, view.Identity.SerialNumber)
	gauge(uptimeMetric, float64(view.UptimeSeconds()))
	gauge(usersMetric, float64(view.Users()))
	if lat, lon, ok := view.Position(); ok {
		gauge(gpsLatitudeMetric, lat)
		gauge(gpsLongitudeMetric, lon)
	}

	if view.HasHTTP {
		gauge(maxUserMetric, float64(view.HTTP.UsersMax))
		gauge(offlineMetric, boolValue(view.HTTP.Offline))
		if snr, ok := view.HTTP.SNRAll(); ok {
			gauge(snrMetric, float64(snr), "all")
		}
		if snr, ok := view.HTTP.SNRHF(); ok {
			gauge(snrMetric, float64(snr), "hf")
		}
	}

	if view.HasSocket {
		stats := view.Stats
		gauge(cpuTempMetric, stats.CPUTempC)
		gauge(thermalMetric, boolValue(view.ThermalWarning))
		gauge(cpuFreqMetric, stats.CPUFreqMHz)
		gauge(bandwidthMetric, stats.AudioKbps, "audio")
		gauge(bandwidthMetric, stats.WaterfallKbps, "waterfall")
		gauge(bandwidthMetric, stats.HTTPKbps, "http")
		gauge(audioErrorsMetric, float64(stats.Dropped), "dropped")
		gauge(audioErrorsMetric, float64(stats.Underruns), "underruns")
		gauge(audioErrorsMetric, float64(stats.SequenceErrors), "sequence")
		gauge(audioErrorsMetric, float64(stats.RealtimeErrors), "realtime")
		gauge(adcOverflowMetric, float64(stats.ADCOverflow))
		gauge(gpsFixesMetric, float64(stats.GPSFixes))
	} else if view.HasHTTP {
		gauge(adcOverflowMetric, float64(view.HTTP.ADCOverflow))
		gauge(gpsFixesMetric, float64(view.HTTP.Fixes))
	}

	if view.HasSatellites {
		gauge(gpsTrackedMetric, float64(view.Satellites.Tracked()))
		gauge(gpsSolutionMetric, float64(view.Satellites.InSolution()))
		if avg, ok := view.Satellites.AverageSNR(); ok {
			gauge(gpsAvgSNRMetric, avg)
		}
	}

	if view.HasChannels {
		for _, c := range view.Channels {
			idx := strconv.Itoa(c.Index)
			gauge(channelActiveMetric, boolValue(c.Active()), idx, string(c.Class))
			gauge(channelDecodesMetric, float64(c.DecodedCount), idx, string(c.Class))
		}
		gauge(decodesMetric, float64(view.Channels.FT8TotalDecodes()), "ft8")
		gauge(decodesMetric, float64(view.Channels.WSPRTotalDecodes()), "wspr")
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

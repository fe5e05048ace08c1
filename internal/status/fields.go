package status

import (
	"bufio"
	"strconv"
	"strings"
)

// Fields is the parsed body of the plain-text /status page.
type Fields struct {
	Name          string
	Location      string
	Version       string
	Antenna       string
	Bands         string
	UptimeSeconds int64
	Users         int
	UsersMax      int
	Status        string
	Offline       bool

	AntennaConnected bool
	ADCOverflow      int

	// SNR is the raw "all,hf" pair; use SNRAll and SNRHF.
	SNR string

	Latitude     float64
	Longitude    float64
	HasPosition  bool
	GPSGood      int
	Fixes        int
	FixesPerMin  int
	FixesPerHour int
	AltitudeM    int

	OperatorEmail string
	SDRHardware   string
	FreqOffset    float64
}

// SNRAll is the wideband SNR in dB. ok is false when the device has not measured it.
func (f Fields) SNRAll() (int, bool) {
	return snrPart(f.SNR, 0)
}

// SNRHF is the HF-only SNR in dB.
func (f Fields) SNRHF() (int, bool) {
	return snrPart(f.SNR, 1)
}

func snrPart(raw string, idx int) (int, bool) {
	if raw == "" {
		return 0, false
	}
	parts := strings.Split(raw, ",")
	if idx >= len(parts) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[idx]))
	if err != nil || n <= 0 {
		return 0, false
	}

	return n, true
}

// Detect reports whether body looks like a Web-888/KiwiSDR status page. Both the
// offline= and users= markers must be present.
func Detect(body string) bool {
	lower := strings.ToLower(body)

	return strings.Contains(lower, "offline=") && strings.Contains(lower, "users=")
}

// ParseFields reads key=value lines. Unknown keys are skipped and numeric parse
// failures leave the field at zero.
func ParseFields(body string) Fields {
	var f Fields
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			f.Name = value
		case "loc":
			f.Location = value
		case "sw_version":
			f.Version = value
		case "antenna":
			f.Antenna = value
		case "bands":
			f.Bands = value
		case "uptime":
			f.UptimeSeconds = int64(atoi(value))
		case "users":
			f.Users = atoi(value)
		case "users_max":
			f.UsersMax = atoi(value)
		case "status":
			f.Status = value
		case "offline":
			f.Offline = value == "yes"
		case "ant_connected":
			f.AntennaConnected = value == "1"
		case "adc_ov":
			f.ADCOverflow = atoi(value)
		case "snr":
			f.SNR = value
		case "gps":
			f.Latitude, f.Longitude, f.HasPosition = parsePosition(value)
		case "gps_good":
			f.GPSGood = atoi(value)
		case "fixes":
			f.Fixes = atoi(value)
		case "fixes_min":
			f.FixesPerMin = atoi(value)
		case "fixes_hour":
			f.FixesPerHour = atoi(value)
		case "asl":
			f.AltitudeM = atoi(value)
		case "op_email":
			f.OperatorEmail = value
		case "sdr_hw":
			f.SDRHardware = value
		case "freq_offset":
			f.FreqOffset, _ = strconv.ParseFloat(value, 64)
		}
	}

	return f
}

// parsePosition reads "(lat, lon)".
func parsePosition(raw string) (lat, lon float64, ok bool) {
	raw = strings.Trim(strings.TrimSpace(raw), "()")
	latRaw, lonRaw, found := strings.Cut(raw, ",")
	if !found {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}

	return lat, lon, true
}

func atoi(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}

	return n
}

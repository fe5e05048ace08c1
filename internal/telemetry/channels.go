package telemetry

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/skobkin/web888mon/internal/wire"
)

// NumChannels is the number of receiver channels on a Web-888.
const NumChannels = 12

// ChannelClass tags what occupies a channel.
type ChannelClass string

const (
	ClassFT8  ChannelClass = "ft8"
	ClassWSPR ChannelClass = "wspr"
	ClassUser ChannelClass = "user"
	ClassIdle ChannelClass = "idle"
)

// ChannelEntry is one receiver channel as last reported by the device.
type ChannelEntry struct {
	Index          int
	Name           string
	FrequencyHz    int64
	Mode           string
	Extension      string
	DecodedCount   int
	ClientIP       string
	SessionTime    string
	SessionSeconds int
	Preemptible    bool
	Class          ChannelClass
}

func (c ChannelEntry) Active() bool {
	return c.ClientIP != ""
}

func (c ChannelEntry) FrequencyKHz() float64 {
	return float64(c.FrequencyHz) / 1e3
}

// ChannelTable always holds NumChannels entries; index is the channel id.
type ChannelTable [NumChannels]ChannelEntry

// IdleChannels returns a table of idle placeholders.
func IdleChannels() ChannelTable {
	var t ChannelTable
	for i := range t {
		t[i] = ChannelEntry{Index: i, Class: ClassIdle}
	}

	return t
}

// Classify derives the channel class from the extension name and client address.
// Decoder extensions run as autorun clients on the loopback address; the same
// extension opened by a remote listener counts as a user.
func Classify(extension, clientIP string) ChannelClass {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ClassIdle
	}
	if !isLoopback(clientIP) {
		return ClassUser
	}

	ext := strings.ToLower(strings.TrimSpace(extension))
	switch {
	case strings.HasPrefix(ext, "ft8"), strings.HasPrefix(ext, "ft4"):
		return ClassFT8
	case strings.HasPrefix(ext, "wspr"):
		return ClassWSPR
	default:
		return ClassUser
	}
}

func isLoopback(ip string) bool {
	switch ip {
	case "127.0.0.1", "::1", "localhost":
		return true
	}

	return strings.HasPrefix(ip, "127.")
}

// ParseSessionTime converts "HHH:MM:SS" into seconds. Anything else yields 0.
func ParseSessionTime(raw string) int {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return 0
	}
	total := 0
	for i, mul := range []int{3600, 60, 1} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0
		}
		total += n * mul
	}

	return total
}

// parseChannelStatus reads the decoder status text, e.g. "410 decoded, preemptible".
func parseChannelStatus(raw string) (decoded int, preemptible bool) {
	text := raw
	if unescaped, err := url.PathUnescape(raw); err == nil {
		text = unescaped
	}
	if strings.Contains(text, "decoded") {
		if fields := strings.Fields(text); len(fields) > 0 {
			if n, err := strconv.Atoi(strings.TrimRight(fields[0], ",")); err == nil && n >= 0 {
				decoded = n
			}
		}
	}

	return decoded, strings.Contains(strings.ToLower(text), "preemptible")
}

func decodeChannels(doc any) ChannelTable {
	table := IdleChannels()
	for pos, item := range wire.Array(doc) {
		obj := wire.Object(item)
		if obj == nil {
			continue
		}

		slot := pos
		if v, ok := obj["i"]; ok {
			slot = wire.Int(v)
		}
		if slot < 0 || slot >= NumChannels {
			continue
		}

		decoded, preemptible := parseChannelStatus(wire.String(obj["g"]))
		ext := strings.TrimSpace(wire.String(obj["e"]))
		ip := strings.TrimSpace(wire.String(obj["a"]))
		session := strings.TrimSpace(wire.String(obj["t"]))
		table[slot] = ChannelEntry{
			Index:          slot,
			Name:           wire.String(obj["n"]),
			FrequencyHz:    wire.Int64(obj["f"]),
			Mode:           wire.String(obj["m"]),
			Extension:      ext,
			DecodedCount:   decoded,
			ClientIP:       ip,
			SessionTime:    session,
			SessionSeconds: ParseSessionTime(session),
			Preemptible:    preemptible,
			Class:          Classify(ext, ip),
		}
	}

	return table
}

func (t ChannelTable) decodesFor(class ChannelClass) int {
	total := 0
	for _, ch := range t {
		if ch.Class == class {
			total += ch.DecodedCount
		}
	}

	return total
}

func (t ChannelTable) FT8TotalDecodes() int {
	return t.decodesFor(ClassFT8)
}

func (t ChannelTable) WSPRTotalDecodes() int {
	return t.decodesFor(ClassWSPR)
}

// TotalSessionHours sums session time over all channels.
func (t ChannelTable) TotalSessionHours() float64 {
	seconds := 0
	for _, ch := range t {
		seconds += ch.SessionSeconds
	}

	return float64(seconds) / 3600
}

func (t ChannelTable) PreemptibleChannels() int {
	n := 0
	for _, ch := range t {
		if ch.Preemptible {
			n++
		}
	}

	return n
}

func (t ChannelTable) CountByClass(class ChannelClass) int {
	n := 0
	for _, ch := range t {
		if ch.Class == class {
			n++
		}
	}

	return n
}

// ActiveUsers counts channels with any connected client, decoders included.
func (t ChannelTable) ActiveUsers() int {
	n := 0
	for _, ch := range t {
		if ch.Active() {
			n++
		}
	}

	return n
}

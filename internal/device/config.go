package device

// AutorunSlots is the number of autorun entries per decoder section.
const AutorunSlots = 12

const (
	DefaultPort       = 8073
	DefaultTDoANChans = -1
)

// Config is the normalized device configuration assembled from the main and
// administrative documents. Values are replaced wholesale, never patched.
type Config struct {
	// Calibration
	SMeterCal    int
	WaterfallCal int
	DCOffsetI    float64
	DCOffsetQ    float64
	ClkAdj       int
	ADCClkCorr   int
	OverloadMute int

	// Feature flags
	DRMEnabled        bool
	WSPREnabled       bool
	WSPRSpotLog       bool
	WSPRSyslog        bool
	WSPRGPSUpdateGrid bool
	SpectralInversion bool
	ExtADCClk         bool
	NoWaterfall       bool

	// Session and access limits
	InactivityTimeoutMins int
	IPLimitMins           int
	ChanNoPwd             int
	NCamp                 int
	ExtAPINChans          int
	TDoANChans            int

	// Noise reduction
	NBAlgo   int
	NBThresh int
	NBGate   int
	NRAlgo   int

	// Device info
	RXName     string
	RXDevice   string
	RXLocation string
	RXAntenna  string
	RXASL      int
	RXGPS      string
	OwnerInfo  string
	AdminEmail string
	TDoAServer string

	// Admin flags
	EnableGPS          bool
	GPSCorr            bool
	Airband            bool
	Narrowband         bool
	WFShare            bool
	ServerEnabled      bool
	UseSSL             bool
	SDRHuRegister      bool
	KiwiSDRComRegister bool
	IPBlacklistAuto    bool
	IPBlacklistMtime   int64

	// Network
	ConfiguredIP string
	UseStaticIP  bool
	Port         int
	Netmask      string
	Gateway      string

	// Identity
	MACAddress   string
	SerialNumber string
	DNA          string

	// Reporters
	WSPRCallsign  string
	WSPRGrid      string
	FT8Callsign   string
	FT8Grid       string
	SNRCorrection int
	DTCorrection  int
	WSPRAutorun   [AutorunSlots]int
	FT8Autorun    [AutorunSlots]int
}

// DefaultConfig returns the values used for keys the device never sent.
func DefaultConfig() Config {
	return Config{
		TDoANChans:    DefaultTDoANChans,
		EnableGPS:     true,
		GPSCorr:       true,
		ServerEnabled: true,
		Port:          DefaultPort,
	}
}

// EffectiveCallsign prefers the FT8 reporter callsign and falls back to WSPR.
func (c Config) EffectiveCallsign() string {
	if c.FT8Callsign != "" {
		return c.FT8Callsign
	}

	return c.WSPRCallsign
}

// EffectiveGrid prefers the FT8 reporter grid and falls back to WSPR.
func (c Config) EffectiveGrid() string {
	if c.FT8Grid != "" {
		return c.FT8Grid
	}

	return c.WSPRGrid
}

func (c Config) WSPRAutorunChannels() int {
	return countActive(c.WSPRAutorun)
}

func (c Config) FT8AutorunChannels() int {
	return countActive(c.FT8Autorun)
}

// Identity is the hardware identity reported while authenticated.
type Identity struct {
	MACAddress   string
	SerialNumber string
	DNA          string
}

func (i Identity) Empty() bool {
	return i.MACAddress == "" && i.SerialNumber == "" && i.DNA == ""
}

func (c Config) Identity() Identity {
	return Identity{MACAddress: c.MACAddress, SerialNumber: c.SerialNumber, DNA: c.DNA}
}

func countActive(slots [AutorunSlots]int) int {
	n := 0
	for _, band := range slots {
		if band > 0 {
			n++
		}
	}

	return n
}

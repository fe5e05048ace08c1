package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which data sources feed the telemetry view.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeHTTP   Mode = "http"
	ModeSocket Mode = "socket"
	ModeHybrid Mode = "hybrid"
)

const (
	DefaultPort                = 8073
	DefaultScanIntervalSeconds = 30
	MinScanIntervalSeconds     = 10
	MaxScanIntervalSeconds     = 300
	DefaultThermalThresholdC   = 70.0
	DefaultMetricsAddress      = ":9888"
	DefaultMetricsPath         = "/metrics"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// DeviceConfig describes how to reach the receiver.
type DeviceConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Mode     Mode   `yaml:"mode"`
	// MAC overrides the discovered hardware address.
	MAC string `yaml:"mac"`
}

type PollingConfig struct {
	ScanInterval     int  `yaml:"scan_interval"`
	EnableChannels   bool `yaml:"enable_channels"`
	EnableSatellites bool `yaml:"enable_satellites"`
}

type ThermalConfig struct {
	ThresholdC float64 `yaml:"threshold_c"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	LogToFile bool   `yaml:"log_to_file"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled          bool `yaml:"enabled"`
	ConnectionStatus bool `yaml:"connection_status"`
	Thermal          bool `yaml:"thermal"`
}

type StorageConfig struct {
	IdentityCache bool `yaml:"identity_cache"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Device        DeviceConfig       `yaml:"device"`
	Polling       PollingConfig      `yaml:"polling"`
	Thermal       ThermalConfig      `yaml:"thermal"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	Storage       StorageConfig      `yaml:"storage"`
}

func Default() AppConfig {
	return AppConfig{
		Device: DeviceConfig{
			Port: DefaultPort,
			Mode: ModeAuto,
		},
		Polling: PollingConfig{
			ScanInterval:     DefaultScanIntervalSeconds,
			EnableChannels:   true,
			EnableSatellites: true,
		},
		Thermal: ThermalConfig{ThresholdC: DefaultThermalThresholdC},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Metrics: MetricsConfig{
			ListenAddress: DefaultMetricsAddress,
			Path:          DefaultMetricsPath,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			ConnectionStatus: true,
			Thermal:          true,
		},
		Storage: StorageConfig{IdentityCache: true},
	}
}

// Load reads path over the defaults and applies environment overrides. A missing
// file yields the defaults.
func Load(path string) (AppConfig, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (AppConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		cleanPath := filepath.Clean(path)
		// #nosec G304 -- path comes from the command line.
		raw, err := os.ReadFile(cleanPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return AppConfig{}, fmt.Errorf("decode config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(getenv); err != nil {
		return AppConfig{}, err
	}
	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) applyEnvOverrides(getenv func(string) string) error {
	if v := getenv("WEB888_HOST"); v != "" {
		c.Device.Host = v
	}
	if v := getenv("WEB888_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEB888_PORT: %w", err)
		}
		c.Device.Port = port
	}
	if v := getenv("WEB888_PASSWORD"); v != "" {
		c.Device.Password = v
	}
	if v := getenv("WEB888_MODE"); v != "" {
		c.Device.Mode = Mode(strings.ToLower(v))
	}
	if v := getenv("WEB888_MAC"); v != "" {
		c.Device.MAC = v
	}
	if v := getenv("SCAN_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCAN_INTERVAL: %w", err)
		}
		c.Polling.ScanInterval = seconds
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

func (c *AppConfig) FillMissingDefaults() {
	c.Device.Host = strings.TrimSpace(c.Device.Host)
	if c.Device.Port == 0 {
		c.Device.Port = DefaultPort
	}
	if c.Device.Mode == "" {
		c.Device.Mode = ModeAuto
	}
	if c.Device.MAC != "" && macPattern.MatchString(c.Device.MAC) {
		c.Device.MAC = NormalizeMAC(c.Device.MAC)
	}
	c.Polling.ScanInterval = clampScanInterval(c.Polling.ScanInterval)
	if c.Thermal.ThresholdC <= 0 {
		c.Thermal.ThresholdC = DefaultThermalThresholdC
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func clampScanInterval(seconds int) int {
	switch {
	case seconds <= 0:
		return DefaultScanIntervalSeconds
	case seconds < MinScanIntervalSeconds:
		return MinScanIntervalSeconds
	case seconds > MaxScanIntervalSeconds:
		return MaxScanIntervalSeconds
	default:
		return seconds
	}
}

func (p PollingConfig) Interval() time.Duration {
	return time.Duration(clampScanInterval(p.ScanInterval)) * time.Second
}

// ResolveMode turns auto into hybrid when a password is set and http otherwise.
func (d DeviceConfig) ResolveMode() Mode {
	if d.Mode != ModeAuto && d.Mode != "" {
		return d.Mode
	}
	if d.Password != "" {
		return ModeHybrid
	}

	return ModeHTTP
}

// BaseURL is the device HTTP root.
func (d DeviceConfig) BaseURL() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}

	return "http://" + d.Host + ":" + strconv.Itoa(port)
}

// ValidMAC reports whether mac is six hex octets separated by ':' or '-'.
func ValidMAC(mac string) bool {
	return macPattern.MatchString(mac)
}

// NormalizeMAC upper-cases mac and uses ':' separators.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

func (c AppConfig) Validate() error {
	if c.Device.Host == "" {
		return errors.New("device host is required")
	}
	if strings.ContainsAny(c.Device.Host, "/ ") {
		return fmt.Errorf("device host %q must be a host name or address", c.Device.Host)
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("device port out of range: %d", c.Device.Port)
	}
	switch c.Device.Mode {
	case ModeAuto, ModeHTTP:
	case ModeSocket, ModeHybrid:
		if c.Device.Password == "" {
			return fmt.Errorf("mode %s requires an admin password", c.Device.Mode)
		}
	default:
		return fmt.Errorf("unknown mode: %s", c.Device.Mode)
	}
	if c.Device.MAC != "" && !ValidMAC(c.Device.MAC) {
		return fmt.Errorf("invalid mac address: %q", c.Device.MAC)
	}
	if c.Thermal.ThresholdC <= 0 {
		return errors.New("thermal threshold must be positive")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skobkin/web888mon/internal/wire"
)

// DocumentKind names the configuration documents the device sends after login.
type DocumentKind string

const (
	DocumentMain     DocumentKind = "main"
	DocumentAdmin    DocumentKind = "admin"
	DocumentIdentity DocumentKind = "identity"
)

var ErrNotObject = errors.New("config document is not an object")

// DocumentKindFor maps a wire family name to its document kind.
func DocumentKindFor(name string) (DocumentKind, bool) {
	switch name {
	case wire.NameMainConfig, wire.NameLegacyConfig:
		return DocumentMain, true
	case wire.NameAdminConfig:
		return DocumentAdmin, true
	case wire.NameIdentity:
		return DocumentIdentity, true
	default:
		return "", false
	}
}

// Store accumulates configuration documents into a Config. Writers are serialized;
// readers get the last committed value without locking.
type Store struct {
	mu   sync.Mutex
	docs map[DocumentKind]map[string]any
	cur  atomic.Pointer[Config]
}

func NewStore() *Store {
	s := &Store{docs: make(map[DocumentKind]map[string]any)}
	cfg := DefaultConfig()
	s.cur.Store(&cfg)

	return s
}

// Config returns the current snapshot.
func (s *Store) Config() Config {
	return *s.cur.Load()
}

// ApplyConfigDocument decodes raw and merges it as the given kind. On error the
// previous configuration is kept.
func (s *Store) ApplyConfigDocument(kind DocumentKind, raw string) error {
	doc, err := wire.DecodeDocument(raw)
	if err != nil {
		return fmt.Errorf("decode %s config: %w", kind, err)
	}

	return s.ApplyDecoded(kind, doc)
}

// ApplyDecoded merges an already decoded document. A document replaces the
// previous document of the same kind.
func (s *Store) ApplyDecoded(kind DocumentKind, doc any) error {
	flat, err := flatten(doc)
	if err != nil {
		return fmt.Errorf("apply %s config: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[kind] = flat
	cfg := build(s.docs[DocumentMain], s.docs[DocumentAdmin], s.docs[DocumentIdentity])
	s.cur.Store(&cfg)

	return nil
}

// Seen reports whether a document of the kind was applied since the last Reset.
func (s *Store) Seen(kind DocumentKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[kind]

	return ok
}

// Reset drops all documents, returning the store to defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[DocumentKind]map[string]any)
	cfg := DefaultConfig()
	s.cur.Store(&cfg)
}

func flatten(doc any) (map[string]any, error) {
	obj := wire.Object(doc)
	if obj == nil {
		return nil, ErrNotObject
	}

	var renamed, exact []string
	for key := range obj {
		if canonicalKey(key) != key {
			renamed = append(renamed, key)
		} else {
			exact = append(exact, key)
		}
	}
	sort.Strings(renamed)
	sort.Strings(exact)

	out := make(map[string]any, len(obj))
	// Exact keys go last so "WSPR" beats "wspr" and "ft8" beats "ext_ft8".
	for _, key := range append(renamed, exact...) {
		walk(out, canonicalKey(key), obj[key])
	}

	return out, nil
}

func walk(out map[string]any, path string, v any) {
	if nested := wire.Object(v); nested != nil {
		for key, child := range nested {
			walk(out, path+"."+key, child)
		}

		return
	}
	out[path] = v
}

// canonicalKey normalizes extension section names on the first path segment:
// "ext_wspr", "wspr" and "WSPR" all become "WSPR". Plain keys that merely start
// with "ext_" (ext_ADC_clk, ext_api_nchans) are left alone.
func canonicalKey(key string) string {
	head, rest, dotted := strings.Cut(key, ".")
	if section, ok := extensionSections[strings.ToLower(strings.TrimPrefix(head, "ext_"))]; ok {
		head = section
	}
	if dotted {
		return head + "." + rest
	}

	return head
}

var extensionSections = map[string]string{
	"wspr": "WSPR",
	"ft8":  "ft8",
	"drm":  "DRM",
}

type setter func(c *Config, v any)

func intField(dst func(*Config) *int) setter {
	return func(c *Config, v any) { *dst(c) = wire.Int(v) }
}

func floatField(dst func(*Config) *float64) setter {
	return func(c *Config, v any) { *dst(c) = wire.Float(v) }
}

func boolField(dst func(*Config) *bool) setter {
	return func(c *Config, v any) { *dst(c) = wire.Bool(v) }
}

func stringField(dst func(*Config) *string) setter {
	return func(c *Config, v any) { *dst(c) = strings.TrimSpace(wire.String(v)) }
}

var fields = map[string]setter{
	"S_meter_cal":   intField(func(c *Config) *int { return &c.SMeterCal }),
	"waterfall_cal": intField(func(c *Config) *int { return &c.WaterfallCal }),
	"DC_offset_I":   floatField(func(c *Config) *float64 { return &c.DCOffsetI }),
	"DC_offset_Q":   floatField(func(c *Config) *float64 { return &c.DCOffsetQ }),
	"clk_adj":       intField(func(c *Config) *int { return &c.ClkAdj }),
	"ADC_clk2_corr": intField(func(c *Config) *int { return &c.ADCClkCorr }),
	"overload_mute": intField(func(c *Config) *int { return &c.OverloadMute }),

	"DRM.enable":           boolField(func(c *Config) *bool { return &c.DRMEnabled }),
	"WSPR.enable":          boolField(func(c *Config) *bool { return &c.WSPREnabled }),
	"WSPR.spot_log":        boolField(func(c *Config) *bool { return &c.WSPRSpotLog }),
	"WSPR.syslog":          boolField(func(c *Config) *bool { return &c.WSPRSyslog }),
	"WSPR.GPS_update_grid": boolField(func(c *Config) *bool { return &c.WSPRGPSUpdateGrid }),
	"spectral_inversion":   boolField(func(c *Config) *bool { return &c.SpectralInversion }),
	"ext_ADC_clk":          boolField(func(c *Config) *bool { return &c.ExtADCClk }),
	"no_wf":                boolField(func(c *Config) *bool { return &c.NoWaterfall }),

	"inactivity_timeout_mins": intField(func(c *Config) *int { return &c.InactivityTimeoutMins }),
	"ip_limit_mins":           intField(func(c *Config) *int { return &c.IPLimitMins }),
	"chan_no_pwd":             intField(func(c *Config) *int { return &c.ChanNoPwd }),
	"n_camp":                  intField(func(c *Config) *int { return &c.NCamp }),
	"ext_api_nchans":          intField(func(c *Config) *int { return &c.ExtAPINChans }),
	"tdoa_nchans":             intField(func(c *Config) *int { return &c.TDoANChans }),

	"nb_algo":   intField(func(c *Config) *int { return &c.NBAlgo }),
	"nb_thresh": intField(func(c *Config) *int { return &c.NBThresh }),
	"nb_gate":   intField(func(c *Config) *int { return &c.NBGate }),
	"nr_algo":   intField(func(c *Config) *int { return &c.NRAlgo }),

	"rx_name":     stringField(func(c *Config) *string { return &c.RXName }),
	"rx_device":   stringField(func(c *Config) *string { return &c.RXDevice }),
	"rx_location": stringField(func(c *Config) *string { return &c.RXLocation }),
	"rx_antenna":  stringField(func(c *Config) *string { return &c.RXAntenna }),
	"rx_asl":      intField(func(c *Config) *int { return &c.RXASL }),
	"rx_gps":      stringField(func(c *Config) *string { return &c.RXGPS }),
	"owner_info":  stringField(func(c *Config) *string { return &c.OwnerInfo }),
	"admin_email": stringField(func(c *Config) *string { return &c.AdminEmail }),
	"tdoa.server": stringField(func(c *Config) *string { return &c.TDoAServer }),

	"enable_gps":                 boolField(func(c *Config) *bool { return &c.EnableGPS }),
	"gps_corr":                   boolField(func(c *Config) *bool { return &c.GPSCorr }),
	"airband":                    boolField(func(c *Config) *bool { return &c.Airband }),
	"narrowband":                 boolField(func(c *Config) *bool { return &c.Narrowband }),
	"wf_share":                   boolField(func(c *Config) *bool { return &c.WFShare }),
	"server_enabled":             boolField(func(c *Config) *bool { return &c.ServerEnabled }),
	"use_ssl":                    boolField(func(c *Config) *bool { return &c.UseSSL }),
	"sdr_hu_register":            boolField(func(c *Config) *bool { return &c.SDRHuRegister }),
	"kiwisdr_com_register":       boolField(func(c *Config) *bool { return &c.KiwiSDRComRegister }),
	"ip_blacklist_auto_download": boolField(func(c *Config) *bool { return &c.IPBlacklistAuto }),
	"ip_blacklist_mtime":         func(c *Config, v any) { c.IPBlacklistMtime = wire.Int64(v) },

	"ip_address.ip":         stringField(func(c *Config) *string { return &c.ConfiguredIP }),
	"ip_address.use_static": boolField(func(c *Config) *bool { return &c.UseStaticIP }),
	"ip_address.netmask":    stringField(func(c *Config) *string { return &c.Netmask }),
	"ip_address.gateway":    stringField(func(c *Config) *string { return &c.Gateway }),
	"port":                  intField(func(c *Config) *int { return &c.Port }),

	"WSPR.callsign": stringField(func(c *Config) *string { return &c.WSPRCallsign }),
	"WSPR.grid":     stringField(func(c *Config) *string { return &c.WSPRGrid }),
	"ft8.callsign":  stringField(func(c *Config) *string { return &c.FT8Callsign }),
	"ft8.grid":      stringField(func(c *Config) *string { return &c.FT8Grid }),
}

var macKeys = []string{"ip_address.mac", "ip_address.mac_address", "mac", "mac_address", "ethernet_mac"}

// build layers defaults, main, admin and identity. Admin values win over main
// values for the same key regardless of arrival order.
func build(main, admin, identity map[string]any) Config {
	merged := make(map[string]any, len(main)+len(admin))
	for k, v := range main {
		merged[k] = v
	}
	for k, v := range admin {
		merged[k] = v
	}

	cfg := DefaultConfig()
	for key, set := range fields {
		if v, ok := merged[key]; ok {
			set(&cfg, v)
		}
	}

	if v, ok := firstOf(merged, "ft8.SNR_adj", "ft8.SNR_correction"); ok {
		cfg.SNRCorrection = wire.Int(v)
	}
	if v, ok := firstOf(merged, "ft8.dT_adj", "ft8.dT_correction"); ok {
		cfg.DTCorrection = wire.Int(v)
	}
	for i := 0; i < AutorunSlots; i++ {
		cfg.WSPRAutorun[i] = wire.Int(merged[fmt.Sprintf("WSPR.autorun%d", i)])
		cfg.FT8Autorun[i] = wire.Int(merged[fmt.Sprintf("ft8.autorun%d", i)])
	}
	if cfg.WSPRGrid == "" {
		if v, ok := firstNonEmpty(merged, "rx_grid", "index_html_params.RX_QRA"); ok {
			cfg.WSPRGrid = v
		}
	}
	if mac, ok := firstNonEmpty(merged, macKeys...); ok {
		cfg.MACAddress = mac
	}

	if mac, ok := firstNonEmpty(identity, "m"); ok {
		cfg.MACAddress = strings.ToUpper(mac)
	}
	if serial, ok := firstNonEmpty(identity, "s"); ok && serial != "0" {
		cfg.SerialNumber = serial
	}
	if dna, ok := firstNonEmpty(identity, "dna"); ok {
		cfg.DNA = dna
	}

	return cfg
}

func firstOf(doc map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := doc[key]; ok {
			return v, true
		}
	}

	return nil, false
}

func firstNonEmpty(doc map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(wire.String(doc[key])); v != "" {
			return v, true
		}
	}

	return "", false
}

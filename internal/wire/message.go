package wire

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Prefix starts every inbound line the device sends on the admin channel.
const Prefix = "MSG "

// Kind discriminates parsed lines.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindConfig
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindConfig:
		return "config"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Line family names carried before the first '='.
const (
	NameMainConfig     = "load_cfg"
	NameLegacyConfig   = "cfg"
	NameAdminConfig    = "load_adm"
	NameIdentity       = "config_cb"
	NameStats          = "stats_cb"
	NameUsers          = "user_cb"
	NameSatellites     = "gps_update_cb"
	NamePosition       = "gps_POS_data_cb"
	NameAuthResult     = "badp"
	NameConfigLoaded   = "cfg_loaded"
	AuthResultAccepted = "0"
)

var (
	ErrNotMessage   = errors.New("line is not a device message")
	ErrEmptyMessage = errors.New("message body is empty")
	ErrTruncated    = errors.New("message payload is missing")
	ErrBadName      = errors.New("message field name is invalid")
)

var families = map[string]Kind{
	NameMainConfig:   KindConfig,
	NameLegacyConfig: KindConfig,
	NameAdminConfig:  KindConfig,
	NameIdentity:     KindConfig,
	NameStats:        KindSnapshot,
	NameUsers:        KindSnapshot,
	NameSatellites:   KindSnapshot,
	NamePosition:     KindSnapshot,
}

// Pair is one name=value field of a status line. Bare tokens have an empty Value.
type Pair struct {
	Name  string
	Value string
}

// Message is the decoded form of a single line.
type Message struct {
	Kind Kind
	// Name is the family name for config and snapshot lines and the first field name
	// for status lines.
	Name  string
	Pairs []Pair
	// Doc holds the decoded payload of config and snapshot lines.
	Doc any
	Raw string
	Err error
}

// Lookup returns the value of the first status pair with the given name.
func (m Message) Lookup(name string) (string, bool) {
	for _, p := range m.Pairs {
		if p.Name == name {
			return p.Value, true
		}
	}

	return "", false
}

// Parse decodes one line. It never panics; anything it cannot classify comes back
// as KindUnknown with Err set.
func Parse(line string) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			msg = unknown(line, "", fmt.Errorf("parse panic: %v", r))
		}
	}()

	trimmed := strings.TrimRight(line, "\r\n\x00")
	if !strings.HasPrefix(trimmed, Prefix) {
		return unknown(line, "", ErrNotMessage)
	}
	body := strings.TrimSpace(trimmed[len(Prefix):])
	if body == "" {
		return unknown(line, "", ErrEmptyMessage)
	}

	name, value, hasValue := strings.Cut(body, "=")
	if kind, ok := families[name]; ok {
		if !hasValue || strings.TrimSpace(value) == "" {
			return unknown(line, name, ErrTruncated)
		}
		doc, err := DecodeDocument(value)
		if err != nil {
			return unknown(line, name, fmt.Errorf("decode %s: %w", name, err))
		}

		return Message{Kind: kind, Name: name, Doc: doc, Raw: line}
	}

	pairs, err := parsePairs(body)
	if err != nil {
		return unknown(line, name, err)
	}

	return Message{Kind: KindStatus, Name: pairs[0].Name, Pairs: pairs, Raw: line}
}

func unknown(line, name string, err error) Message {
	return Message{Kind: KindUnknown, Name: name, Raw: line, Err: err}
}

func parsePairs(body string) ([]Pair, error) {
	tokens := strings.Fields(body)
	pairs := make([]Pair, 0, len(tokens))
	for _, tok := range tokens {
		name, value, _ := strings.Cut(tok, "=")
		if !validName(name) {
			return nil, fmt.Errorf("%w: %q", ErrBadName, name)
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
	if len(pairs) == 0 {
		return nil, ErrEmptyMessage
	}

	return pairs, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
		default:
			return false
		}
	}

	return true
}
